package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ExchangeConfig 单个交易所的连接与凭证配置
type ExchangeConfig struct {
	Enabled    bool    `toml:"enabled"`
	RestURL    string  `toml:"rest_url"`
	SpotURL    string  `toml:"spot_url"`
	WsURL      string  `toml:"ws_url"`
	APIKey     string  `toml:"api_key"`
	APISecret  string  `toml:"api_secret"`
	Passphrase string  `toml:"passphrase"`
	RPS        float64 `toml:"rps"`
	Burst      int     `toml:"burst"`
}

func (e ExchangeConfig) HasCredentials() bool {
	return e.APIKey != "" && e.APISecret != ""
}

type TokenConfig struct {
	Symbol   string `toml:"symbol"`
	Contract string `toml:"contract"`
	Decimals int32  `toml:"decimals"`
}

type Config struct {
	App struct {
		RefreshEverySec    int `toml:"refresh_every_sec"`
		PrintEveryMin      int `toml:"print_every_min"`
		RequestTimeoutSec  int `toml:"request_timeout_sec"`
		MaxParallelSymbols int `toml:"max_parallel_symbols"`
	} `toml:"app"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	Derivatives struct {
		// 0 表示按启用的交易所数量
		OIQuorum    int `toml:"oi_quorum"`
		OIMaxAgeMin int `toml:"oi_max_age_min"`
	} `toml:"derivatives"`

	Orderbook struct {
		Enabled  bool               `toml:"enabled"`
		Depth    int                `toml:"depth"`
		Limit    int                `toml:"limit"`
		Decimals map[string]int     `toml:"decimals"`
		Weights  map[string]float64 `toml:"weights"`
	} `toml:"orderbook"`

	Liquidations struct {
		Enabled    bool    `toml:"enabled"`
		HorizonMin int     `toml:"horizon_min"`
		BinSize    float64 `toml:"bin_size"`
	} `toml:"liquidations"`

	Holdings struct {
		Enabled  bool `toml:"enabled"`
		EveryMin int  `toml:"every_min"`
	} `toml:"holdings"`

	Onchain struct {
		EtherscanURL   string        `toml:"etherscan_url"`
		EtherscanKey   string        `toml:"etherscan_key"`
		BlockstreamURL string        `toml:"blockstream_url"`
		ETHAddresses   []string      `toml:"eth_addresses"`
		BTCAddresses   []string      `toml:"btc_addresses"`
		Tokens         []TokenConfig `toml:"tokens"`
	} `toml:"onchain"`

	Storage struct {
		RetentionDays   int  `toml:"retention_days"`
		PruneEveryHours int  `toml:"prune_every_hours"`
		Backfill        bool `toml:"backfill"`
		BackfillHours   int  `toml:"backfill_hours"`
		BackfillStepMin int  `toml:"backfill_step_min"`
	} `toml:"storage"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Prefix     string `toml:"prefix"`
		TTLSeconds int    `toml:"ttl_seconds"`
		Stream     string `toml:"stream"`
		Channel    string `toml:"channel"`
		// 用 redis 保存 OI 分量（多实例共享）
		Contributions bool `toml:"contributions"`
	} `toml:"redis"`

	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`

	Exchanges map[string]ExchangeConfig `toml:"exchanges"`
}

var knownExchanges = map[string]ExchangeConfig{
	"binance": {RestURL: "https://fapi.binance.com", SpotURL: "https://api.binance.com", WsURL: "wss://fstream.binance.com/ws", RPS: 10, Burst: 5},
	"bybit":   {RestURL: "https://api.bybit.com", WsURL: "wss://stream.bybit.com/v5/public/linear", RPS: 10, Burst: 5},
	"okx":     {RestURL: "https://www.okx.com", RPS: 10, Burst: 5},
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets credentials come from the environment (or a .env file)
// instead of the config file. Environment wins when set.
func applyEnv(cfg *Config) {
	for name, ex := range cfg.Exchanges {
		prefix := strings.ToUpper(name)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			ex.APIKey = v
		}
		if v := os.Getenv(prefix + "_API_SECRET"); v != "" {
			ex.APISecret = v
		}
		if v := os.Getenv(prefix + "_PASSPHRASE"); v != "" {
			ex.Passphrase = v
		}
		cfg.Exchanges[name] = ex
	}
	if v := os.Getenv("ETHERSCAN_API_KEY"); v != "" {
		cfg.Onchain.EtherscanKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.RefreshEverySec <= 0 {
		cfg.App.RefreshEverySec = 60
	}
	if cfg.App.PrintEveryMin <= 0 {
		cfg.App.PrintEveryMin = 5
	}
	if cfg.App.RequestTimeoutSec <= 0 {
		cfg.App.RequestTimeoutSec = 10
	}
	if cfg.App.MaxParallelSymbols <= 0 {
		cfg.App.MaxParallelSymbols = 4
	}

	if cfg.Orderbook.Depth <= 0 {
		cfg.Orderbook.Depth = 100
	}
	if cfg.Orderbook.Limit <= 0 {
		cfg.Orderbook.Limit = 100
	}
	if cfg.Liquidations.HorizonMin <= 0 {
		cfg.Liquidations.HorizonMin = 60
	}
	if cfg.Liquidations.BinSize <= 0 {
		cfg.Liquidations.BinSize = 100
	}
	if cfg.Holdings.EveryMin <= 0 {
		cfg.Holdings.EveryMin = 10
	}

	if cfg.Onchain.EtherscanURL == "" {
		cfg.Onchain.EtherscanURL = "https://api.etherscan.io/api"
	}
	if cfg.Onchain.BlockstreamURL == "" {
		cfg.Onchain.BlockstreamURL = "https://blockstream.info/api"
	}
	for i := range cfg.Onchain.Tokens {
		if cfg.Onchain.Tokens[i].Decimals <= 0 {
			cfg.Onchain.Tokens[i].Decimals = 6
		}
	}

	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 14
	}
	if cfg.Storage.PruneEveryHours <= 0 {
		cfg.Storage.PruneEveryHours = 12
	}
	if cfg.Storage.BackfillHours <= 0 {
		cfg.Storage.BackfillHours = 24
	}
	if cfg.Storage.BackfillStepMin <= 0 {
		cfg.Storage.BackfillStepMin = 5
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/mmon.db"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "mmon"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}

	if len(cfg.Exchanges) == 0 {
		cfg.Exchanges = make(map[string]ExchangeConfig, len(knownExchanges))
		for name, def := range knownExchanges {
			def.Enabled = true
			cfg.Exchanges[name] = def
		}
	}
	for name, ex := range cfg.Exchanges {
		def := knownExchanges[name]
		if ex.RestURL == "" {
			ex.RestURL = def.RestURL
		}
		if ex.SpotURL == "" {
			ex.SpotURL = def.SpotURL
		}
		if ex.WsURL == "" {
			ex.WsURL = def.WsURL
		}
		if ex.RPS <= 0 {
			ex.RPS = def.RPS
		}
		if ex.RPS <= 0 {
			ex.RPS = 5
		}
		if ex.Burst <= 0 {
			ex.Burst = 1
		}
		cfg.Exchanges[name] = ex
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}

	if len(cfg.GetEnabledExchanges()) == 0 {
		return errors.New("no exchange enabled")
	}
	for _, name := range cfg.GetEnabledExchanges() {
		if strings.TrimSpace(cfg.Exchanges[name].RestURL) == "" {
			return fmt.Errorf("exchanges.%s.rest_url empty but enabled", name)
		}
	}

	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	if cfg.Derivatives.OIQuorum < 0 {
		return errors.New("derivatives.oi_quorum must not be negative")
	}
	for src, w := range cfg.Orderbook.Weights {
		if w < 0 {
			return fmt.Errorf("orderbook.weights.%s must not be negative", src)
		}
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// GetEnabledExchanges returns the enabled exchange names in sorted order.
func (c *Config) GetEnabledExchanges() []string {
	var out []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// OIQuorum is the configured quorum, or the number of enabled exchanges.
func (c *Config) OIQuorum() int {
	if c.Derivatives.OIQuorum > 0 {
		return c.Derivatives.OIQuorum
	}
	return len(c.GetEnabledExchanges())
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.App.RequestTimeoutSec) * time.Second
}

func (c *Config) RefreshEvery() time.Duration {
	return time.Duration(c.App.RefreshEverySec) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}
