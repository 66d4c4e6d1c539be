package svc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mmon/internal/infrastructure/config"
	"mmon/internal/infrastructure/storage/memory"
	sqliterepo "mmon/internal/infrastructure/storage/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Symbols.List = []string{"BTCUSDT"}
	cfg.App.RequestTimeoutSec = 5
	cfg.Orderbook.Enabled = true
	cfg.Orderbook.Depth = 10
	cfg.Orderbook.Limit = 50
	cfg.Liquidations.Enabled = true
	cfg.Liquidations.HorizonMin = 60
	cfg.Holdings.Enabled = true
	cfg.Exchanges = map[string]config.ExchangeConfig{
		"binance": {Enabled: true, RestURL: "http://127.0.0.1:1", WsURL: "ws://127.0.0.1:1/ws", RPS: 5, Burst: 1},
		"okx":     {Enabled: true, RestURL: "http://127.0.0.1:1", RPS: 5, Burst: 1},
		"kraken":  {Enabled: true, RestURL: "http://127.0.0.1:1"},
		"bybit":   {Enabled: false, RestURL: "http://127.0.0.1:1"},
	}
	return cfg
}

func TestNewWiresVenuesAndSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "mmon.db")

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sc.Close()

	if len(sc.venues) != 2 {
		t.Fatalf("venues = %d, unknown and disabled exchanges must be skipped", len(sc.venues))
	}
	if _, ok := sc.GetSeriesRepo().(*sqliterepo.Repo); !ok {
		t.Fatalf("series repo = %T, want sqlite", sc.GetSeriesRepo())
	}
	if _, ok := sc.contributions.(*sqliterepo.ContributionRepo); !ok {
		t.Fatalf("contributions = %T, want sqlite oi_cache", sc.contributions)
	}
	if sc.Depth == nil || sc.Liquidations == nil {
		t.Fatalf("depth and liquidations should be enabled")
	}

	deps := sc.BuildMonitorServiceDeps()
	if len(deps.Derivs) != 2 || len(deps.LiqFeeds) != 1 || len(deps.History) != 1 {
		t.Fatalf("derivs=%d feeds=%d history=%d", len(deps.Derivs), len(deps.LiqFeeds), len(deps.History))
	}
	if len(deps.Balances) != 0 {
		t.Fatalf("balances need credentials, got %d", len(deps.Balances))
	}
	if deps.Publisher != nil {
		t.Fatalf("no redis, publisher must be nil")
	}
	if sc.Cache.Quorum() != 3 {
		// 按启用的交易所数量（含未注册的）
		t.Fatalf("quorum = %d", sc.Cache.Quorum())
	}
}

func TestNewFallsBackToMemory(t *testing.T) {
	sc, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sc.Close()
	if _, ok := sc.GetSeriesRepo().(*memory.SeriesRepo); !ok {
		t.Fatalf("series repo = %T, want memory", sc.GetSeriesRepo())
	}
	if _, ok := sc.contributions.(*memory.ContributionStore); !ok {
		t.Fatalf("contributions = %T, want memory", sc.contributions)
	}
}

func TestNewWithoutUsableVenues(t *testing.T) {
	cfg := testConfig(t)
	cfg.Exchanges = map[string]config.ExchangeConfig{"kraken": {Enabled: true}}
	if _, err := New(context.Background(), cfg); !errors.Is(err, ErrNoSourcesEnabled) {
		t.Fatalf("err = %v, want ErrNoSourcesEnabled", err)
	}
}

func TestNewStorageFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	if _, err := New(context.Background(), cfg); !errors.Is(err, ErrStorageInitFailed) {
		t.Fatalf("err = %v, want ErrStorageInitFailed", err)
	}
}
