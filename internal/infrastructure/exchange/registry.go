package exchange

import (
	"sort"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/infrastructure/config"

	"github.com/rs/zerolog/log"
)

// Venue 一个交易所能提供的全部数据源。不支持的能力保持为 nil。
type Venue struct {
	Name      string
	Derivs    port.SourceAdapter
	Book      port.BookSource
	Balances  port.SourceAdapter // 仅在配置了凭证时创建
	History   port.HistorySource
	LiqFeed   port.LiquidationFeed
	LiqSource port.LiquidationSource
}

// Options are the per-process settings shared by every venue.
type Options struct {
	BookLimit int
	Timeout   time.Duration
}

// Factory builds a venue from its config section.
type Factory func(cfg config.ExchangeConfig, opts Options) *Venue

// registry maps exchange names to their factories
var registry = make(map[string]Factory)

// Register 注册交易所工厂，由各交易所包的 init() 调用
func Register(exchangeName string, factory Factory) {
	if factory == nil {
		log.Warn().Str("exchange", exchangeName).Msg("invalid venue factory")
		return
	}
	if _, exists := registry[exchangeName]; exists {
		log.Warn().Str("exchange", exchangeName).Msg("venue factory already registered, overwriting")
	}
	registry[exchangeName] = factory
}

// Get 获取已注册的交易所工厂
func Get(exchangeName string) (Factory, bool) {
	factory, ok := registry[exchangeName]
	return factory, ok
}

// Registered returns the registered exchange names, sorted.
func Registered() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
