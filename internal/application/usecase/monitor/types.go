package monitor

import (
	"time"

	"mmon/internal/application/port"
	"mmon/internal/application/service"
	"mmon/internal/domain/model"
)

// ServiceDeps 监控服务的全部依赖，由 svc.ServiceContext 组装
type ServiceDeps struct {
	Symbols []string

	// 数据源
	Derivs   []port.SourceAdapter
	Balances []port.SourceAdapter
	Onchain  []port.SourceAdapter
	History  []port.HistorySource
	LiqFeeds []port.LiquidationFeed

	// 应用服务
	Store        *service.TimeSeriesStore
	Cache        *service.PartialCache
	Depth        *service.DepthService       // nil: orderbook disabled
	Liquidations *service.LiquidationService // nil: liquidations disabled
	BookWeights  map[string]float64          // weighted_mean weights for bid/ask/mid
	Publisher    port.Publisher              // nil: nothing downstream
	Sink         port.Sink

	// Assets summed into the holdings composites. Empty means model.BalanceAssets.
	CEXAssets     []string
	OnchainAssets []string

	RefreshEvery       time.Duration
	PrintEvery         time.Duration
	HoldingsEvery      time.Duration
	PruneEvery         time.Duration
	Retention          time.Duration
	CallTimeout        time.Duration
	MaxParallelSymbols int

	Backfill       bool
	BackfillWindow time.Duration
	BackfillStep   time.Duration
}

// SymbolView 一个交易对最近一轮的结果
type SymbolView struct {
	Symbol       string
	Composite    model.CompositeSample
	OITotal      model.Optional
	OIHave       int
	OINeed       int
	Depth        model.DepthProfile
	Liquidations model.LiquidationMap
	MidDir       Dir
	UpdatedAt    time.Time
}

// Reader is the read-only side of State. Every method returns copies.
type Reader interface {
	Symbols() []string
	View(symbol string) (SymbolView, bool)
	Holdings() map[string]map[string]float64
}

func withDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
