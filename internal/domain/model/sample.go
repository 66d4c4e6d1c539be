package model

import (
	"sort"
	"time"
)

// ========== Metric names ==========

const (
	MetricFunding = "funding" // 资金费率，统一为每 8 小时
	MetricBasis   = "basis"   // mark - index
	MetricOI      = "oi"      // 未平仓量（币本位）
	MetricMark    = "mark"
	MetricIndex   = "index"

	MetricBid    = "bid"
	MetricAsk    = "ask"
	MetricMid    = "mid"
	MetricBidQty = "bid_qty"
	MetricAskQty = "ask_qty"
	MetricVolume = "volume"

	// MetricOITotal is the quorum-gated open interest sum across venues.
	MetricOITotal = "oi_total"
)

// Balance assets tracked by holdings adapters.
var BalanceAssets = []string{"BTC", "ETH", "USDT", "USD", "USDC"}

// 持仓数据的伪交易对；单个交易所为 "cex:<venue>"
const (
	SymbolCEX     = "cex"
	SymbolOnchain = "onchain"
)

// ========== Source sample ==========

// SourceSample 单个数据源一次抓取的结果。构造后不可修改。
type SourceSample struct {
	Source    string
	Symbol    string
	FetchedAt time.Time
	OK        bool

	fields map[string]float64
}

// NewSample builds a successful sample. The fields map is copied.
func NewSample(source, symbol string, fields map[string]float64, at time.Time) SourceSample {
	cp := make(map[string]float64, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return SourceSample{Source: source, Symbol: symbol, FetchedAt: at, OK: true, fields: cp}
}

// FailedSample marks a source that could not produce data this round.
func FailedSample(source, symbol string, at time.Time) SourceSample {
	return SourceSample{Source: source, Symbol: symbol, FetchedAt: at}
}

func (s SourceSample) Field(name string) (float64, bool) {
	if !s.OK {
		return 0, false
	}
	v, ok := s.fields[name]
	return v, ok
}

func (s SourceSample) Fields() map[string]float64 {
	out := make(map[string]float64, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// FieldNames returns the sample's field names in sorted order.
func (s SourceSample) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for k := range s.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ========== Combination rules ==========

type RuleKind int

const (
	RuleMean RuleKind = iota
	RuleSum
	RuleWeightedMean
)

func (k RuleKind) String() string {
	switch k {
	case RuleMean:
		return "mean"
	case RuleSum:
		return "sum"
	case RuleWeightedMean:
		return "weighted_mean"
	}
	return "unknown"
}

// Rule 指标的合并规则。WeightedMean 的 Weights 以 source 名为键，缺省权重 1.0。
type Rule struct {
	Kind    RuleKind
	Weights map[string]float64
}

func Mean() Rule { return Rule{Kind: RuleMean} }

func Sum() Rule { return Rule{Kind: RuleSum} }

func WeightedMean(weights map[string]float64) Rule {
	cp := make(map[string]float64, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	return Rule{Kind: RuleWeightedMean, Weights: cp}
}

// ========== Composite ==========

// CompositeSample 一轮聚合的结果
type CompositeSample struct {
	Round               string              `json:"round,omitempty"`
	Symbol              string              `json:"symbol"`
	Metrics             map[string]Optional `json:"metrics"`
	Counts              map[string]int      `json:"counts"`
	ContributingSources int                 `json:"contributing_sources"`
	Timestamp           time.Time           `json:"ts"`
}

func (c CompositeSample) Metric(name string) Optional {
	return c.Metrics[name]
}

// Values flattens the defined metrics; undefined metrics are omitted.
func (c CompositeSample) Values() map[string]float64 {
	out := make(map[string]float64, len(c.Metrics))
	for k, m := range c.Metrics {
		if v, ok := m.Get(); ok {
			out[k] = v
		}
	}
	return out
}
