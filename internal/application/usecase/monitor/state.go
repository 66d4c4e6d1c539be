package monitor

import (
	"strings"
	"sync"

	"mmon/internal/domain/model"
)

type Dir int

const (
	DirSame Dir = 0
	DirUp   Dir = +1
	DirDown Dir = -1
)

// State 只由刷新循环写入；读者通过 Reader 拿到副本
type State struct {
	mu sync.RWMutex

	order    []string
	syms     map[string]*SymbolView
	holdings map[string]map[string]float64
}

func NewState(symbols []string) *State {
	order := make([]string, 0, len(symbols))
	syms := make(map[string]*SymbolView, len(symbols))
	for _, sym := range symbols {
		u := strings.ToUpper(strings.TrimSpace(sym))
		if u == "" {
			continue
		}
		if _, dup := syms[u]; dup {
			continue
		}
		order = append(order, u)
		syms[u] = nil
	}
	return &State{order: order, syms: syms, holdings: make(map[string]map[string]float64)}
}

func (s *State) Symbols() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Apply 写入一个交易对的新结果，并根据上一轮的 mid 计算方向。
// 未知交易对返回 false。
func (s *State) Apply(v SymbolView) bool {
	sym := strings.ToUpper(strings.TrimSpace(v.Symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.syms[sym]
	if !known {
		return false
	}
	v.Symbol = sym
	v.MidDir = DirSame
	if prev != nil {
		cur, okCur := v.Composite.Metric(model.MetricMid).Get()
		old, okOld := prev.Composite.Metric(model.MetricMid).Get()
		if okCur && okOld {
			switch {
			case cur > old:
				v.MidDir = DirUp
			case cur < old:
				v.MidDir = DirDown
			}
		}
	}
	cp := copyView(v)
	s.syms[sym] = &cp
	return true
}

// View returns a copy of the latest result for symbol; ok=false before the
// first round finished.
func (s *State) View(symbol string) (SymbolView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.syms[strings.ToUpper(strings.TrimSpace(symbol))]
	if v == nil {
		return SymbolView{}, false
	}
	return copyView(*v), true
}

// SetHoldings replaces the balances stored under key (cex, cex:<venue>, onchain).
func (s *State) SetHoldings(key string, values map[string]float64) {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	s.mu.Lock()
	s.holdings[key] = cp
	s.mu.Unlock()
}

func (s *State) Holdings() map[string]map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]float64, len(s.holdings))
	for key, values := range s.holdings {
		cp := make(map[string]float64, len(values))
		for k, v := range values {
			cp[k] = v
		}
		out[key] = cp
	}
	return out
}

func copyView(v SymbolView) SymbolView {
	c := v.Composite
	c.Metrics = make(map[string]model.Optional, len(v.Composite.Metrics))
	for k, m := range v.Composite.Metrics {
		c.Metrics[k] = m
	}
	c.Counts = make(map[string]int, len(v.Composite.Counts))
	for k, n := range v.Composite.Counts {
		c.Counts[k] = n
	}
	v.Composite = c

	v.Depth.Buckets = append([]model.PriceBucket(nil), v.Depth.Buckets...)
	v.Liquidations.Prices = append([]float64(nil), v.Liquidations.Prices...)
	v.Liquidations.Volumes = append([]float64(nil), v.Liquidations.Volumes...)
	return v
}

var _ Reader = (*State)(nil)
