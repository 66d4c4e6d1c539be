package monitor

import (
	"context"
	"errors"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/application/service"
	"mmon/internal/domain/model"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRefreshEvery  = time.Minute
	DefaultPrintEvery    = 5 * time.Minute
	DefaultHoldingsEvery = 10 * time.Minute
	DefaultPruneEvery    = 12 * time.Hour
	DefaultRetention     = 14 * 24 * time.Hour

	defaultParallelSymbols = 4
)

// OIKey is the partial-cache key holding per-venue open interest for symbol.
func OIKey(symbol string) string { return model.MetricOITotal + ":" + symbol }

func derivRules() map[string]model.Rule {
	return map[string]model.Rule{
		model.MetricFunding: model.Mean(),
		model.MetricBasis:   model.Mean(),
		model.MetricMark:    model.Mean(),
		model.MetricIndex:   model.Mean(),
		model.MetricOI:      model.Sum(),
	}
}

func bookRules(weights map[string]float64) map[string]model.Rule {
	return map[string]model.Rule{
		model.MetricBid:    model.WeightedMean(weights),
		model.MetricAsk:    model.WeightedMean(weights),
		model.MetricMid:    model.WeightedMean(weights),
		model.MetricBidQty: model.Sum(),
		model.MetricAskQty: model.Sum(),
	}
}

func sumRules(assets []string) map[string]model.Rule {
	if len(assets) == 0 {
		assets = model.BalanceAssets
	}
	rules := make(map[string]model.Rule, len(assets))
	for _, a := range assets {
		rules[a] = model.Sum()
	}
	return rules
}

type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter

	derivs  *service.Aggregator
	books   *service.Aggregator
	cex     *service.Aggregator
	onchain *service.Aggregator
	now     func() time.Time
}

func NewService(deps ServiceDeps) *Service {
	deps.RefreshEvery = withDefault(deps.RefreshEvery, DefaultRefreshEvery)
	deps.PrintEvery = withDefault(deps.PrintEvery, DefaultPrintEvery)
	deps.HoldingsEvery = withDefault(deps.HoldingsEvery, DefaultHoldingsEvery)
	deps.PruneEvery = withDefault(deps.PruneEvery, DefaultPruneEvery)
	deps.Retention = withDefault(deps.Retention, DefaultRetention)
	deps.CallTimeout = withDefault(deps.CallTimeout, service.DefaultCallTimeout)
	if deps.MaxParallelSymbols <= 0 {
		deps.MaxParallelSymbols = defaultParallelSymbols
	}

	s := &Service{
		deps: deps,
		st:   NewState(deps.Symbols),
		fmt:  NewFormatter(),
		now:  time.Now,
	}

	// OI 分量随到随写，包括超时后迟到的样本
	hook := func(smp model.SourceSample) {
		if deps.Cache == nil {
			return
		}
		deps.Cache.ReportSample(context.Background(), OIKey(smp.Symbol), model.MetricOI, smp)
	}
	s.derivs = service.NewAggregator(derivRules(),
		service.WithCallTimeout(deps.CallTimeout), service.WithSampleHook(hook))
	s.books = service.NewAggregator(bookRules(deps.BookWeights))
	s.cex = service.NewAggregator(sumRules(deps.CEXAssets), service.WithCallTimeout(deps.CallTimeout))
	s.onchain = service.NewAggregator(sumRules(deps.OnchainAssets), service.WithCallTimeout(deps.CallTimeout))
	return s
}

// State exposes the read side for other consumers.
func (s *Service) State() Reader { return s.st }

func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Derivs) == 0 {
		return errors.New("no derivatives sources")
	}
	if s.deps.Store == nil {
		return errors.New("no time-series store")
	}

	if s.deps.Backfill {
		s.backfill(ctx)
	}

	if s.deps.Liquidations != nil && len(s.deps.LiqFeeds) > 0 {
		go func() {
			if err := s.deps.Liquidations.Run(ctx, s.deps.LiqFeeds, s.st.Symbols()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("liquidation feeds stopped")
			}
		}()
	}

	refreshTicker := time.NewTicker(s.deps.RefreshEvery)
	defer refreshTicker.Stop()
	snapTicker := time.NewTicker(s.deps.PrintEvery)
	defer snapTicker.Stop()
	pruneTicker := time.NewTicker(s.deps.PruneEvery)
	defer pruneTicker.Stop()

	holdingsOn := len(s.deps.Balances) > 0 || len(s.deps.Onchain) > 0
	var holdingsC <-chan time.Time
	if holdingsOn {
		t := time.NewTicker(s.deps.HoldingsEvery)
		defer t.Stop()
		holdingsC = t.C
	}

	log.Info().
		Int("symbols", len(s.st.Symbols())).
		Int("derivs", len(s.deps.Derivs)).
		Int("balances", len(s.deps.Balances)).
		Int("onchain", len(s.deps.Onchain)).
		Dur("refresh", s.deps.RefreshEvery).
		Msg("monitor started")

	s.refresh(ctx)
	if holdingsOn {
		s.holdings(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.sink(func(sk port.Sink) error { return sk.NewLine() })
			return ctx.Err()

		case <-refreshTicker.C:
			s.refresh(ctx)

		case now := <-snapTicker.C:
			line := s.fmt.Render(s.st, RenderSnapshot)
			s.sink(func(sk port.Sink) error { return sk.WriteSnapshot(now, line) })

		case <-holdingsC:
			s.holdings(ctx)

		case <-pruneTicker.C:
			s.prune(ctx)
		}
	}
}

func (s *Service) sink(write func(port.Sink) error) {
	if s.deps.Sink == nil {
		return
	}
	if err := write(s.deps.Sink); err != nil {
		log.Debug().Err(err).Msg("sink write failed")
	}
}

// refresh 并发刷新所有交易对，结果统一由本 goroutine 写入 State
func (s *Service) refresh(ctx context.Context) {
	symbols := s.st.Symbols()
	views := make([]SymbolView, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.deps.MaxParallelSymbols)
	for i, sym := range symbols {
		g.Go(func() error {
			views[i] = s.refreshSymbol(ctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}
	for _, v := range views {
		s.st.Apply(v)
	}
	line := s.fmt.Render(s.st, RenderLive)
	s.sink(func(sk port.Sink) error { return sk.WriteLive(line) })
}

// refreshSymbol runs one round for symbol: derivatives, OI total, depth,
// liquidations. The merged point is persisted and published.
func (s *Service) refreshSymbol(ctx context.Context, symbol string) SymbolView {
	comp := s.derivs.Aggregate(ctx, symbol, s.deps.Derivs, nil)
	view := SymbolView{Symbol: symbol, UpdatedAt: comp.Timestamp}

	if s.deps.Cache != nil {
		key := OIKey(symbol)
		if total, ok := s.deps.Cache.Read(ctx, key); ok {
			view.OITotal = model.Some(total)
		}
		view.OIHave, view.OINeed = s.deps.Cache.Progress(ctx, key)
	}

	if s.deps.Depth != nil {
		mark := comp.Metric(model.MetricMark).Or(0)
		res := s.deps.Depth.Collect(ctx, symbol, mark)
		view.Depth = res.Profile
		comp = merge(comp, s.books.Combine(symbol, res.Samples, nil))
	}
	if v, ok := view.OITotal.Get(); ok {
		comp.Metrics[model.MetricOITotal] = model.Some(v)
		comp.Counts[model.MetricOITotal] = view.OIHave
	}
	view.Composite = comp

	if s.deps.Liquidations != nil {
		view.Liquidations = s.deps.Liquidations.Map(ctx, symbol)
	}

	s.deps.Store.Append(ctx, symbol, comp.Timestamp, comp.Values())
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishComposite(ctx, comp); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("publish composite failed")
		}
		if s.deps.Depth != nil {
			if err := s.deps.Publisher.PublishDepth(ctx, view.Depth); err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("publish depth failed")
			}
		}
	}
	return view
}

// merge adds extra's metrics into base. base keeps its round and source count.
func merge(base, extra model.CompositeSample) model.CompositeSample {
	out := base
	out.Metrics = make(map[string]model.Optional, len(base.Metrics)+len(extra.Metrics))
	out.Counts = make(map[string]int, len(base.Counts)+len(extra.Counts))
	for k, v := range base.Metrics {
		out.Metrics[k] = v
	}
	for k, n := range base.Counts {
		out.Counts[k] = n
	}
	for k, v := range extra.Metrics {
		out.Metrics[k] = v
		out.Counts[k] = extra.Counts[k]
	}
	return out
}

// holdings 拉取交易所余额和链上余额，按资产求和后落库
func (s *Service) holdings(ctx context.Context) {
	if len(s.deps.Balances) > 0 {
		round, samples := s.cex.Collect(ctx, model.SymbolCEX, s.deps.Balances)
		comp := s.cex.Combine(model.SymbolCEX, samples, nil)
		if comp.ContributingSources > 0 {
			s.deps.Store.Append(ctx, model.SymbolCEX, comp.Timestamp, comp.Values())
			s.st.SetHoldings(model.SymbolCEX, comp.Values())
		}
		for _, smp := range samples {
			if !smp.OK {
				continue
			}
			key := model.SymbolCEX + ":" + smp.Source
			s.deps.Store.Append(ctx, key, smp.FetchedAt, smp.Fields())
			s.st.SetHoldings(key, smp.Fields())
		}
		log.Info().Str("round", round).Int("contributors", comp.ContributingSources).
			Int("sources", len(samples)).Msg("exchange balances refreshed")
	}

	if len(s.deps.Onchain) > 0 {
		comp := s.onchain.Aggregate(ctx, model.SymbolOnchain, s.deps.Onchain, nil)
		if comp.ContributingSources > 0 {
			s.deps.Store.Append(ctx, model.SymbolOnchain, comp.Timestamp, comp.Values())
			s.st.SetHoldings(model.SymbolOnchain, comp.Values())
		}
		log.Info().Str("round", comp.Round).Int("contributors", comp.ContributingSources).
			Int("sources", len(s.deps.Onchain)).Msg("onchain balances refreshed")
	}
}

// backfill seeds each symbol from the first history source that returns data.
func (s *Service) backfill(ctx context.Context) {
	if len(s.deps.History) == 0 {
		log.Info().Msg("backfill skipped, no history source")
		return
	}
	for _, sym := range s.st.Symbols() {
		for _, src := range s.deps.History {
			if ctx.Err() != nil {
				return
			}
			if n := s.deps.Store.Backfill(ctx, sym, src, s.deps.BackfillWindow, s.deps.BackfillStep); n > 0 {
				break
			}
		}
	}
}

func (s *Service) prune(ctx context.Context) {
	n := s.deps.Store.Prune(ctx, s.deps.Retention)
	var m int64
	if s.deps.Cache != nil {
		m = s.deps.Cache.Prune(ctx, s.now().Add(-s.deps.Retention))
	}
	log.Info().Int64("points", n).Int64("contributions", m).Dur("retention", s.deps.Retention).Msg("retention prune done")
}
