package monitor

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/application/service"
	"mmon/internal/domain/model"
	domainsvc "mmon/internal/domain/service"
	"mmon/internal/infrastructure/storage/memory"
)

type fakeAdapter struct {
	name   string
	fields map[string]float64
	fail   bool
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	if f.fail {
		return model.FailedSample(f.name, symbol, time.Now())
	}
	return model.NewSample(f.name, symbol, f.fields, time.Now())
}

type fakeBook struct {
	name string
	bid  float64
	ask  float64
}

func (f *fakeBook) Name() string { return f.name }

func (f *fakeBook) FetchBook(ctx context.Context, symbol string) (model.Book, bool) {
	return model.Book{
		Source: f.name,
		Symbol: symbol,
		Bids:   []model.PriceLevel{{Price: f.bid, Quantity: 1, Side: model.Buy}},
		Asks:   []model.PriceLevel{{Price: f.ask, Quantity: 2, Side: model.Sell}},
	}, true
}

type captureSink struct {
	mu    sync.Mutex
	live  []string
	snaps []string
}

func (s *captureSink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = append(s.live, line)
	return nil
}

func (s *captureSink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, line)
	return nil
}

func (s *captureSink) NewLine() error { return nil }

func (s *captureSink) lastLive() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.live) == 0 {
		return ""
	}
	return s.live[len(s.live)-1]
}

type capturePublisher struct {
	mu         sync.Mutex
	composites []model.CompositeSample
	depths     int
}

func (p *capturePublisher) PublishComposite(ctx context.Context, c model.CompositeSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.composites = append(p.composites, c)
	return nil
}

func (p *capturePublisher) PublishDepth(ctx context.Context, d model.DepthProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.depths++
	return nil
}

func derivAdapters() []port.SourceAdapter {
	return []port.SourceAdapter{
		&fakeAdapter{name: "binance", fields: map[string]float64{"funding": 0.0001, "mark": 100, "oi": 500}},
		&fakeAdapter{name: "bybit", fields: map[string]float64{"funding": 0.0003, "mark": 100, "oi": 700}},
		&fakeAdapter{name: "okx", fail: true},
	}
}

func newTestDeps(repo port.SeriesRepository, quorum int) ServiceDeps {
	return ServiceDeps{
		Symbols: []string{"BTCUSDT"},
		Derivs:  derivAdapters(),
		Store:   service.NewTimeSeriesStore(repo),
		Cache:   service.NewPartialCache(memory.NewContributionStore(), quorum),
	}
}

func TestRefreshSymbolPersistsMergedPoint(t *testing.T) {
	repo := memory.NewSeriesRepo()
	deps := newTestDeps(repo, 2)
	deps.Depth = service.NewDepthService([]port.BookSource{
		&fakeBook{name: "binance", bid: 99.5, ask: 100.5},
		&fakeBook{name: "bybit", bid: 99.7, ask: 100.3},
	}, domainsvc.NewBinner(10, nil), time.Second)
	pub := &capturePublisher{}
	deps.Publisher = pub
	svc := NewService(deps)

	ctx := context.Background()
	v := svc.refreshSymbol(ctx, "BTCUSDT")

	if f, ok := v.Composite.Metric(model.MetricFunding).Get(); !ok || math.Abs(f-0.0002) > 1e-12 {
		t.Fatalf("funding = %v", v.Composite.Metric(model.MetricFunding))
	}
	if total, ok := v.OITotal.Get(); !ok || total != 1200 {
		t.Fatalf("oi total = %v (have %d need %d)", v.OITotal, v.OIHave, v.OINeed)
	}
	if mid, ok := v.Composite.Metric(model.MetricMid).Get(); !ok || math.Abs(mid-100) > 1e-9 {
		t.Fatalf("mid = %v", v.Composite.Metric(model.MetricMid))
	}
	if q, _ := v.Composite.Metric(model.MetricAskQty).Get(); q != 4 {
		t.Errorf("ask_qty = %v, want 4", q)
	}
	if v.Depth.Venues != 2 {
		t.Errorf("depth venues = %d", v.Depth.Venues)
	}

	pts, _ := repo.Range(ctx, "BTCUSDT", time.Time{})
	if len(pts) != 1 {
		t.Fatalf("points = %d", len(pts))
	}
	for _, k := range []string{"funding", "mark", "oi", "oi_total", "mid", "bid_qty"} {
		if _, ok := pts[0].Values[k]; !ok {
			t.Errorf("stored point missing %s: %v", k, pts[0].Values)
		}
	}
	if _, ok := pts[0].Values["index"]; ok {
		t.Errorf("index was never reported and must stay absent")
	}
	if len(pub.composites) != 1 || pub.depths != 1 {
		t.Errorf("published %d composites, %d depths", len(pub.composites), pub.depths)
	}
}

func TestRefreshSymbolWithoutQuorum(t *testing.T) {
	repo := memory.NewSeriesRepo()
	svc := NewService(newTestDeps(repo, 3))

	v := svc.refreshSymbol(context.Background(), "BTCUSDT")
	if v.OITotal.Valid() {
		t.Fatalf("oi total must stay incomplete with 2 of 3 venues")
	}
	if v.OIHave != 2 || v.OINeed != 3 {
		t.Fatalf("progress = %d/%d", v.OIHave, v.OINeed)
	}
	pts, _ := repo.Range(context.Background(), "BTCUSDT", time.Time{})
	if _, ok := pts[0].Values["oi_total"]; ok {
		t.Fatalf("incomplete oi total must not be persisted")
	}
}

func TestHoldingsWritesTotalsAndPerVenue(t *testing.T) {
	repo := memory.NewSeriesRepo()
	deps := newTestDeps(repo, 1)
	deps.Balances = []port.SourceAdapter{
		&fakeAdapter{name: "binance", fields: map[string]float64{"BTC": 1, "USDT": 100}},
		&fakeAdapter{name: "bybit", fields: map[string]float64{"BTC": 0.5, "USDT": 0}},
		&fakeAdapter{name: "okx", fail: true},
	}
	deps.Onchain = []port.SourceAdapter{
		&fakeAdapter{name: "eth:0xabc", fields: map[string]float64{"ETH": 2}},
		&fakeAdapter{name: "erc20:USDC:0xabc", fields: map[string]float64{"USDC": 10}},
	}
	deps.OnchainAssets = []string{"ETH", "BTC", "USDC"}
	svc := NewService(deps)

	ctx := context.Background()
	svc.holdings(ctx)

	cex, _ := repo.Range(ctx, "cex", time.Time{})
	if len(cex) != 1 || cex[0].Values["BTC"] != 1.5 || cex[0].Values["USDT"] != 100 {
		t.Fatalf("cex = %+v", cex)
	}
	if n, _ := repo.Count(ctx, "cex:binance"); n != 1 {
		t.Errorf("cex:binance count = %d", n)
	}
	if n, _ := repo.Count(ctx, "cex:okx"); n != 0 {
		t.Errorf("failed venue must not be stored")
	}
	chain, _ := repo.Range(ctx, "onchain", time.Time{})
	if len(chain) != 1 || chain[0].Values["ETH"] != 2 || chain[0].Values["USDC"] != 10 {
		t.Fatalf("onchain = %+v", chain)
	}
	if _, ok := chain[0].Values["BTC"]; ok {
		t.Errorf("BTC had no onchain source and must be absent")
	}

	h := svc.State().Holdings()
	if h["cex"]["BTC"] != 1.5 || h["cex:bybit"]["BTC"] != 0.5 {
		t.Errorf("holdings state = %+v", h)
	}
}

func TestPruneDropsOldPointsAndContributions(t *testing.T) {
	repo := memory.NewSeriesRepo()
	contrib := memory.NewContributionStore()
	deps := newTestDeps(repo, 1)
	deps.Cache = service.NewPartialCache(contrib, 1)
	deps.Retention = time.Hour
	svc := NewService(deps)

	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)
	_ = repo.Append(ctx, model.Point{Symbol: "BTCUSDT", Timestamp: old, Values: map[string]float64{"funding": 1}})
	_ = repo.Append(ctx, model.Point{Symbol: "BTCUSDT", Timestamp: time.Now(), Values: map[string]float64{"funding": 2}})
	deps.Cache.Report(ctx, OIKey("BTCUSDT"), "binance", 1, old)

	svc.prune(ctx)

	if n, _ := repo.Count(ctx, "BTCUSDT"); n != 1 {
		t.Fatalf("points after prune = %d", n)
	}
	if list, _ := contrib.List(ctx, OIKey("BTCUSDT")); len(list) != 0 {
		t.Fatalf("old contribution kept: %+v", list)
	}
}

func TestRunRefreshesAndStops(t *testing.T) {
	repo := memory.NewSeriesRepo()
	deps := newTestDeps(repo, 2)
	deps.RefreshEvery = 10 * time.Millisecond
	sink := &captureSink{}
	deps.Sink = sink
	svc := NewService(deps)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v", err)
	}

	if n, _ := repo.Count(context.Background(), "BTCUSDT"); n < 2 {
		t.Fatalf("expected several refresh rounds, got %d points", n)
	}
	if line := sink.lastLive(); !strings.Contains(line, "BTCUSDT") || !strings.Contains(line, "OI:1200") {
		t.Fatalf("live line = %q", line)
	}
}

func TestRunNeedsDerivatives(t *testing.T) {
	svc := NewService(ServiceDeps{Symbols: []string{"BTCUSDT"}, Store: service.NewTimeSeriesStore(memory.NewSeriesRepo())})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected error without derivatives sources")
	}
}
