package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
	domainsvc "mmon/internal/domain/service"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const DefaultLiquidationHorizon = time.Hour

// LiquidationService 收集 websocket 推送的强平事件，并在读取时合并 REST 来源。
type LiquidationService struct {
	mu     sync.Mutex
	events map[string][]model.Liquidation

	sources []port.LiquidationSource
	horizon time.Duration
	binSize float64
	timeout time.Duration
	now     func() time.Time
}

func NewLiquidationService(sources []port.LiquidationSource, horizon time.Duration, binSize float64) *LiquidationService {
	if horizon <= 0 {
		horizon = DefaultLiquidationHorizon
	}
	if binSize <= 0 {
		binSize = domainsvc.DefaultLiquidationBin
	}
	return &LiquidationService{
		events:  make(map[string][]model.Liquidation),
		sources: sources,
		horizon: horizon,
		binSize: binSize,
		timeout: DefaultCallTimeout,
		now:     time.Now,
	}
}

// Run subscribes every feed and records events until ctx is done.
func (s *LiquidationService) Run(ctx context.Context, feeds []port.LiquidationFeed, symbols []string) error {
	var wg sync.WaitGroup
	for _, feed := range feeds {
		ch, err := feed.Subscribe(ctx, symbols)
		if err != nil {
			log.Error().Err(err).Str("feed", feed.Name()).Msg("liquidation feed subscribe failed")
			continue
		}
		log.Info().Str("feed", feed.Name()).Msg("liquidation feed started")
		wg.Add(1)
		go func(in <-chan model.Liquidation) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case e, ok := <-in:
					if !ok {
						return
					}
					s.Record(e)
				}
			}
		}(ch)
	}
	wg.Wait()
	return ctx.Err()
}

// Record stores one event and trims events older than the horizon.
func (s *LiquidationService) Record(e model.Liquidation) {
	sym := strings.ToUpper(e.Symbol)
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	cutoff := s.now().Add(-s.horizon)

	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.events[sym], e)
	i := 0
	for i < len(list) && list[i].Time.Before(cutoff) {
		i++
	}
	s.events[sym] = list[i:]
}

func (s *LiquidationService) recent(symbol string) []model.Liquidation {
	cutoff := s.now().Add(-s.horizon)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Liquidation
	for _, e := range s.events[strings.ToUpper(symbol)] {
		if !e.Time.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Map returns the binned liquidation volume for symbol over the horizon.
func (s *LiquidationService) Map(ctx context.Context, symbol string) model.LiquidationMap {
	events := s.recent(symbol)
	since := s.now().Add(-s.horizon)

	pulled := make([][]model.Liquidation, len(s.sources))
	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			type res struct {
				ev  []model.Liquidation
				err error
			}
			r, ok := boundedCall(ctx, s.timeout, func(cctx context.Context) res {
				ev, err := src.Recent(cctx, symbol, since)
				return res{ev, err}
			}, nil)
			switch {
			case !ok:
				log.Warn().Str("source", src.Name()).Str("symbol", symbol).Msg("liquidations timed out")
			case r.err != nil:
				log.Warn().Err(r.err).Str("source", src.Name()).Str("symbol", symbol).Msg("liquidations fetch failed")
			default:
				pulled[i] = r.ev
			}
			return nil
		})
	}
	_ = g.Wait()
	for _, p := range pulled {
		for _, e := range p {
			if !e.Time.Before(since) {
				events = append(events, e)
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return domainsvc.BinLiquidations(symbol, events, s.binSize, s.now())
}
