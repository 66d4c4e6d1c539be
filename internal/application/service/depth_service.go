package service

import (
	"context"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
	domainsvc "mmon/internal/domain/service"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DepthResult is one order-book round: the binned profile plus a per-venue
// top-of-book sample for the composite.
type DepthResult struct {
	Profile model.DepthProfile
	Samples []model.SourceSample
}

// DepthService 拉取各交易所订单簿并分桶
type DepthService struct {
	sources []port.BookSource
	binner  *domainsvc.Binner
	timeout time.Duration
	now     func() time.Time
}

func NewDepthService(sources []port.BookSource, binner *domainsvc.Binner, timeout time.Duration) *DepthService {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &DepthService{sources: sources, binner: binner, timeout: timeout, now: time.Now}
}

// Collect fetches every book concurrently and bins the ones that arrived.
// mark <= 0 falls back to the first book's mid.
func (s *DepthService) Collect(ctx context.Context, symbol string, mark float64) DepthResult {
	books := make([]model.Book, len(s.sources))
	oks := make([]bool, len(s.sources))

	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			type res struct {
				b  model.Book
				ok bool
			}
			r, done := boundedCall(ctx, s.timeout, func(cctx context.Context) res {
				b, ok := src.FetchBook(cctx, symbol)
				return res{b, ok}
			}, nil)
			if !done {
				log.Warn().Str("source", src.Name()).Str("symbol", symbol).Msg("order book timed out")
				return nil
			}
			books[i], oks[i] = r.b, r.ok
			return nil
		})
	}
	_ = g.Wait()

	var got []model.Book
	var samples []model.SourceSample
	now := s.now()
	for i, src := range s.sources {
		if !oks[i] || books[i].Empty() {
			samples = append(samples, model.FailedSample(src.Name(), symbol, now))
			continue
		}
		b := books[i]
		if b.Source == "" {
			b.Source = src.Name()
		}
		if b.FetchedAt.IsZero() {
			b.FetchedAt = now
		}
		got = append(got, b)
		samples = append(samples, b.Sample(symbol))
	}

	prof := s.binner.Bin(symbol, got, mark)
	log.Debug().Str("symbol", symbol).Int("venues", prof.Venues).Int("buckets", len(prof.Buckets)).
		Int("dropped", prof.Dropped).Msg("depth binned")
	return DepthResult{Profile: prof, Samples: samples}
}
