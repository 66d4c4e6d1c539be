package service

import (
	"context"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
	domainsvc "mmon/internal/domain/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SampleHook receives every sample as it arrives, including samples that
// arrive after their round already timed out.
type SampleHook func(model.SourceSample)

// Aggregator 并发调用所有数据源并按指标规则合并
type Aggregator struct {
	rules   map[string]model.Rule
	timeout time.Duration
	hook    SampleHook
	now     func() time.Time
}

type AggregatorOption func(*Aggregator)

func WithCallTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithSampleHook(h SampleHook) AggregatorOption {
	return func(a *Aggregator) { a.hook = h }
}

func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator fixes the per-metric combination rules for its lifetime.
func NewAggregator(rules map[string]model.Rule, opts ...AggregatorOption) *Aggregator {
	cp := make(map[string]model.Rule, len(rules))
	for k, v := range rules {
		cp[k] = v
	}
	a := &Aggregator{rules: cp, timeout: DefaultCallTimeout, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Aggregator) Rules() map[string]model.Rule {
	out := make(map[string]model.Rule, len(a.rules))
	for k, v := range a.rules {
		out[k] = v
	}
	return out
}

// Aggregate fans out to every adapter and waits until each one has returned or
// timed out. One failure never cancels the others.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string, adapters []port.SourceAdapter, weights map[string]float64) model.CompositeSample {
	round, samples := a.Collect(ctx, symbol, adapters)

	c := a.Combine(symbol, samples, weights)
	c.Round = round

	ev := log.Debug()
	if c.ContributingSources == 0 && len(adapters) > 0 {
		ev = log.Warn()
	}
	ev.Str("round", round).
		Str("symbol", symbol).
		Int("sources", len(adapters)).
		Int("contributors", c.ContributingSources).
		Msg("aggregation round done")
	return c
}

// Collect runs one fan-out round and returns the round id and every sample in
// adapter order. Timed-out adapters come back as failed samples.
func (a *Aggregator) Collect(ctx context.Context, symbol string, adapters []port.SourceAdapter) (string, []model.SourceSample) {
	round := uuid.NewString()
	samples := make([]model.SourceSample, len(adapters))

	var g errgroup.Group
	for i, ad := range adapters {
		g.Go(func() error {
			samples[i] = a.fetch(ctx, ad, symbol, round)
			return nil
		})
	}
	_ = g.Wait()
	return round, samples
}

// Combine applies the configured rules to already collected samples.
func (a *Aggregator) Combine(symbol string, samples []model.SourceSample, weights map[string]float64) model.CompositeSample {
	return domainsvc.Combine(symbol, samples, a.rules, weights, a.now())
}

func (a *Aggregator) fetch(ctx context.Context, ad port.SourceAdapter, symbol, round string) model.SourceSample {
	name := ad.Name()
	s, ok := boundedCall(ctx, a.timeout, func(cctx context.Context) model.SourceSample {
		return safeFetch(cctx, ad, symbol, a.now)
	}, func(late model.SourceSample) {
		log.Debug().Str("round", round).Str("source", name).Bool("ok", late.OK).Msg("late sample")
		a.emit(late)
	})
	if !ok {
		log.Warn().Str("round", round).Str("source", name).Str("symbol", symbol).
			Dur("timeout", a.timeout).Msg("source timed out")
		return model.FailedSample(name, symbol, a.now())
	}
	a.emit(s)
	return s
}

func (a *Aggregator) emit(s model.SourceSample) {
	if a.hook != nil && s.OK {
		a.hook(s)
	}
}

func safeFetch(ctx context.Context, ad port.SourceAdapter, symbol string, now func() time.Time) (s model.SourceSample) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("source", ad.Name()).Interface("panic", r).Msg("source adapter panicked")
			s = model.FailedSample(ad.Name(), symbol, now())
		}
	}()
	return ad.Fetch(ctx, symbol)
}
