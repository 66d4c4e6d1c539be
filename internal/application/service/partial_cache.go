package service

import (
	"context"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"

	"github.com/rs/zerolog/log"
)

// PartialCache 按 (key, source) 保存各交易所的分量，凑够 quorum 个来源才给出总和。
type PartialCache struct {
	store  port.ContributionStore
	quorum int
	maxAge time.Duration
	now    func() time.Time
}

type CacheOption func(*PartialCache)

// WithMaxAge ignores contributions older than d when reading. Zero disables it.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *PartialCache) { c.maxAge = d }
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *PartialCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewPartialCache(store port.ContributionStore, quorum int, opts ...CacheOption) *PartialCache {
	if quorum < 1 {
		quorum = 1
	}
	c := &PartialCache{store: store, quorum: quorum, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *PartialCache) Quorum() int { return c.quorum }

// Report replaces the source's previous value for key.
func (c *PartialCache) Report(ctx context.Context, key, source string, value float64, at time.Time) {
	err := c.store.Upsert(ctx, model.Contribution{Key: key, Source: source, Value: value, ReportedAt: at})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("source", source).Msg("cache report failed")
	}
}

// ReportSample reports metric from s under key when s carries it.
func (c *PartialCache) ReportSample(ctx context.Context, key, metric string, s model.SourceSample) bool {
	v, ok := s.Field(metric)
	if !ok {
		return false
	}
	at := s.FetchedAt
	if at.IsZero() {
		at = c.now()
	}
	c.Report(ctx, key, s.Source, v, at)
	return true
}

func (c *PartialCache) current(ctx context.Context, key string) map[string]float64 {
	list, err := c.store.List(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil
	}
	var cutoff time.Time
	if c.maxAge > 0 {
		cutoff = c.now().Add(-c.maxAge)
	}
	bySource := make(map[string]float64, len(list))
	for _, ct := range list {
		if !cutoff.IsZero() && ct.ReportedAt.Before(cutoff) {
			continue
		}
		bySource[ct.Source] = ct.Value
	}
	return bySource
}

// Read returns the sum over sources, or ok=false until quorum sources reported.
func (c *PartialCache) Read(ctx context.Context, key string) (float64, bool) {
	cur := c.current(ctx, key)
	if len(cur) < c.quorum {
		return 0, false
	}
	var sum float64
	for _, v := range cur {
		sum += v
	}
	return sum, true
}

func (c *PartialCache) Progress(ctx context.Context, key string) (have, need int) {
	return len(c.current(ctx, key)), c.quorum
}

// Prune drops contributions reported before cutoff.
func (c *PartialCache) Prune(ctx context.Context, cutoff time.Time) int64 {
	n, err := c.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("cache prune failed")
		return 0
	}
	return n
}
