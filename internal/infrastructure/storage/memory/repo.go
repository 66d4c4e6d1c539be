// Package memory keeps series points and contributions in process memory.
// Used when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
)

// SeriesRepo is a simple in-memory implementation
type SeriesRepo struct {
	mu     sync.RWMutex
	points map[string][]model.Point
}

func NewSeriesRepo() *SeriesRepo {
	return &SeriesRepo{points: make(map[string][]model.Point)}
}

func copyPoint(p model.Point) model.Point {
	values := make(map[string]float64, len(p.Values))
	for k, v := range p.Values {
		values[k] = v
	}
	p.Values = values
	return p
}

func (r *SeriesRepo) Append(ctx context.Context, p model.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points[p.Symbol] = append(r.points[p.Symbol], copyPoint(p))
	return nil
}

func (r *SeriesRepo) AppendBatch(ctx context.Context, pts []model.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pts {
		r.points[p.Symbol] = append(r.points[p.Symbol], copyPoint(p))
	}
	return nil
}

func (r *SeriesRepo) Range(ctx context.Context, symbol string, from time.Time) ([]model.Point, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Point
	for _, p := range r.points[symbol] {
		if from.IsZero() || !p.Timestamp.Before(from) {
			out = append(out, copyPoint(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *SeriesRepo) Count(ctx context.Context, symbol string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.points[symbol])), nil
}

func (r *SeriesRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for sym, pts := range r.points {
		filtered := pts[:0]
		for _, p := range pts {
			if p.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			filtered = append(filtered, p)
		}
		r.points[sym] = filtered
	}
	return deleted, nil
}

func (r *SeriesRepo) Close() error { return nil }

// ContributionStore keeps the latest value per (key, source).
type ContributionStore struct {
	mu   sync.Mutex
	rows map[string]map[string]model.Contribution
}

func NewContributionStore() *ContributionStore {
	return &ContributionStore{rows: make(map[string]map[string]model.Contribution)}
}

func (s *ContributionStore) Upsert(ctx context.Context, c model.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource, ok := s.rows[c.Key]
	if !ok {
		bySource = make(map[string]model.Contribution)
		s.rows[c.Key] = bySource
	}
	bySource[c.Source] = c
	return nil
}

func (s *ContributionStore) List(ctx context.Context, key string) ([]model.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Contribution, 0, len(s.rows[key]))
	for _, c := range s.rows[key] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s *ContributionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, bySource := range s.rows {
		for src, c := range bySource {
			if c.ReportedAt.Before(cutoff) {
				delete(bySource, src)
				deleted++
			}
		}
		if len(bySource) == 0 {
			delete(s.rows, key)
		}
	}
	return deleted, nil
}

var (
	_ port.SeriesRepository  = (*SeriesRepo)(nil)
	_ port.ContributionStore = (*ContributionStore)(nil)
)
