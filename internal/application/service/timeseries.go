package service

import (
	"context"
	"sort"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
	domainsvc "mmon/internal/domain/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBackfillWindow = 24 * time.Hour
	DefaultBackfillStep   = 5 * time.Minute

	// 存储层按毫秒保存时间戳，写入和查询截止时间都对齐到该精度
	tsResolution = time.Millisecond
)

// TimeSeriesStore 包装 SeriesRepository：读失败返回空，写失败只记日志。
type TimeSeriesStore struct {
	repo port.SeriesRepository
	now  func() time.Time
}

type StoreOption func(*TimeSeriesStore)

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *TimeSeriesStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTimeSeriesStore(repo port.SeriesRepository, opts ...StoreOption) *TimeSeriesStore {
	s := &TimeSeriesStore{repo: repo, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append stores one point. Ordering is not enforced.
func (s *TimeSeriesStore) Append(ctx context.Context, symbol string, ts time.Time, values map[string]float64) {
	if len(values) == 0 {
		return
	}
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	p := model.Point{Symbol: symbol, Timestamp: ts.UTC().Truncate(tsResolution), Values: cp}
	if err := s.repo.Append(ctx, p); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("append point failed")
	}
}

// Query returns points with ts >= now-since in ascending order, or the full
// history when since is nil.
func (s *TimeSeriesStore) Query(ctx context.Context, symbol string, since *time.Duration) []model.Point {
	var from time.Time
	if since != nil {
		from = s.now().Add(-*since).Truncate(tsResolution)
	}
	pts, err := s.repo.Range(ctx, symbol, from)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("query points failed")
		return []model.Point{}
	}
	out := pts[:0]
	for _, p := range pts {
		if from.IsZero() || !p.Timestamp.Before(from) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *TimeSeriesStore) QueryWindow(ctx context.Context, symbol string, w model.Window) []model.Point {
	return s.Query(ctx, symbol, w.Since())
}

// Backfill seeds an empty symbol from src. Returns the number of points written;
// zero when history already exists or anything failed.
func (s *TimeSeriesStore) Backfill(ctx context.Context, symbol string, src port.HistorySource, window, step time.Duration) int {
	if src == nil {
		return 0
	}
	if window <= 0 {
		window = DefaultBackfillWindow
	}
	if step <= 0 {
		step = DefaultBackfillStep
	}

	n, err := s.repo.Count(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("backfill: count failed")
		return 0
	}
	if n > 0 {
		log.Debug().Str("symbol", symbol).Int64("points", n).Msg("backfill skipped, history present")
		return 0
	}

	batch := uuid.NewString()
	to := s.now().UTC()
	from := to.Add(-window)
	series, err := src.History(ctx, symbol, from, to, step)
	if err != nil {
		log.Warn().Err(err).Str("batch", batch).Str("source", src.Name()).Str("symbol", symbol).Msg("backfill: history fetch failed")
		return 0
	}

	pts := domainsvc.Align(symbol, series, domainsvc.Grid(from, to, step), step)
	if len(pts) == 0 {
		return 0
	}
	if err := s.repo.AppendBatch(ctx, pts); err != nil {
		log.Error().Err(err).Str("batch", batch).Str("symbol", symbol).Msg("backfill: insert failed")
		return 0
	}
	log.Info().Str("batch", batch).Str("symbol", symbol).Int("points", len(pts)).Msg("✓ backfill done")
	return len(pts)
}

// Prune deletes points with ts < now-horizon.
func (s *TimeSeriesStore) Prune(ctx context.Context, horizon time.Duration) int64 {
	cutoff := s.now().Add(-horizon).Truncate(tsResolution)
	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("prune failed")
		return 0
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned old points")
	}
	return n
}
