package port

import (
	"context"
	"time"

	"mmon/internal/domain/model"
)

// SeriesRepository persists per-symbol points. Range returns points with
// ts >= from (all points when from is zero) ordered by ts ascending.
type SeriesRepository interface {
	Append(ctx context.Context, p model.Point) error
	AppendBatch(ctx context.Context, pts []model.Point) error
	Range(ctx context.Context, symbol string, from time.Time) ([]model.Point, error)
	Count(ctx context.Context, symbol string) (int64, error)
	// DeleteBefore removes points with ts < cutoff and reports how many went.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Connection management
	Close() error
}

// ContributionStore keeps the latest value per (key, source).
type ContributionStore interface {
	Upsert(ctx context.Context, c model.Contribution) error
	List(ctx context.Context, key string) ([]model.Contribution, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
