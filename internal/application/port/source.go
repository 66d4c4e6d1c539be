package port

import (
	"context"
	"time"

	"mmon/internal/domain/model"
)

// SourceAdapter fetches one venue's view of a symbol. Fetch never returns an
// error; failures come back as a sample with OK=false.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context, symbol string) model.SourceSample
}

// BookSource returns one venue's order-book levels. ok=false on any failure.
type BookSource interface {
	Name() string
	FetchBook(ctx context.Context, symbol string) (model.Book, bool)
}

// HistorySource serves bulk history for backfill, separate from the live adapters.
type HistorySource interface {
	Name() string
	History(ctx context.Context, symbol string, from, to time.Time, step time.Duration) ([]model.Series, error)
}

// LiquidationFeed 推送式强平数据（websocket）
type LiquidationFeed interface {
	Name() string
	Subscribe(ctx context.Context, symbols []string) (<-chan model.Liquidation, error)
}

// LiquidationSource 拉取式强平数据（REST）
type LiquidationSource interface {
	Name() string
	Recent(ctx context.Context, symbol string, since time.Time) ([]model.Liquidation, error)
}
