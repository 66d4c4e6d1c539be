package port

import (
	"context"
	"time"

	"mmon/internal/domain/model"
)

type Sink interface {
	// Live line: overwrite last line (no newline)
	WriteLive(line string) error
	// Snapshot line: append a historical line with timestamp, leaving an empty line for future live updates
	WriteSnapshot(ts time.Time, line string) error
	// Normal newline (for logs)
	NewLine() error
}

// Publisher fans composites out to downstream consumers (redis hash/stream).
type Publisher interface {
	PublishComposite(ctx context.Context, c model.CompositeSample) error
	PublishDepth(ctx context.Context, p model.DepthProfile) error
}
