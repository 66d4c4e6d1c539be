package composite

import (
	"context"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
)

// Repo 写入所有后端，读取走第一个（primary）
type Repo struct {
	repos []port.SeriesRepository
}

func New(repos ...port.SeriesRepository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.SeriesRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) Append(ctx context.Context, p model.Point) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Append(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) AppendBatch(ctx context.Context, pts []model.Point) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.AppendBatch(ctx, pts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Range(ctx context.Context, symbol string, from time.Time) ([]model.Point, error) {
	if len(r.repos) == 0 {
		return nil, nil
	}
	return r.repos[0].Range(ctx, symbol, from)
}

func (r *Repo) Count(ctx context.Context, symbol string) (int64, error) {
	if len(r.repos) == 0 {
		return 0, nil
	}
	return r.repos[0].Count(ctx, symbol)
}

// DeleteBefore prunes every backend and reports the primary's count.
func (r *Repo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var firstErr error
	var primary int64
	for i, repo := range r.repos {
		n, err := repo.DeleteBefore(ctx, cutoff)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if i == 0 {
			primary = n
		}
	}
	return primary, firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Publishers fans composites out to every publisher.
type Publishers []port.Publisher

func (ps Publishers) PublishComposite(ctx context.Context, c model.CompositeSample) error {
	var firstErr error
	for _, p := range ps {
		if err := p.PublishComposite(ctx, c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (ps Publishers) PublishDepth(ctx context.Context, d model.DepthProfile) error {
	var firstErr error
	for _, p := range ps {
		if err := p.PublishDepth(ctx, d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ port.SeriesRepository = (*Repo)(nil)
	_ port.Publisher        = Publishers(nil)
)
