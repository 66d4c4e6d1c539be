package sqlite

import (
	"context"
	"database/sql"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
)

// ContributionRepo OI 分量缓存，(key, source) 唯一
type ContributionRepo struct {
	db *sql.DB
}

func NewContributionRepo(db *sql.DB) *ContributionRepo {
	return &ContributionRepo{db: db}
}

// Upsert 覆盖同一来源的旧值
func (cr *ContributionRepo) Upsert(ctx context.Context, c model.Contribution) error {
	_, err := cr.db.ExecContext(ctx, `
		INSERT INTO oi_cache(key, source, value, ts_ms) VALUES(?, ?, ?, ?)
		ON CONFLICT(key, source) DO UPDATE SET
		value=excluded.value, ts_ms=excluded.ts_ms
	`, c.Key, c.Source, c.Value, c.ReportedAt.UnixMilli())
	return err
}

// List 返回 key 下每个来源的最新值
func (cr *ContributionRepo) List(ctx context.Context, key string) ([]model.Contribution, error) {
	rows, err := cr.db.QueryContext(ctx, `
		SELECT source, value, ts_ms FROM oi_cache
		WHERE key = ?
		ORDER BY source ASC
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contribution
	for rows.Next() {
		c := model.Contribution{Key: key}
		var ts int64
		if err := rows.Scan(&c.Source, &c.Value, &ts); err != nil {
			return nil, err
		}
		c.ReportedAt = time.UnixMilli(ts).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteBefore 清理过期分量
func (cr *ContributionRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := cr.db.ExecContext(ctx, `DELETE FROM oi_cache WHERE ts_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ port.ContributionStore = (*ContributionRepo)(nil)
