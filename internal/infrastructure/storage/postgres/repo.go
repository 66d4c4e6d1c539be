package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS series_points (
  id BIGSERIAL PRIMARY KEY,
  symbol TEXT NOT NULL,
  ts_ms BIGINT NOT NULL,
  metrics JSONB NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_series_symbol_ts ON series_points(symbol, ts_ms);
CREATE INDEX IF NOT EXISTS idx_series_ts ON series_points(ts_ms);
`)
	return err
}

func (r *Repo) Append(ctx context.Context, p model.Point) error {
	return r.AppendBatch(ctx, []model.Point{p})
}

func (r *Repo) AppendBatch(ctx context.Context, pts []model.Point) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, p := range pts {
		payload, err := json.Marshal(p.Values)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO series_points(symbol, ts_ms, metrics, created_at) VALUES($1, $2, $3, $4)`,
			p.Symbol, p.Timestamp.UnixMilli(), string(payload), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) Range(ctx context.Context, symbol string, from time.Time) ([]model.Point, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if from.IsZero() {
		rows, err = r.db.QueryContext(ctx,
			`SELECT ts_ms, metrics FROM series_points WHERE symbol=$1 ORDER BY ts_ms ASC, id ASC`, symbol)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT ts_ms, metrics FROM series_points WHERE symbol=$1 AND ts_ms>=$2 ORDER BY ts_ms ASC, id ASC`,
			symbol, from.UnixMilli())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Point
	for rows.Next() {
		var ts int64
		var payload []byte
		if err := rows.Scan(&ts, &payload); err != nil {
			return nil, err
		}
		values := map[string]float64{}
		if err := json.Unmarshal(payload, &values); err != nil {
			return nil, fmt.Errorf("decode metrics at %d: %w", ts, err)
		}
		out = append(out, model.Point{Symbol: symbol, Timestamp: time.UnixMilli(ts).UTC(), Values: values})
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM series_points WHERE symbol=$1`, symbol).Scan(&n)
	return n, err
}

func (r *Repo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM series_points WHERE ts_ms < $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ port.SeriesRepository = (*Repo)(nil)
