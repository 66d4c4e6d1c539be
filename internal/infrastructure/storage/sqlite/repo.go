package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
)

// Repo 时间序列存储：每行一个 (symbol, ts) 点，指标以 JSON 保存
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS series_points (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  metrics TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_series_symbol_ts ON series_points(symbol, ts_ms);
CREATE INDEX IF NOT EXISTS idx_series_ts ON series_points(ts_ms);

CREATE TABLE IF NOT EXISTS oi_cache (
  key TEXT NOT NULL,
  source TEXT NOT NULL,
  value REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  PRIMARY KEY(key, source)
);
CREATE INDEX IF NOT EXISTS idx_oi_cache_ts ON oi_cache(ts_ms);
`)
	return err
}

func (r *Repo) Append(ctx context.Context, p model.Point) error {
	payload, err := json.Marshal(p.Values)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO series_points(symbol, ts_ms, metrics, created_at) VALUES(?, ?, ?, ?)`,
		p.Symbol, p.Timestamp.UnixMilli(), string(payload), time.Now().UnixMilli())
	return err
}

// AppendBatch inserts all points in one transaction.
func (r *Repo) AppendBatch(ctx context.Context, pts []model.Point) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO series_points(symbol, ts_ms, metrics, created_at) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, p := range pts {
		payload, err := json.Marshal(p.Values)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Timestamp.UnixMilli(), string(payload), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Range returns points for symbol with ts >= from (all when from is zero), oldest first.
func (r *Repo) Range(ctx context.Context, symbol string, from time.Time) ([]model.Point, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if from.IsZero() {
		rows, err = r.db.QueryContext(ctx,
			`SELECT ts_ms, metrics FROM series_points WHERE symbol=? ORDER BY ts_ms ASC, id ASC`, symbol)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT ts_ms, metrics FROM series_points WHERE symbol=? AND ts_ms>=? ORDER BY ts_ms ASC, id ASC`,
			symbol, from.UnixMilli())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Point
	for rows.Next() {
		var ts int64
		var payload string
		if err := rows.Scan(&ts, &payload); err != nil {
			return nil, err
		}
		values := map[string]float64{}
		if err := json.Unmarshal([]byte(payload), &values); err != nil {
			return nil, fmt.Errorf("decode metrics at %d: %w", ts, err)
		}
		out = append(out, model.Point{Symbol: symbol, Timestamp: time.UnixMilli(ts).UTC(), Values: values})
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM series_points WHERE symbol=?`, symbol).Scan(&n)
	return n, err
}

// DeleteBefore removes points with ts < cutoff; a point exactly at cutoff is kept.
func (r *Repo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM series_points WHERE ts_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ port.SeriesRepository = (*Repo)(nil)
