package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mmon/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSQLiteRepoAppendAndRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// 乱序写入
	for _, off := range []int{2, 0, 1} {
		p := model.Point{
			Symbol:    "BTCUSDT",
			Timestamp: base.Add(time.Duration(off) * time.Minute),
			Values:    map[string]float64{"funding": float64(off), "oi_total": 1000},
		}
		if err := repo.Append(ctx, p); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	_ = repo.Append(ctx, model.Point{Symbol: "ETHUSDT", Timestamp: base, Values: map[string]float64{"funding": 9}})

	pts, err := repo.Range(ctx, "BTCUSDT", time.Time{})
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(pts) != 3 {
		t.Fatalf("expected 3 points, got %d", len(pts))
	}
	for i, p := range pts {
		if p.Values["funding"] != float64(i) {
			t.Errorf("point %d funding = %v, want ascending order", i, p.Values["funding"])
		}
	}

	pts, _ = repo.Range(ctx, "BTCUSDT", base.Add(time.Minute))
	if len(pts) != 2 || !pts[0].Timestamp.Equal(base.Add(time.Minute)) {
		t.Fatalf("range from boundary should include it, got %+v", pts)
	}
}

func TestSQLiteRepoBatchCountDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var batch []model.Point
	for i := 0; i < 10; i++ {
		batch = append(batch, model.Point{
			Symbol:    "BTCUSDT",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Values:    map[string]float64{"basis": float64(i)},
		})
	}
	if err := repo.AppendBatch(ctx, batch); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	n, err := repo.Count(ctx, "BTCUSDT")
	if err != nil || n != 10 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	if n, _ := repo.Count(ctx, "ETHUSDT"); n != 0 {
		t.Fatalf("Count other symbol = %d", n)
	}

	deleted, err := repo.DeleteBefore(ctx, base.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if deleted != 5 {
		t.Errorf("deleted %d, want 5 (boundary kept)", deleted)
	}
	pts, _ := repo.Range(ctx, "BTCUSDT", time.Time{})
	if len(pts) != 5 || pts[0].Values["basis"] != 5 {
		t.Fatalf("remaining = %+v", pts)
	}
}

func TestContributionRepoUpsert(t *testing.T) {
	repo := newTestRepo(t)
	cr := NewContributionRepo(repo.GetDB())
	ctx := context.Background()

	must := func(c model.Contribution) {
		t.Helper()
		if err := cr.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	must(model.Contribution{Key: "oi_total:BTCUSDT", Source: "binance", Value: 100, ReportedAt: base})
	must(model.Contribution{Key: "oi_total:BTCUSDT", Source: "bybit", Value: 50, ReportedAt: base})
	must(model.Contribution{Key: "oi_total:BTCUSDT", Source: "binance", Value: 120, ReportedAt: base.Add(time.Minute)})

	got, err := cr.List(ctx, "oi_total:BTCUSDT")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected one row per source, got %d", len(got))
	}
	if got[0].Source != "binance" || got[0].Value != 120 || !got[0].ReportedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("binance row = %+v, want replaced value", got[0])
	}

	n, err := cr.DeleteBefore(ctx, base.Add(30*time.Second))
	if err != nil || n != 1 {
		t.Fatalf("DeleteBefore = %d, %v", n, err)
	}
	if got, _ := cr.List(ctx, "oi_total:BTCUSDT"); len(got) != 1 || got[0].Source != "binance" {
		t.Fatalf("after prune = %+v", got)
	}
}
