package memory

import (
	"context"
	"testing"
	"time"

	"mmon/internal/domain/model"
)

func TestSeriesRepoIsolatesCallers(t *testing.T) {
	r := NewSeriesRepo()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	values := map[string]float64{"funding": 1}
	_ = r.Append(ctx, model.Point{Symbol: "BTCUSDT", Timestamp: base.Add(time.Minute), Values: values})
	_ = r.Append(ctx, model.Point{Symbol: "BTCUSDT", Timestamp: base, Values: map[string]float64{"funding": 0}})
	values["funding"] = 42

	pts, _ := r.Range(ctx, "BTCUSDT", time.Time{})
	if len(pts) != 2 || pts[0].Values["funding"] != 0 || pts[1].Values["funding"] != 1 {
		t.Fatalf("unexpected points %+v", pts)
	}
	pts[0].Values["funding"] = 99
	again, _ := r.Range(ctx, "BTCUSDT", base)
	if again[0].Values["funding"] != 0 {
		t.Fatalf("stored point mutated through query result")
	}

	if n, _ := r.DeleteBefore(ctx, base.Add(time.Minute)); n != 1 {
		t.Fatalf("deleted = %d", n)
	}
	if n, _ := r.Count(ctx, "BTCUSDT"); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestContributionStore(t *testing.T) {
	s := NewContributionStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Upsert(ctx, model.Contribution{Key: "k", Source: "b", Value: 1, ReportedAt: now})
	_ = s.Upsert(ctx, model.Contribution{Key: "k", Source: "a", Value: 2, ReportedAt: now.Add(-time.Hour)})
	_ = s.Upsert(ctx, model.Contribution{Key: "k", Source: "b", Value: 3, ReportedAt: now})

	list, _ := s.List(ctx, "k")
	if len(list) != 2 || list[0].Source != "a" || list[1].Value != 3 {
		t.Fatalf("list = %+v", list)
	}
	if n, _ := s.DeleteBefore(ctx, now.Add(-time.Minute)); n != 1 {
		t.Fatalf("deleted = %d", n)
	}
}
