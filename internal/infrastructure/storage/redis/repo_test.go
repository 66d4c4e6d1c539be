package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"mmon/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// 需要真实 Redis：MMON_TEST_REDIS_ADDR=127.0.0.1:6379
func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	addr := os.Getenv("MMON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MMON_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	prefix := "mmontest:" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		rdb.Close()
	})
	return New(rdb, prefix, time.Minute, "", "")
}

func TestRedisContributions(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	_ = r.Upsert(ctx, model.Contribution{Key: "oi_total:BTCUSDT", Source: "binance", Value: 1, ReportedAt: base.Add(-time.Hour)})
	_ = r.Upsert(ctx, model.Contribution{Key: "oi_total:BTCUSDT", Source: "bybit", Value: 2, ReportedAt: base})
	_ = r.Upsert(ctx, model.Contribution{Key: "oi_total:BTCUSDT", Source: "bybit", Value: 3, ReportedAt: base})

	list, err := r.List(ctx, "oi_total:BTCUSDT")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(list))
	}

	n, err := r.DeleteBefore(ctx, base.Add(-time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("DeleteBefore = %d, %v", n, err)
	}
	list, _ = r.List(ctx, "oi_total:BTCUSDT")
	if len(list) != 1 || list[0].Value != 3 {
		t.Fatalf("after prune = %+v", list)
	}
}

func TestRedisPublishComposite(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	c := model.CompositeSample{
		Round:     "r1",
		Symbol:    "BTCUSDT",
		Metrics:   map[string]model.Optional{"funding": model.Some(0.0001), "oi": model.None()},
		Counts:    map[string]int{"funding": 2, "oi": 0},
		Timestamp: time.Now().UTC(),
	}
	if err := r.PublishComposite(ctx, c); err != nil {
		t.Fatalf("PublishComposite failed: %v", err)
	}
	got, ok, err := r.Latest(ctx, "BTCUSDT")
	if err != nil || !ok {
		t.Fatalf("Latest = %v, %v", ok, err)
	}
	if v, _ := got.Metric("funding").Get(); v != 0.0001 {
		t.Errorf("funding = %v", v)
	}
	if got.Metric("oi").Valid() {
		t.Errorf("oi should stay absent")
	}
	if n, _ := r.rdb.XLen(ctx, r.stream).Result(); n != 1 {
		t.Errorf("stream length = %d", n)
	}
}

func TestRedisDeleteBeforeKeepsRefreshedSource(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	key := "oi_total:ETHUSDT"

	_ = r.Upsert(ctx, model.Contribution{Key: key, Source: "binance", Value: 1, ReportedAt: base.Add(-time.Hour)})
	_ = r.Upsert(ctx, model.Contribution{Key: key, Source: "binance", Value: 2, ReportedAt: base})

	if ttl, _ := r.rdb.TTL(ctx, r.contribKey(key)).Result(); ttl <= 0 {
		t.Errorf("contribution hash ttl = %v, want > 0", ttl)
	}

	n, err := r.DeleteBefore(ctx, base.Add(-time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("DeleteBefore = %d, %v", n, err)
	}
	if ok, _ := r.rdb.SIsMember(ctx, r.keyContrib, key).Result(); !ok {
		t.Fatalf("live key dropped from the key set")
	}

	n, err = r.DeleteBefore(ctx, base.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("DeleteBefore = %d, %v", n, err)
	}
	if ok, _ := r.rdb.SIsMember(ctx, r.keyContrib, key).Result(); ok {
		t.Fatalf("empty key still tracked")
	}
}
