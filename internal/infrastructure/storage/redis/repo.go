package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// Repo 发布最新的合成指标（Hash + Stream + PubSub），并可作为多实例共享的 OI 分量缓存
type Repo struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	keyLatest  string // prefix + ":latest"
	keyDepth   string // prefix + ":depth"
	keyContrib string // prefix + ":contrib:keys"
	stream     string
	channel    string
}

// envelope is the PUBLISH payload.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type contribValue struct {
	Value float64 `json:"v"`
	Ts    int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, stream, channel string) *Repo {
	if strings.TrimSpace(stream) == "" {
		stream = prefix + ":composites"
	}
	if strings.TrimSpace(channel) == "" {
		channel = prefix + ":composites:pub"
	}
	return &Repo{
		rdb:        rdb,
		prefix:     prefix,
		ttl:        ttl,
		keyLatest:  prefix + ":latest",
		keyDepth:   prefix + ":depth",
		keyContrib: prefix + ":contrib:keys",
		stream:     stream,
		channel:    channel,
	}
}

func (r *Repo) Close() error { return r.rdb.Close() }

// PublishComposite 1) HSET latest 2) XADD stream 3) PUBLISH channel
func (r *Repo) PublishComposite(ctx context.Context, c model.CompositeSample) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, c.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"ts_ms":   c.Timestamp.UnixMilli(),
			"symbol":  c.Symbol,
			"round":   c.Round,
			"payload": string(b),
		},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	msg, _ := json.Marshal(envelope{Type: "composite", Data: json.RawMessage(b)})
	return r.rdb.Publish(ctx, r.channel, msg).Err()
}

// PublishDepth 保存最新的深度分布并推送
func (r *Repo) PublishDepth(ctx context.Context, p model.DepthProfile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyDepth, p.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyDepth, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	msg, _ := json.Marshal(envelope{Type: "depth", Data: json.RawMessage(b)})
	return r.rdb.Publish(ctx, r.channel, msg).Err()
}

// Latest returns the last published composite for symbol.
func (r *Repo) Latest(ctx context.Context, symbol string) (model.CompositeSample, bool, error) {
	s, err := r.rdb.HGet(ctx, r.keyLatest, symbol).Result()
	if err == redis.Nil {
		return model.CompositeSample{}, false, nil
	}
	if err != nil {
		return model.CompositeSample{}, false, err
	}
	var c model.CompositeSample
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return model.CompositeSample{}, false, err
	}
	return c, true, nil
}

func (r *Repo) contribKey(key string) string {
	return fmt.Sprintf("%s:contrib:%s", r.prefix, key)
}

// Upsert Hash: field = source -> {"v":..,"ts":..}
func (r *Repo) Upsert(ctx context.Context, c model.Contribution) error {
	b, _ := json.Marshal(contribValue{Value: c.Value, Ts: c.ReportedAt.UnixMilli()})
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.contribKey(c.Key), c.Source, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.contribKey(c.Key), r.ttl)
	}
	pipe.SAdd(ctx, r.keyContrib, c.Key)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) List(ctx context.Context, key string) ([]model.Contribution, error) {
	m, err := r.rdb.HGetAll(ctx, r.contribKey(key)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Contribution, 0, len(m))
	for source, raw := range m {
		var v contribValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		out = append(out, model.Contribution{
			Key:        key,
			Source:     source,
			Value:      v.Value,
			ReportedAt: time.UnixMilli(v.Ts).UTC(),
		})
	}
	return out, nil
}

// deleteStaleScript 在服务端比较 ts 后删除，避免清理期间写入的新值被误删。
// KEYS[1] = 分量 hash, KEYS[2] = key 集合; ARGV[1] = cutoff(ms), ARGV[2] = key
var deleteStaleScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1])
local vals = redis.call('HGETALL', KEYS[1])
local deleted = 0
for i = 1, #vals, 2 do
  local ok, v = pcall(cjson.decode, vals[i + 1])
  if ok and type(v) == 'table' and tonumber(v.ts) and tonumber(v.ts) < cutoff then
    deleted = deleted + redis.call('HDEL', KEYS[1], vals[i])
  end
end
if redis.call('HLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[2])
end
return deleted
`)

func (r *Repo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	keys, err := r.rdb.SMembers(ctx, r.keyContrib).Result()
	if err != nil {
		return 0, err
	}
	var deleted int64
	for _, key := range keys {
		n, err := deleteStaleScript.Run(ctx, r.rdb,
			[]string{r.contribKey(key), r.keyContrib}, cutoff.UnixMilli(), key).Int64()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

var (
	_ port.Publisher         = (*Repo)(nil)
	_ port.ContributionStore = (*Repo)(nil)
)
