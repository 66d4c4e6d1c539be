package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mmon/internal/domain/model"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	minBackoff     = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// WSStream 描述一条需要自动重连的 websocket 订阅
type WSStream struct {
	Name string
	URL  string
	// OnConnect runs after each successful dial, e.g. to send a subscribe frame.
	OnConnect func(conn *websocket.Conn) error
	OnMessage func(b []byte)
}

// Run dials, reads and reconnects with exponential backoff until ctx is done.
func (s *WSStream) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		log.Debug().Str("feed", s.Name).Str("url", s.URL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, s.URL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", s.Name).Err(err).Msg("ws dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = MinDuration(backoff*2, maxBackoff)
			continue
		}

		if s.OnConnect != nil {
			if err := s.OnConnect(conn); err != nil {
				log.Error().Str("feed", s.Name).Err(err).Msg("ws subscribe failed")
				_ = conn.Close()
				if !sleepCtx(ctx, backoff) {
					return
				}
				backoff = MinDuration(backoff*2, maxBackoff)
				continue
			}
		}

		backoff = minBackoff
		log.Info().Str("feed", s.Name).Msg("ws connected")

		err = ReadWithPing(ctx, conn, s.OnMessage)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("feed", s.Name).Err(err).Msg("ws disconnected, reconnecting")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = MinDuration(backoff*2, maxBackoff)
	}
}

// ReadWithPing reads messages until an error, pinging periodically to keep
// the read deadline fresh.
func ReadWithPing(ctx context.Context, conn *websocket.Conn, onMessage func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			if onMessage != nil {
				onMessage(b)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// MinDuration returns the minimum of two durations
func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// BuildQueryURL joins base and path and sets the raw query.
func BuildQueryURL(base, path, query string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("base url is empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query
	return u.String(), nil
}

// ParseFloat parses an exchange numeric string; empty means zero.
// NaN and infinities are rejected.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse %q: not a finite number", s)
	}
	return v, nil
}

// ParseLevels converts ["price","qty",...] rows into levels, scaling qty by
// mult (contract size). Unparseable rows are skipped.
func ParseLevels(rows [][]string, side model.Side, mult float64) []model.PriceLevel {
	if mult <= 0 {
		mult = 1
	}
	out := make([]model.PriceLevel, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		p, err1 := strconv.ParseFloat(r[0], 64)
		q, err2 := strconv.ParseFloat(r[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, model.PriceLevel{Price: p, Quantity: q * mult, Side: side})
	}
	return out
}

// FundingPer8h rescales a funding rate paid every interval to an 8 hour rate.
func FundingPer8h(rate float64, interval time.Duration) float64 {
	if interval <= 0 {
		return rate
	}
	return rate * float64(8*time.Hour) / float64(interval)
}
