package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

type forceOrderCombined struct {
	Stream string          `json:"stream"`
	Data   forceOrderEvent `json:"data"`
}

type forceOrderEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Order     struct {
		Symbol    string `json:"s"`
		Side      string `json:"S"`
		Quantity  string `json:"q"`
		Price     string `json:"p"`
		AvgPrice  string `json:"ap"`
		Status    string `json:"X"`
		TradeTime int64  `json:"T"`
	} `json:"o"`
}

// LiquidationFeed 订阅 <symbol>@forceOrder 强平推送
type LiquidationFeed struct {
	wsURL string // e.g. wss://fstream.binance.com/ws
}

func NewLiquidationFeed(wsURL string) *LiquidationFeed {
	return &LiquidationFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *LiquidationFeed) Name() string { return Name }

func (f *LiquidationFeed) Subscribe(ctx context.Context, symbols []string) (<-chan model.Liquidation, error) {
	wsURL, err := buildCombinedURL(f.wsURL, symbols)
	if err != nil {
		return nil, err
	}

	out := make(chan model.Liquidation, 1024)
	stream := &exchange.WSStream{
		Name: Name + ":forceOrder",
		URL:  wsURL,
		OnMessage: func(b []byte) {
			e, ok := parseForceOrder(b)
			if !ok {
				return
			}
			select {
			case out <- e:
			default:
				log.Warn().Str("feed", Name).Msg("liquidation channel full, dropping event")
			}
		},
	}
	go func() {
		defer close(out)
		stream.Run(ctx)
	}()
	return out, nil
}

func buildCombinedURL(base string, symbols []string) (string, error) {
	if base == "" {
		return "", errors.New("binance ws_url empty")
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, fmt.Sprintf("%s@forceOrder", s))
	}
	if len(streams) == 0 {
		return "", errors.New("symbols empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// parseForceOrder maps a forced order to a liquidation; Side is the side of the
// forced order, so Sell means a long position was closed.
func parseForceOrder(b []byte) (model.Liquidation, bool) {
	var msg forceOrderCombined
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Debug().Str("feed", Name).Err(err).Msg("json unmarshal failed")
		return model.Liquidation{}, false
	}
	o := msg.Data.Order
	if o.Symbol == "" {
		return model.Liquidation{}, false
	}
	px, err := exchange.ParseFloat(o.AvgPrice)
	if err != nil || px <= 0 {
		px, err = exchange.ParseFloat(o.Price)
	}
	qty, err2 := exchange.ParseFloat(o.Quantity)
	if err != nil || err2 != nil {
		return model.Liquidation{}, false
	}
	side := model.Buy
	if strings.EqualFold(o.Side, "SELL") {
		side = model.Sell
	}
	ts := o.TradeTime
	if ts == 0 {
		ts = msg.Data.EventTime
	}
	return model.Liquidation{
		Source:   Name,
		Symbol:   strings.ToUpper(o.Symbol),
		Side:     side,
		Price:    px,
		Quantity: qty,
		Time:     time.UnixMilli(ts),
	}, true
}
