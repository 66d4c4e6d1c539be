package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type liqItem struct {
	Time   int64  `json:"T"`
	Symbol string `json:"s"`
	Side   string `json:"S"` // 被强平的持仓方向
	Size   string `json:"v"`
	Price  string `json:"p"`
}

// liqDataList allLiquidation 推送数组，旧版 liquidation 主题推送单个对象，两者都接受
type liqDataList []liqItem

func (d *liqDataList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = nil
		return nil
	}
	switch b[0] {
	case '[':
		var arr []liqItem
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*d = arr
		return nil
	case '{':
		var one liqItem
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*d = liqDataList{one}
		return nil
	default:
		return fmt.Errorf("unexpected data json: %s", string(b))
	}
}

type liqMsg struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type"`
	Ts    int64       `json:"ts"`
	Data  liqDataList `json:"data"`

	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	Op      string `json:"op,omitempty"`
}

type subReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// LiquidationFeed 订阅 allLiquidation.<SYMBOL>
type LiquidationFeed struct {
	wsURL string // e.g. wss://stream.bybit.com/v5/public/linear
}

func NewLiquidationFeed(wsURL string) *LiquidationFeed {
	return &LiquidationFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *LiquidationFeed) Name() string { return Name }

func (f *LiquidationFeed) Subscribe(ctx context.Context, symbols []string) (<-chan model.Liquidation, error) {
	if f.wsURL == "" {
		return nil, errors.New("bybit ws_url empty")
	}
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		topics = append(topics, "allLiquidation."+s)
	}
	if len(topics) == 0 {
		return nil, errors.New("no valid symbols for bybit topics")
	}

	out := make(chan model.Liquidation, 1024)
	stream := &exchange.WSStream{
		Name: Name + ":allLiquidation",
		URL:  f.wsURL,
		OnConnect: func(conn *websocket.Conn) error {
			return conn.WriteJSON(subReq{Op: "subscribe", Args: topics})
		},
		OnMessage: func(b []byte) {
			for _, e := range parseLiquidations(b) {
				select {
				case out <- e:
				default:
					log.Warn().Str("feed", Name).Msg("liquidation channel full, dropping event")
				}
			}
		},
	}
	go func() {
		defer close(out)
		stream.Run(ctx)
	}()
	return out, nil
}

// parseLiquidations converts a push frame. Side is the forced order side:
// a liquidated long (S=Buy) is closed by a sell.
func parseLiquidations(b []byte) []model.Liquidation {
	var msg liqMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Debug().Str("feed", Name).Err(err).Msg("json unmarshal failed")
		return nil
	}
	if msg.Op != "" {
		if msg.Success != nil && !*msg.Success {
			log.Warn().Str("feed", Name).Str("op", msg.Op).Str("msg", msg.RetMsg).Msg("ws op rejected")
		}
		return nil
	}
	if !strings.HasPrefix(msg.Topic, "allLiquidation.") && !strings.HasPrefix(msg.Topic, "liquidation.") {
		return nil
	}

	out := make([]model.Liquidation, 0, len(msg.Data))
	for _, it := range msg.Data {
		px, err1 := exchange.ParseFloat(it.Price)
		qty, err2 := exchange.ParseFloat(it.Size)
		if err1 != nil || err2 != nil || it.Symbol == "" {
			continue
		}
		side := model.Buy
		if strings.EqualFold(it.Side, "Buy") {
			side = model.Sell
		}
		ts := it.Time
		if ts == 0 {
			ts = msg.Ts
		}
		out = append(out, model.Liquidation{
			Source:   Name,
			Symbol:   strings.ToUpper(it.Symbol),
			Side:     side,
			Price:    px,
			Quantity: qty,
			Time:     time.UnixMilli(ts),
		})
	}
	return out
}
