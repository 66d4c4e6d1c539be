package bybit

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

// orderbookResult GET /v5/market/orderbook
type orderbookResult struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	Ts     int64      `json:"ts"`
}

type BookAdapter struct {
	rc    *exchange.RESTClient
	limit int
	conv  exchange.SymbolConverter
}

func NewBookAdapter(rc *exchange.RESTClient, limit int) *BookAdapter {
	// linear 最多 500 档
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return &BookAdapter{rc: rc, limit: limit, conv: exchange.CommonSymbolConverter{}}
}

func (a *BookAdapter) Name() string { return Name }

func (a *BookAdapter) FetchBook(ctx context.Context, symbol string) (model.Book, bool) {
	params := url.Values{
		"category": {"linear"},
		"symbol":   {a.conv.Native(symbol)},
		"limit":    {strconv.Itoa(a.limit)},
	}
	var res orderbookResult
	if err := publicGet(ctx, a.rc, "/v5/market/orderbook", params, &res); err != nil {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("orderbook failed")
		return model.Book{}, false
	}
	b := model.Book{
		Source:    Name,
		Symbol:    symbol,
		Bids:      exchange.ParseLevels(res.Bids, model.Buy, 1),
		Asks:      exchange.ParseLevels(res.Asks, model.Sell, 1),
		FetchedAt: time.Now(),
	}
	return b, !b.Empty()
}

func (a *BookAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	b, ok := a.FetchBook(ctx, symbol)
	if !ok {
		return model.FailedSample(Name, symbol, time.Now())
	}
	return b.Sample(symbol)
}
