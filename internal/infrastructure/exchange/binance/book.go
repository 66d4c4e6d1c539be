package binance

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

// depthResp GET /fapi/v1/depth
type depthResp struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// BookAdapter 永续合约订单簿，数量为币本位
type BookAdapter struct {
	rc    *exchange.RESTClient
	limit int
	conv  exchange.SymbolConverter
}

func NewBookAdapter(rc *exchange.RESTClient, limit int) *BookAdapter {
	if limit <= 0 {
		limit = 100
	}
	return &BookAdapter{rc: rc, limit: limit, conv: exchange.CommonSymbolConverter{}}
}

func (a *BookAdapter) Name() string { return Name }

func (a *BookAdapter) FetchBook(ctx context.Context, symbol string) (model.Book, bool) {
	params := url.Values{
		"symbol": {a.conv.Native(symbol)},
		"limit":  {strconv.Itoa(a.limit)},
	}
	var resp depthResp
	if err := a.rc.GetJSON(ctx, "/fapi/v1/depth", params, &resp); err != nil {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("depth failed")
		return model.Book{}, false
	}
	b := model.Book{
		Source:    Name,
		Symbol:    symbol,
		Bids:      exchange.ParseLevels(resp.Bids, model.Buy, 1),
		Asks:      exchange.ParseLevels(resp.Asks, model.Sell, 1),
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
