package okx

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

// booksRow GET /api/v5/market/books，每档 [px, sz(张), 0, 订单数]
type booksRow struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

type BookAdapter struct {
	rc    *exchange.RESTClient
	sizes *contractSizes
	limit int
	swap  *exchange.DashedSymbolConverter
}

func NewBookAdapter(rc *exchange.RESTClient, sizes *contractSizes, limit int) *BookAdapter {
	// books 最多 400 档
	if limit <= 0 || limit > 400 {
		limit = 100
	}
	return &BookAdapter{rc: rc, sizes: sizes, limit: limit, swap: exchange.NewDashedSymbolConverter("-SWAP")}
}

func (a *BookAdapter) Name() string { return Name }

func (a *BookAdapter) FetchBook(ctx context.Context, symbol string) (model.Book, bool) {
	inst := a.swap.Native(symbol)
	ctVal, err := a.sizes.get(ctx, inst)
	if err != nil {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("contract size unavailable")
		return model.Book{}, false
	}

	var rows []booksRow
	params := url.Values{"instId": {inst}, "sz": {strconv.Itoa(a.limit)}}
	if err := publicGet(ctx, a.rc, "/api/v5/market/books", params, &rows); err != nil || len(rows) == 0 {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("books failed")
		return model.Book{}, false
	}
	b := model.Book{
		Source:    Name,
		Symbol:    symbol,
		Bids:      exchange.ParseLevels(rows[0].Bids, model.Buy, ctVal),
		Asks:      exchange.ParseLevels(rows[0].Asks, model.Sell, ctVal),
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
