package okx

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

type fundingRateRow struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
}

type openInterestRow struct {
	InstID string `json:"instId"`
	OI     string `json:"oi"`
	OICcy  string `json:"oiCcy"`
	Ts     string `json:"ts"`
}

type markPriceRow struct {
	InstID string `json:"instId"`
	MarkPx string `json:"markPx"`
}

type indexTickerRow struct {
	InstID string `json:"instId"`
	IdxPx  string `json:"idxPx"`
}

// DerivsAdapter OKX USDT 永续
type DerivsAdapter struct {
	rc    *exchange.RESTClient
	swap  *exchange.DashedSymbolConverter
	index *exchange.DashedSymbolConverter
}

func NewDerivsAdapter(rc *exchange.RESTClient) *DerivsAdapter {
	return &DerivsAdapter{
		rc:    rc,
		swap:  exchange.NewDashedSymbolConverter("-SWAP"),
		index: exchange.NewDashedSymbolConverter(""),
	}
}

func (a *DerivsAdapter) Name() string { return Name }

// fundingInterval 由 nextFundingTime - fundingTime 推出，缺失时按 8h
func fundingInterval(r fundingRateRow) time.Duration {
	cur, err1 := strconv.ParseInt(r.FundingTime, 10, 64)
	next, err2 := strconv.ParseInt(r.NextFundingTime, 10, 64)
	if err1 != nil || err2 != nil || next <= cur {
		return 8 * time.Hour
	}
	return time.Duration(next-cur) * time.Millisecond
}

func first[T any](ctx context.Context, rc *exchange.RESTClient, path string, params url.Values) (T, error) {
	var rows []T
	var zero T
	if err := publicGet(ctx, rc, path, params, &rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, errors.New("empty data")
	}
	return rows[0], nil
}

func (a *DerivsAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	inst := a.swap.Native(symbol)

	mp, err := first[markPriceRow](ctx, a.rc, "/api/v5/public/mark-price", url.Values{"instType": {"SWAP"}, "instId": {inst}})
	if err != nil {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("mark price failed")
		return model.FailedSample(Name, symbol, time.Now())
	}
	fr, err := first[fundingRateRow](ctx, a.rc, "/api/v5/public/funding-rate", url.Values{"instId": {inst}})
	if err != nil {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("funding rate failed")
		return model.FailedSample(Name, symbol, time.Now())
	}
	mark, err1 := exchange.ParseFloat(mp.MarkPx)
	rate, err2 := exchange.ParseFloat(fr.FundingRate)
	if err1 != nil || err2 != nil || mark <= 0 {
		log.Warn().Str("source", Name).Str("symbol", symbol).Msg("malformed mark/funding")
		return model.FailedSample(Name, symbol, time.Now())
	}

	fields := map[string]float64{
		model.MetricMark:    mark,
		model.MetricFunding: exchange.FundingPer8h(rate, fundingInterval(fr)),
	}

	if it, err := first[indexTickerRow](ctx, a.rc, "/api/v5/market/index-tickers", url.Values{"instId": {a.index.Native(symbol)}}); err != nil {
		log.Debug().Str("source", Name).Str("symbol", symbol).Err(err).Msg("index ticker failed")
	} else if index, err := exchange.ParseFloat(it.IdxPx); err == nil && index > 0 {
		fields[model.MetricIndex] = index
		fields[model.MetricBasis] = mark - index
	}

	// oiCcy 为币本位
	if oi, err := first[openInterestRow](ctx, a.rc, "/api/v5/public/open-interest", url.Values{"instType": {"SWAP"}, "instId": {inst}}); err != nil {
		log.Debug().Str("source", Name).Str("symbol", symbol).Err(err).Msg("open interest failed")
	} else if v, err := exchange.ParseFloat(oi.OICcy); err == nil && oi.OICcy != "" {
		fields[model.MetricOI] = v
	}

	return model.NewSample(Name, symbol, fields, time.Now())
}
