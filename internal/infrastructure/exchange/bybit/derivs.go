package bybit

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

const defaultFundingInterval = 8 * time.Hour

type tickerItem struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	FundingRate     string `json:"fundingRate"`
	OpenInterest    string `json:"openInterest"`
	NextFundingTime string `json:"nextFundingTime"`
	Bid1Price       string `json:"bid1Price"`
	Ask1Price       string `json:"ask1Price"`
}

// tickersResult GET /v5/market/tickers?category=linear
type tickersResult struct {
	Category string       `json:"category"`
	List     []tickerItem `json:"list"`
}

type instrumentsResult struct {
	List []struct {
		Symbol          string `json:"symbol"`
		FundingInterval int    `json:"fundingInterval"` // 分钟
	} `json:"list"`
}

// DerivsAdapter Bybit 线性永续的资金费率、基差与未平仓量
type DerivsAdapter struct {
	rc   *exchange.RESTClient
	conv exchange.SymbolConverter

	mu        sync.Mutex
	intervals map[string]time.Duration
}

func NewDerivsAdapter(rc *exchange.RESTClient) *DerivsAdapter {
	return &DerivsAdapter{rc: rc, conv: exchange.CommonSymbolConverter{}, intervals: make(map[string]time.Duration)}
}

func (a *DerivsAdapter) Name() string { return Name }

// fundingInterval 按合约缓存；查询失败时不缓存，下次重试
func (a *DerivsAdapter) fundingInterval(ctx context.Context, sym string) time.Duration {
	a.mu.Lock()
	d, ok := a.intervals[sym]
	a.mu.Unlock()
	if ok {
		return d
	}

	var res instrumentsResult
	params := url.Values{"category": {"linear"}, "symbol": {sym}}
	if err := publicGet(ctx, a.rc, "/v5/market/instruments-info", params, &res); err != nil {
		log.Debug().Str("source", Name).Str("symbol", sym).Err(err).Msg("instruments info unavailable, assuming 8h")
		return defaultFundingInterval
	}
	d = defaultFundingInterval
	for _, it := range res.List {
		if it.Symbol == sym && it.FundingInterval > 0 {
			d = time.Duration(it.FundingInterval) * time.Minute
		}
	}
	a.mu.Lock()
	a.intervals[sym] = d
	a.mu.Unlock()
	return d
}

func (a *DerivsAdapter) ticker(ctx context.Context, sym string) (tickerItem, error) {
	var res tickersResult
	params := url.Values{"category": {"linear"}, "symbol": {sym}}
	if err := publicGet(ctx, a.rc, "/v5/market/tickers", params, &res); err != nil {
		return tickerItem{}, err
	}
	for _, it := range res.List {
		if it.Symbol == sym {
			return it, nil
		}
	}
	return tickerItem{}, errors.New("symbol not in tickers response")
}

func (a *DerivsAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	sym := a.conv.Native(symbol)
	t, err := a.ticker(ctx, sym)
	if err != nil {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("tickers failed")
		return model.FailedSample(Name, symbol, time.Now())
	}

	mark, err1 := exchange.ParseFloat(t.MarkPrice)
	index, err2 := exchange.ParseFloat(t.IndexPrice)
	rate, err3 := exchange.ParseFloat(t.FundingRate)
	if err1 != nil || err2 != nil || err3 != nil || mark <= 0 {
		log.Warn().Str("source", Name).Str("symbol", symbol).Msg("malformed ticker")
		return model.FailedSample(Name, symbol, time.Now())
	}

	fields := map[string]float64{
		model.MetricMark:    mark,
		model.MetricFunding: exchange.FundingPer8h(rate, a.fundingInterval(ctx, sym)),
	}
	if index > 0 {
		fields[model.MetricIndex] = index
		fields[model.MetricBasis] = mark - index
	}
	// 线性合约 openInterest 已是币本位
	if oi, err := exchange.ParseFloat(t.OpenInterest); err == nil && t.OpenInterest != "" {
		fields[model.MetricOI] = oi
	}
	return model.NewSample(Name, symbol, fields, time.Now())
}
