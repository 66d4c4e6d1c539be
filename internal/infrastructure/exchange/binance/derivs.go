package binance

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultFundingInterval = 8 * time.Hour
	fundingInfoRetry       = 5 * time.Minute
)

// premiumIndexResp GET /fapi/v1/premiumIndex
type premiumIndexResp struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

// openInterestResp GET /fapi/v1/openInterest
type openInterestResp struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

type fundingInfoResp struct {
	Symbol               string `json:"symbol"`
	FundingIntervalHours int    `json:"fundingIntervalHours"`
}

// fundingIntervals 缓存每个合约的资金费率周期；fundingInfo 中没有的合约按 8h。
// 加载在锁外进行，并发调用共享同一次请求；失败后 fundingInfoRetry 内直接按 8h。
type fundingIntervals struct {
	rc  *exchange.RESTClient
	sf  singleflight.Group
	now func() time.Time

	mu      sync.RWMutex
	loaded  bool
	retryAt time.Time
	byName  map[string]time.Duration
}

func newFundingIntervals(rc *exchange.RESTClient) *fundingIntervals {
	return &fundingIntervals{rc: rc, now: time.Now, byName: make(map[string]time.Duration)}
}

func (f *fundingIntervals) lookup(symbol string) (d time.Duration, ok, loaded bool, retryAt time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok = f.byName[symbol]
	return d, ok, f.loaded, f.retryAt
}

func (f *fundingIntervals) get(ctx context.Context, symbol string) time.Duration {
	d, ok, loaded, retryAt := f.lookup(symbol)
	if !loaded && !f.now().Before(retryAt) {
		_, _, _ = f.sf.Do("fundingInfo", func() (interface{}, error) {
			return nil, f.load(ctx)
		})
		d, ok, _, _ = f.lookup(symbol)
	}
	if ok {
		return d
	}
	return defaultFundingInterval
}

func (f *fundingIntervals) load(ctx context.Context) error {
	var rows []fundingInfoResp
	err := f.rc.GetJSON(ctx, "/fapi/v1/fundingInfo", nil, &rows)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.retryAt = f.now().Add(fundingInfoRetry)
		log.Debug().Str("source", Name).Err(err).Time("retry_at", f.retryAt).Msg("funding info unavailable, assuming 8h")
		return err
	}
	for _, r := range rows {
		if r.FundingIntervalHours > 0 {
			f.byName[strings.ToUpper(r.Symbol)] = time.Duration(r.FundingIntervalHours) * time.Hour
		}
	}
	f.loaded = true
	return nil
}

// DerivsAdapter Binance USDⓈ-M 永续的资金费率、基差与未平仓量
type DerivsAdapter struct {
	rc        *exchange.RESTClient
	intervals *fundingIntervals
	conv      exchange.SymbolConverter
}

func NewDerivsAdapter(rc *exchange.RESTClient) *DerivsAdapter {
	return &DerivsAdapter{
		rc:        rc,
		intervals: newFundingIntervals(rc),
		conv:      exchange.CommonSymbolConverter{},
	}
}

func (a *DerivsAdapter) Name() string { return Name }

func (a *DerivsAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	sym := a.conv.Native(symbol)
	params := url.Values{"symbol": {sym}}

	var pi premiumIndexResp
	if err := a.rc.GetJSON(ctx, "/fapi/v1/premiumIndex", params, &pi); err != nil {
		log.Warn().Str("source", Name).Str("symbol", symbol).Err(err).Msg("premium index failed")
		return model.FailedSample(Name, symbol, time.Now())
	}
	mark, err1 := exchange.ParseFloat(pi.MarkPrice)
	index, err2 := exchange.ParseFloat(pi.IndexPrice)
	rate, err3 := exchange.ParseFloat(pi.LastFundingRate)
	if err1 != nil || err2 != nil || err3 != nil || mark <= 0 {
		log.Warn().Str("source", Name).Str("symbol", symbol).Msg("malformed premium index")
		return model.FailedSample(Name, symbol, time.Now())
	}

	fields := map[string]float64{
		model.MetricMark:    mark,
		model.MetricFunding: exchange.FundingPer8h(rate, a.intervals.get(ctx, sym)),
	}
	if index > 0 {
		fields[model.MetricIndex] = index
		fields[model.MetricBasis] = mark - index
	}

	// OI 缺失时样本仍然有效
	var oi openInterestResp
	if err := a.rc.GetJSON(ctx, "/fapi/v1/openInterest", params, &oi); err != nil {
		log.Debug().Str("source", Name).Str("symbol", symbol).Err(err).Msg("open interest failed")
	} else if v, err := exchange.ParseFloat(oi.OpenInterest); err == nil && oi.OpenInterest != "" {
		fields[model.MetricOI] = v
	}

	return model.NewSample(Name, symbol, fields, time.Now())
}
