package binance

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"
)

const (
	klineLimit   = 1500
	oiHistLimit  = 500
	fundingLimit = 1000
)

// 支持的 K 线周期
var klineIntervals = []struct {
	d    time.Duration
	name string
}{
	{time.Minute, "1m"},
	{3 * time.Minute, "3m"},
	{5 * time.Minute, "5m"},
	{15 * time.Minute, "15m"},
	{30 * time.Minute, "30m"},
	{time.Hour, "1h"},
	{2 * time.Hour, "2h"},
	{4 * time.Hour, "4h"},
	{6 * time.Hour, "6h"},
	{12 * time.Hour, "12h"},
	{24 * time.Hour, "1d"},
}

// intervalFor picks the largest supported interval not above step.
func intervalFor(step time.Duration) (time.Duration, string) {
	best := klineIntervals[0]
	for _, iv := range klineIntervals {
		if iv.d <= step {
			best = iv
		}
	}
	return best.d, best.name
}

// oiPeriodFor is like intervalFor but limited to the periods openInterestHist accepts.
func oiPeriodFor(step time.Duration) string {
	_, name := intervalFor(step)
	switch name {
	case "1m", "3m":
		return "5m"
	case "1d", "12h", "6h", "4h", "2h", "1h", "30m", "15m", "5m":
		return name
	}
	return "5m"
}

type oiHistRow struct {
	Symbol          string `json:"symbol"`
	SumOpenInterest string `json:"sumOpenInterest"`
	Timestamp       int64  `json:"timestamp"`
}

type fundingRateRow struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
}

// HistorySource 回填历史：mark/index K 线收盘价、OI 历史与资金费率
type HistorySource struct {
	rc        *exchange.RESTClient
	intervals *fundingIntervals
	conv      exchange.SymbolConverter
}

func NewHistorySource(rc *exchange.RESTClient) *HistorySource {
	return &HistorySource{rc: rc, intervals: newFundingIntervals(rc), conv: exchange.CommonSymbolConverter{}}
}

func (h *HistorySource) Name() string { return Name }

func (h *HistorySource) History(ctx context.Context, symbol string, from, to time.Time, step time.Duration) ([]model.Series, error) {
	sym := h.conv.Native(symbol)

	mark, err := h.klines(ctx, "/fapi/v1/markPriceKlines", "symbol", sym, from, to, step)
	if err != nil {
		return nil, fmt.Errorf("mark klines: %w", err)
	}
	index, err := h.klines(ctx, "/fapi/v1/indexPriceKlines", "pair", sym, from, to, step)
	if err != nil {
		return nil, fmt.Errorf("index klines: %w", err)
	}

	out := []model.Series{
		{Metric: model.MetricMark, Values: mark},
		{Metric: model.MetricIndex, Values: index},
		{Metric: model.MetricBasis, Values: basisOf(mark, index)},
	}

	// OI 与资金费率历史缺失时仍返回价格序列
	if oi, err := h.openInterest(ctx, sym, from, to, step); err == nil {
		out = append(out, model.Series{Metric: model.MetricOI, Values: oi})
	}
	if fr, err := h.funding(ctx, sym, from, to); err == nil {
		out = append(out, model.Series{Metric: model.MetricFunding, Values: fr, FillForward: true})
	}
	return out, nil
}

// klines returns bar closes stamped at the bar's close time.
func (h *HistorySource) klines(ctx context.Context, path, key, sym string, from, to time.Time, step time.Duration) ([]model.TimedValue, error) {
	d, name := intervalFor(step)
	var out []model.TimedValue
	start := from.Add(-d)
	for start.Before(to) {
		params := url.Values{
			key:         {sym},
			"interval":  {name},
			"startTime": {strconv.FormatInt(start.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(to.UnixMilli(), 10)},
			"limit":     {strconv.Itoa(klineLimit)},
		}
		var rows [][]interface{}
		if err := h.rc.GetJSON(ctx, path, params, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		var last time.Time
		for _, r := range rows {
			if len(r) < 5 {
				continue
			}
			openMs, ok := r[0].(float64)
			closeStr, ok2 := r[4].(string)
			if !ok || !ok2 {
				continue
			}
			v, err := exchange.ParseFloat(closeStr)
			if err != nil {
				continue
			}
			last = time.UnixMilli(int64(openMs))
			out = append(out, model.TimedValue{At: last.Add(d), Value: v})
		}
		if len(rows) < klineLimit || last.IsZero() {
			break
		}
		start = last.Add(d)
	}
	return out, nil
}

func (h *HistorySource) openInterest(ctx context.Context, sym string, from, to time.Time, step time.Duration) ([]model.TimedValue, error) {
	params := url.Values{
		"symbol":    {sym},
		"period":    {oiPeriodFor(step)},
		"startTime": {strconv.FormatInt(from.UnixMilli(), 10)},
		"endTime":   {strconv.FormatInt(to.UnixMilli(), 10)},
		"limit":     {strconv.Itoa(oiHistLimit)},
	}
	var rows []oiHistRow
	if err := h.rc.GetJSON(ctx, "/futures/data/openInterestHist", params, &rows); err != nil {
		return nil, err
	}
	out := make([]model.TimedValue, 0, len(rows))
	for _, r := range rows {
		v, err := exchange.ParseFloat(r.SumOpenInterest)
		if err != nil || r.SumOpenInterest == "" {
			continue
		}
		out = append(out, model.TimedValue{At: time.UnixMilli(r.Timestamp), Value: v})
	}
	return out, nil
}

// funding starts one interval before from so the first grid point has a value to carry.
func (h *HistorySource) funding(ctx context.Context, sym string, from, to time.Time) ([]model.TimedValue, error) {
	interval := h.intervals.get(ctx, sym)
	params := url.Values{
		"symbol":    {sym},
		"startTime": {strconv.FormatInt(from.Add(-interval).UnixMilli(), 10)},
		"endTime":   {strconv.FormatInt(to.UnixMilli(), 10)},
		"limit":     {strconv.Itoa(fundingLimit)},
	}
	var rows []fundingRateRow
	if err := h.rc.GetJSON(ctx, "/fapi/v1/fundingRate", params, &rows); err != nil {
		return nil, err
	}
	out := make([]model.TimedValue, 0, len(rows))
	for _, r := range rows {
		v, err := exchange.ParseFloat(r.FundingRate)
		if err != nil || r.FundingRate == "" {
			continue
		}
		out = append(out, model.TimedValue{At: time.UnixMilli(r.FundingTime), Value: exchange.FundingPer8h(v, interval)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// basisOf joins mark and index on timestamp.
func basisOf(mark, index []model.TimedValue) []model.TimedValue {
	idx := make(map[int64]float64, len(index))
	for _, v := range index {
		idx[v.At.UnixMilli()] = v.Value
	}
	out := make([]model.TimedValue, 0, len(mark))
	for _, m := range mark {
		if iv, ok := idx[m.At.UnixMilli()]; ok {
			out = append(out, model.TimedValue{At: m.At, Value: m.Value - iv})
		}
	}
	return out
}
