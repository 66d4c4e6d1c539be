package binance

import (
	"context"
	"strings"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// spotAccountResponse GET /api/v3/account
type spotAccountResponse struct {
	CanTrade   bool  `json:"canTrade"`
	UpdateTime int64 `json:"updateTime"`
	Balances   []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// BalanceAdapter 现货账户余额（free + locked），需要 API 凭证
type BalanceAdapter struct {
	rc    *exchange.RESTClient
	creds *Credentials
}

func NewBalanceAdapter(rc *exchange.RESTClient, creds *Credentials) *BalanceAdapter {
	return &BalanceAdapter{rc: rc, creds: creds}
}

func (a *BalanceAdapter) Name() string { return Name }

// Fetch ignores symbol; balances are per account.
func (a *BalanceAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	var resp spotAccountResponse
	if err := signedGet(ctx, a.rc, a.creds, "/api/v3/account", nil, &resp); err != nil {
		log.Warn().Str("source", Name).Err(err).Msg("spot account failed")
		return model.FailedSample(Name, symbol, time.Now())
	}

	totals := make(map[string]decimal.Decimal, len(model.BalanceAssets))
	for _, asset := range model.BalanceAssets {
		totals[asset] = decimal.Zero
	}
	for _, b := range resp.Balances {
		asset := strings.ToUpper(b.Asset)
		cur, wanted := totals[asset]
		if !wanted {
			continue
		}
		free, err := decimal.NewFromString(orZero(b.Free))
		if err != nil {
			log.Warn().Str("source", Name).Str("asset", asset).Err(err).Msg("parse free balance failed")
			return model.FailedSample(Name, symbol, time.Now())
		}
		locked, err := decimal.NewFromString(orZero(b.Locked))
		if err != nil {
			log.Warn().Str("source", Name).Str("asset", asset).Err(err).Msg("parse locked balance failed")
			return model.FailedSample(Name, symbol, time.Now())
		}
		totals[asset] = cur.Add(free).Add(locked)
	}

	fields := make(map[string]float64, len(totals))
	for asset, d := range totals {
		fields[asset] = d.InexactFloat64()
	}
	return model.NewSample(Name, symbol, fields, time.Now())
}

func orZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return s
}
