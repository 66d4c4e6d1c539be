package bybit

import (
	"context"
	"net/url"
	"strings"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// walletBalanceResult GET /v5/account/wallet-balance
type walletBalanceResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		Coin        []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
			Locked        string `json:"locked"`
		} `json:"coin"`
	} `json:"list"`
}

// BalanceAdapter 统一账户钱包余额
type BalanceAdapter struct {
	rc          *exchange.RESTClient
	creds       *Credentials
	accountType string
}

func NewBalanceAdapter(rc *exchange.RESTClient, creds *Credentials) *BalanceAdapter {
	return &BalanceAdapter{rc: rc, creds: creds, accountType: "UNIFIED"}
}

func (a *BalanceAdapter) Name() string { return Name }

func (a *BalanceAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	var res walletBalanceResult
	params := url.Values{"accountType": {a.accountType}}
	if err := signedGet(ctx, a.rc, a.creds, "/v5/account/wallet-balance", params, &res); err != nil {
		log.Warn().Str("source", Name).Err(err).Msg("wallet balance failed")
		return model.FailedSample(Name, symbol, time.Now())
	}

	totals := make(map[string]decimal.Decimal, len(model.BalanceAssets))
	for _, asset := range model.BalanceAssets {
		totals[asset] = decimal.Zero
	}
	for _, acct := range res.List {
		for _, c := range acct.Coin {
			asset := strings.ToUpper(c.Coin)
			cur, wanted := totals[asset]
			if !wanted || strings.TrimSpace(c.WalletBalance) == "" {
				continue
			}
			// walletBalance 已包含冻结部分
			v, err := decimal.NewFromString(c.WalletBalance)
			if err != nil {
				log.Warn().Str("source", Name).Str("asset", asset).Err(err).Msg("parse wallet balance failed")
				return model.FailedSample(Name, symbol, time.Now())
			}
			totals[asset] = cur.Add(v)
		}
	}

	fields := make(map[string]float64, len(totals))
	for asset, d := range totals {
		fields[asset] = d.InexactFloat64()
	}
	return model.NewSample(Name, symbol, fields, time.Now())
}
