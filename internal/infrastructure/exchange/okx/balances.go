package okx

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

// balanceRow GET /api/v5/account/balance
type balanceRow struct {
	Details []struct {
		Ccy       string `json:"ccy"`       // 币种
		CashBal   string `json:"cashBal"`   // 币种余额
		FrozenBal string `json:"frozenBal"` // 冻结余额
		AvailBal  string `json:"availBal"`  // 可用余额
	} `json:"details"`
	TotalEq string `json:"totalEq"` // 总权益（USD）
}

// BalanceAdapter 交易账户余额；cashBal 已包含冻结部分
type BalanceAdapter struct {
	rc    *exchange.RESTClient
	creds *Credentials
}

func NewBalanceAdapter(rc *exchange.RESTClient, creds *Credentials) *BalanceAdapter {
	return &BalanceAdapter{rc: rc, creds: creds}
}

func (a *BalanceAdapter) Name() string { return Name }

func (a *BalanceAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	var rows []balanceRow
	params := url.Values{"ccy": {strings.Join(model.BalanceAssets, ",")}}
	if err := signedGet(ctx, a.rc, a.creds, "/api/v5/account/balance", params, &rows); err != nil {
		log.Warn().Str("source", Name).Err(err).Msg("account balance failed")
		return model.FailedSample(Name, symbol, time.Now())
	}

	totals := make(map[string]decimal.Decimal, len(model.BalanceAssets))
	for _, asset := range model.BalanceAssets {
		totals[asset] = decimal.Zero
	}
	for _, row := range rows {
		for _, d := range row.Details {
			asset := strings.ToUpper(d.Ccy)
			cur, wanted := totals[asset]
			if !wanted || strings.TrimSpace(d.CashBal) == "" {
				continue
			}
			v, err := decimal.NewFromString(d.CashBal)
			if err != nil {
				log.Warn().Str("source", Name).Str("asset", asset).Err(err).Msg("parse cash balance failed")
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
