package okx

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/exchange"
)

type liquidationRow struct {
	InstID  string `json:"instId"`
	Uly     string `json:"uly"`
	Details []struct {
		Side    string `json:"side"`    // 强平单方向
		PosSide string `json:"posSide"` // 被强平持仓方向
		BkPx    string `json:"bkPx"`    // 破产价
		Sz      string `json:"sz"`      // 张
		Ts      string `json:"ts"`
	} `json:"details"`
}

// LiquidationSource 通过 REST 拉取最近的强平单
type LiquidationSource struct {
	rc    *exchange.RESTClient
	sizes *contractSizes
	swap  *exchange.DashedSymbolConverter
	uly   *exchange.DashedSymbolConverter
}

func NewLiquidationSource(rc *exchange.RESTClient, sizes *contractSizes) *LiquidationSource {
	return &LiquidationSource{
		rc:    rc,
		sizes: sizes,
		swap:  exchange.NewDashedSymbolConverter("-SWAP"),
		uly:   exchange.NewDashedSymbolConverter(""),
	}
}

func (s *LiquidationSource) Name() string { return Name }

func (s *LiquidationSource) Recent(ctx context.Context, symbol string, since time.Time) ([]model.Liquidation, error) {
	ctVal, err := s.sizes.get(ctx, s.swap.Native(symbol))
	if err != nil {
		return nil, err
	}

	var rows []liquidationRow
	params := url.Values{
		"instType": {"SWAP"},
		"uly":      {s.uly.Native(symbol)},
		"state":    {"filled"},
	}
	if err := publicGet(ctx, s.rc, "/api/v5/public/liquidation-orders", params, &rows); err != nil {
		return nil, err
	}

	var out []model.Liquidation
	for _, r := range rows {
		for _, d := range r.Details {
			ms, err := strconv.ParseInt(d.Ts, 10, 64)
			if err != nil {
				continue
			}
			at := time.UnixMilli(ms)
			if at.Before(since) {
				continue
			}
			px, err1 := exchange.ParseFloat(d.BkPx)
			sz, err2 := exchange.ParseFloat(d.Sz)
			if err1 != nil || err2 != nil {
				continue
			}
			side := model.Buy
			if strings.EqualFold(d.Side, "sell") {
				side = model.Sell
			}
			out = append(out, model.Liquidation{
				Source:   Name,
				Symbol:   strings.ToUpper(symbol),
				Side:     side,
				Price:    px,
				Quantity: sz * ctVal,
				Time:     at,
			})
		}
	}
	return out, nil
}
