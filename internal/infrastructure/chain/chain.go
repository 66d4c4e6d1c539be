// Package chain reads on-chain balances of configured addresses.
package chain

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mmon/internal/application/port"
	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/config"
	"mmon/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	etherDecimals   = 18
	satoshiDecimals = 8
)

// etherscanResp Etherscan 兼容接口，result 为十进制整数字符串（最小单位）
type etherscanResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

type etherscan struct {
	rc     *exchange.RESTClient
	apiKey string
}

// query returns the raw integer balance for the given action.
func (e *etherscan) query(ctx context.Context, params url.Values) (decimal.Decimal, error) {
	params.Set("module", "account")
	params.Set("tag", "latest")
	if e.apiKey != "" {
		params.Set("apikey", e.apiKey)
	}
	var resp etherscanResp
	if err := e.rc.GetJSON(ctx, "", params, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Status != "1" {
		return decimal.Zero, fmt.Errorf("etherscan %s: %s", resp.Message, resp.Result)
	}
	return decimal.NewFromString(resp.Result)
}

// EtherAdapter ETH 余额（wei -> ETH）
type EtherAdapter struct {
	api     *etherscan
	address string
}

func (a *EtherAdapter) Name() string { return "eth:" + a.address }

func (a *EtherAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	wei, err := a.api.query(ctx, url.Values{"action": {"balance"}, "address": {a.address}})
	if err != nil {
		log.Warn().Str("source", a.Name()).Err(err).Msg("eth balance failed")
		return model.FailedSample(a.Name(), symbol, time.Now())
	}
	return model.NewSample(a.Name(), symbol, map[string]float64{
		"ETH": wei.Shift(-etherDecimals).InexactFloat64(),
	}, time.Now())
}

// TokenAdapter ERC-20 代币余额
type TokenAdapter struct {
	api     *etherscan
	address string
	token   config.TokenConfig
}

func (a *TokenAdapter) Name() string { return "erc20:" + a.token.Symbol + ":" + a.address }

func (a *TokenAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	raw, err := a.api.query(ctx, url.Values{
		"action":          {"tokenbalance"},
		"contractaddress": {a.token.Contract},
		"address":         {a.address},
	})
	if err != nil {
		log.Warn().Str("source", a.Name()).Err(err).Msg("token balance failed")
		return model.FailedSample(a.Name(), symbol, time.Now())
	}
	return model.NewSample(a.Name(), symbol, map[string]float64{
		a.token.Symbol: raw.Shift(-a.token.Decimals).InexactFloat64(),
	}, time.Now())
}

type addressStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

// blockstreamAddress GET /address/{addr}
type blockstreamAddress struct {
	Address      string       `json:"address"`
	ChainStats   addressStats `json:"chain_stats"`
	MempoolStats addressStats `json:"mempool_stats"`
}

// BitcoinAdapter 已确认的 BTC 余额（satoshi -> BTC）
type BitcoinAdapter struct {
	rc      *exchange.RESTClient
	address string
}

func (a *BitcoinAdapter) Name() string { return "btc:" + a.address }

func (a *BitcoinAdapter) Fetch(ctx context.Context, symbol string) model.SourceSample {
	var resp blockstreamAddress
	if err := a.rc.GetJSON(ctx, "/address/"+url.PathEscape(a.address), nil, &resp); err != nil {
		log.Warn().Str("source", a.Name()).Err(err).Msg("btc balance failed")
		return model.FailedSample(a.Name(), symbol, time.Now())
	}
	sats := decimal.NewFromInt(resp.ChainStats.FundedTxoSum - resp.ChainStats.SpentTxoSum)
	return model.NewSample(a.Name(), symbol, map[string]float64{
		"BTC": sats.Shift(-satoshiDecimals).InexactFloat64(),
	}, time.Now())
}

// NewAdapters builds one adapter per configured (chain, address[, token]).
func NewAdapters(cfg config.Config) []port.SourceAdapter {
	oc := cfg.Onchain
	var out []port.SourceAdapter

	if len(oc.ETHAddresses) > 0 {
		api := &etherscan{
			// 免费档 5 次/秒
			rc:     exchange.NewRESTClient("etherscan", oc.EtherscanURL, 4, 1),
			apiKey: oc.EtherscanKey,
		}
		for _, addr := range oc.ETHAddresses {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			out = append(out, &EtherAdapter{api: api, address: addr})
			for _, tok := range oc.Tokens {
				if tok.Contract == "" || tok.Symbol == "" {
					continue
				}
				tok.Symbol = strings.ToUpper(tok.Symbol)
				out = append(out, &TokenAdapter{api: api, address: addr, token: tok})
			}
		}
	}

	if len(oc.BTCAddresses) > 0 {
		rc := exchange.NewRESTClient("blockstream", oc.BlockstreamURL, 5, 2)
		for _, addr := range oc.BTCAddresses {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			out = append(out, &BitcoinAdapter{rc: rc, address: addr})
		}
	}
	return out
}

// Assets lists the asset fields the configured adapters can report.
func Assets(cfg config.Config) []string {
	oc := cfg.Onchain
	var out []string
	if len(oc.ETHAddresses) > 0 {
		out = append(out, "ETH")
		for _, tok := range oc.Tokens {
			if tok.Contract == "" || tok.Symbol == "" {
				continue
			}
			out = append(out, strings.ToUpper(tok.Symbol))
		}
	}
	if len(oc.BTCAddresses) > 0 {
		out = append(out, "BTC")
	}
	return out
}
