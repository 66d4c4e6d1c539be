package chain

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"mmon/internal/infrastructure/config"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func etherscanServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api" || q.Get("module") != "account" || q.Get("apikey") != "k" {
			fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`)
			return
		}
		switch q.Get("action") {
		case "balance":
			// 超过 float64 精确范围的 wei
			fmt.Fprint(w, `{"status":"1","message":"OK","result":"1234567890123456789012"}`)
		case "tokenbalance":
			fmt.Fprint(w, `{"status":"1","message":"OK","result":"2500000"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEtherAndTokenAdapters(t *testing.T) {
	srv := etherscanServer(t)
	var cfg config.Config
	cfg.Onchain.EtherscanURL = srv.URL + "/api"
	cfg.Onchain.EtherscanKey = "k"
	cfg.Onchain.ETHAddresses = []string{"0xabc", " "}
	cfg.Onchain.Tokens = []config.TokenConfig{{Symbol: "usdt", Contract: "0xdac", Decimals: 6}, {Symbol: "X"}}

	adapters := NewAdapters(cfg)
	if len(adapters) != 2 {
		t.Fatalf("adapters = %d, want eth + one token", len(adapters))
	}

	eth := adapters[0].Fetch(context.Background(), "onchain")
	if v, _ := eth.Field("ETH"); !approx(v, 1234.567890123456789012) {
		t.Errorf("ETH = %v", v)
	}
	tok := adapters[1].Fetch(context.Background(), "onchain")
	if v, _ := tok.Field("USDT"); !approx(v, 2.5) {
		t.Errorf("USDT = %v", v)
	}
	if adapters[0].Name() == adapters[1].Name() {
		t.Errorf("adapter names must be distinct")
	}
}

func TestEtherscanErrorStatus(t *testing.T) {
	srv := etherscanServer(t)
	var cfg config.Config
	cfg.Onchain.EtherscanURL = srv.URL + "/api"
	cfg.Onchain.EtherscanKey = "wrong"
	cfg.Onchain.ETHAddresses = []string{"0xabc"}

	s := NewAdapters(cfg)[0].Fetch(context.Background(), "onchain")
	if s.OK {
		t.Fatalf("status 0 must fail the sample")
	}
}

func TestBitcoinAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/address/bc1qxyz" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"address":"bc1qxyz","chain_stats":{"funded_txo_sum":250000000,"spent_txo_sum":50000000},"mempool_stats":{"funded_txo_sum":1,"spent_txo_sum":0}}`)
	}))
	defer srv.Close()

	var cfg config.Config
	cfg.Onchain.BlockstreamURL = srv.URL + "/api"
	cfg.Onchain.BTCAddresses = []string{"bc1qxyz", "missing"}

	adapters := NewAdapters(cfg)
	if len(adapters) != 2 {
		t.Fatalf("adapters = %d", len(adapters))
	}
	s := adapters[0].Fetch(context.Background(), "onchain")
	if v, _ := s.Field("BTC"); !approx(v, 2) {
		t.Fatalf("BTC = %v, want 2 (confirmed only)", v)
	}
	if s := adapters[1].Fetch(context.Background(), "onchain"); s.OK {
		t.Fatalf("404 must fail the sample")
	}
}

func TestAssets(t *testing.T) {
	var cfg config.Config
	if got := Assets(cfg); len(got) != 0 {
		t.Fatalf("no addresses, assets = %v", got)
	}
	cfg.Onchain.ETHAddresses = []string{"0xabc"}
	cfg.Onchain.BTCAddresses = []string{"bc1q"}
	cfg.Onchain.Tokens = []config.TokenConfig{{Symbol: "usdc", Contract: "0xa0b"}, {Symbol: "NOPE"}}
	got := Assets(cfg)
	if len(got) != 3 || got[0] != "ETH" || got[1] != "USDC" || got[2] != "BTC" {
		t.Fatalf("assets = %v", got)
	}
}
