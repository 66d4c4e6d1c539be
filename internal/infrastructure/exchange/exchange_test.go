package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/config"
)

func TestBuildQueryURLKeepsBasePath(t *testing.T) {
	got, err := BuildQueryURL("https://blockstream.info/api/", "/address/abc", "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got != "https://blockstream.info/api/address/abc" {
		t.Fatalf("url = %s", got)
	}
	got, _ = BuildQueryURL("https://fapi.binance.com", "/fapi/v1/depth", "symbol=BTCUSDT")
	if got != "https://fapi.binance.com/fapi/v1/depth?symbol=BTCUSDT" {
		t.Fatalf("url = %s", got)
	}
	if _, err := BuildQueryURL("  ", "/x", ""); err == nil {
		t.Fatalf("expected error for empty base")
	}
}

func TestParseFloatRejectsNonFinite(t *testing.T) {
	if v, err := ParseFloat(" 1.25 "); err != nil || v != 1.25 {
		t.Fatalf("ParseFloat(1.25) = %v, %v", v, err)
	}
	if v, err := ParseFloat(""); err != nil || v != 0 {
		t.Fatalf("ParseFloat(empty) = %v, %v", v, err)
	}
	for _, s := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity", "1e400"} {
		if _, err := ParseFloat(s); err == nil {
			t.Errorf("ParseFloat(%q) accepted", s)
		}
	}
}

func TestParseLevels(t *testing.T) {
	rows := [][]string{{"100", "2"}, {"bad", "1"}, {"99"}, {"98", "0.5", "0", "3"}}
	got := ParseLevels(rows, model.Buy, 0.1)
	if len(got) != 2 {
		t.Fatalf("levels = %d, want 2", len(got))
	}
	if got[0].Quantity < 0.2-1e-12 || got[0].Quantity > 0.2+1e-12 || got[1].Side != model.Buy {
		t.Fatalf("unexpected levels %+v", got)
	}
}

func TestFundingPer8h(t *testing.T) {
	cases := []struct {
		rate     float64
		interval time.Duration
		want     float64
	}{
		{0.0001, 8 * time.Hour, 0.0001},
		{0.0001, 4 * time.Hour, 0.0002},
		{0.0001, time.Hour, 0.0008},
		{0.0001, 0, 0.0001},
	}
	for _, c := range cases {
		got := FundingPer8h(c.rate, c.interval)
		if got < c.want-1e-12 || got > c.want+1e-12 {
			t.Errorf("FundingPer8h(%v, %v) = %v, want %v", c.rate, c.interval, got, c.want)
		}
	}
}

func TestSymbolConverters(t *testing.T) {
	if b, q := SplitSymbol("ethusdc"); b != "ETH" || q != "USDC" {
		t.Fatalf("split = %s/%s", b, q)
	}
	if b, q := SplitSymbol("BTCFDUSD"); b != "BTC" || q != "FDUSD" {
		t.Fatalf("split = %s/%s", b, q)
	}

	swap := NewDashedSymbolConverter("-SWAP")
	if got := swap.Native("BTCUSDT"); got != "BTC-USDT-SWAP" {
		t.Fatalf("native = %s", got)
	}
	if got := swap.Unified("BTC-USDT-SWAP"); got != "BTCUSDT" {
		t.Fatalf("unified = %s", got)
	}
	if got := swap.Symbol2Coin("ETH-USDT-SWAP"); got != "ETH" {
		t.Fatalf("coin = %s", got)
	}
	if got := (CommonSymbolConverter{}).Native(" btcusdt "); got != "BTCUSDT" {
		t.Fatalf("native = %s", got)
	}
}

func TestRESTClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"v":1}`))
		case "/bad":
			w.Write([]byte(`{"v":`))
		default:
			http.Error(w, strings.Repeat("x", 1000), http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := NewRESTClient("test", srv.URL, 100, 10)
	var out struct{ V int }
	if err := c.GetJSON(context.Background(), "/ok", nil, &out); err != nil || out.V != 1 {
		t.Fatalf("ok: %v %+v", err, out)
	}
	if err := c.GetJSON(context.Background(), "/bad", nil, &out); err == nil || !strings.Contains(err.Error(), "decode test /bad") {
		t.Fatalf("expected decode error, got %v", err)
	}
	err := c.GetJSON(context.Background(), "/missing", nil, &out)
	if err == nil || !strings.Contains(err.Error(), "http 418") || len(err.Error()) > 300 {
		t.Fatalf("expected truncated status error, got %v", err)
	}
}

func TestRESTClientRespectsContext(t *testing.T) {
	c := NewRESTClient("test", "http://127.0.0.1:1", 0.001, 1)
	// 消耗掉唯一的令牌
	c.limiter.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var out struct{}
	if err := c.GetJSON(ctx, "/x", nil, &out); err == nil {
		t.Fatalf("expected limiter wait to fail with short deadline")
	}
}

func TestRegistry(t *testing.T) {
	Register("fake", func(cfg config.ExchangeConfig, opts Options) *Venue {
		return &Venue{Name: "fake"}
	})
	f, ok := Get("fake")
	if !ok {
		t.Fatalf("factory not registered")
	}
	if v := f(config.ExchangeConfig{}, Options{}); v.Name != "fake" {
		t.Fatalf("venue = %+v", v)
	}
	Register("nil", nil)
	if _, ok := Get("nil"); ok {
		t.Fatalf("nil factory should be rejected")
	}
	found := false
	for _, n := range Registered() {
		if n == "fake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Registered() missing fake")
	}
}

func TestRESTClientWithTimeout(t *testing.T) {
	c := NewRESTClient("x", "http://example.invalid", 1, 1)
	if c.WithTimeout(0).http.Timeout != 10*time.Second {
		t.Fatalf("zero timeout must keep the default")
	}
	if c.WithTimeout(3*time.Second).http.Timeout != 3*time.Second {
		t.Fatalf("timeout not applied")
	}
}
