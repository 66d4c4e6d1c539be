package monitor

import (
	"strings"
	"testing"

	"mmon/internal/domain/model"
)

func viewWith(symbol string, metrics map[string]float64) SymbolView {
	c := model.CompositeSample{Symbol: symbol, Metrics: map[string]model.Optional{}, Counts: map[string]int{}}
	for k, v := range metrics {
		c.Metrics[k] = model.Some(v)
		c.Counts[k] = 1
	}
	return SymbolView{Symbol: symbol, Composite: c}
}

func TestStateApplyDirection(t *testing.T) {
	st := NewState([]string{"btcusdt", " ethusdt ", "BTCUSDT", ""})
	if got := st.Symbols(); len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("symbols = %v", got)
	}
	if _, ok := st.View("BTCUSDT"); ok {
		t.Fatalf("no view before the first round")
	}

	st.Apply(viewWith("BTCUSDT", map[string]float64{"mid": 100}))
	st.Apply(viewWith("BTCUSDT", map[string]float64{"mid": 101}))
	if v, _ := st.View("btcusdt"); v.MidDir != DirUp {
		t.Errorf("dir = %v, want up", v.MidDir)
	}
	st.Apply(viewWith("BTCUSDT", map[string]float64{"mid": 99}))
	if v, _ := st.View("BTCUSDT"); v.MidDir != DirDown {
		t.Errorf("dir = %v, want down", v.MidDir)
	}
	if st.Apply(viewWith("DOGEUSDT", nil)) {
		t.Errorf("unknown symbol accepted")
	}
}

func TestStateReturnsCopies(t *testing.T) {
	st := NewState([]string{"BTCUSDT"})
	v := viewWith("BTCUSDT", map[string]float64{"funding": 0.1})
	v.Depth.Buckets = []model.PriceBucket{{Price: 100, BuyQty: 1}}
	st.Apply(v)

	v.Composite.Metrics["funding"] = model.Some(9)
	got, _ := st.View("BTCUSDT")
	got.Depth.Buckets[0].BuyQty = 42
	got.Composite.Metrics["funding"] = model.Some(7)

	again, _ := st.View("BTCUSDT")
	if f, _ := again.Composite.Metric("funding").Get(); f != 0.1 {
		t.Fatalf("funding leaked through a copy: %v", f)
	}
	if again.Depth.Buckets[0].BuyQty != 1 {
		t.Fatalf("bucket leaked through a copy")
	}

	st.SetHoldings("cex", map[string]float64{"BTC": 1})
	h := st.Holdings()
	h["cex"]["BTC"] = 5
	if st.Holdings()["cex"]["BTC"] != 1 {
		t.Fatalf("holdings leaked through a copy")
	}
}

func TestFormatterRender(t *testing.T) {
	st := NewState([]string{"BTCUSDT", "ETHUSDT"})
	v := viewWith("BTCUSDT", map[string]float64{"funding": 0.0001, "basis": 12.5, "mid": 65000})
	v.OIHave, v.OINeed = 2, 3
	st.Apply(v)
	st.SetHoldings("cex", map[string]float64{"BTC": 1.5, "ETH": 0})
	st.SetHoldings("cex:binance", map[string]float64{"BTC": 1.5})

	f := NewFormatter()
	live := f.Render(st, RenderLive)
	for _, want := range []string{"BTCUSDT", "F:+0.0100%(1)", "B:+12.50", "OI:--(2/3)", "M:65000.00", "ETHUSDT"} {
		if !strings.Contains(live, want) {
			t.Errorf("live line %q missing %q", live, want)
		}
	}
	if !strings.HasPrefix(live, "\r") || strings.Contains(live, "cex") {
		t.Errorf("live line = %q", live)
	}

	snap := f.Render(st, RenderSnapshot)
	if !strings.Contains(snap, "cex BTC=1.5") || strings.Contains(snap, "cex:binance") || strings.Contains(snap, "ETH=0") {
		t.Errorf("snapshot line = %q", snap)
	}
}
