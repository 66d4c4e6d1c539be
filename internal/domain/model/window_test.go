package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	cases := map[string]time.Duration{
		"15m": 15 * time.Minute,
		"6h":  6 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		" 1H": time.Hour,
	}
	for in, want := range cases {
		w, err := ParseWindow(in)
		if err != nil {
			t.Fatalf("ParseWindow(%q) failed: %v", in, err)
		}
		if w.All || w.Duration != want {
			t.Errorf("ParseWindow(%q) = %v, want %v", in, w, want)
		}
	}

	w, err := ParseWindow("all")
	if err != nil || !w.All || w.Since() != nil {
		t.Fatalf("ParseWindow(all) = %+v, %v", w, err)
	}

	for _, bad := range []string{"", "h", "0h", "-5m", "10", "3w", "1.5h", "abc", "200000d", "9223372036854775807m"} {
		if _, err := ParseWindow(bad); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("ParseWindow(%q) err = %v, want ErrInvalidWindow", bad, err)
		}
	}
}

func TestWindowOrDefault(t *testing.T) {
	for _, in := range []string{"", "bogus", "0d", "200000d"} {
		w := WindowOrDefault(in)
		if w.All || w.Duration != DefaultWindow {
			t.Errorf("WindowOrDefault(%q) = %v, want %v", in, w, DefaultWindow)
		}
	}
	if d := WindowOrDefault("2h").Since(); d == nil || *d != 2*time.Hour {
		t.Fatalf("WindowOrDefault(2h).Since() = %v", d)
	}
}

func TestOptionalJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Optional{"a": Some(1.5), "b": None()})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `{"a":1.5,"b":null}` {
		t.Fatalf("json = %s", b)
	}
	var back map[string]Optional
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v, ok := back["a"].Get(); !ok || v != 1.5 {
		t.Fatalf("a = %v", back["a"])
	}
	if back["b"].Valid() {
		t.Fatalf("b should be absent")
	}
}

func TestSampleIsImmutable(t *testing.T) {
	fields := map[string]float64{"funding": 0.01}
	s := NewSample("binance", "BTCUSDT", fields, time.Now())
	fields["funding"] = 9
	s.Fields()["funding"] = 9
	if v, _ := s.Field("funding"); v != 0.01 {
		t.Fatalf("sample mutated: %v", v)
	}
	f := FailedSample("bybit", "BTCUSDT", time.Now())
	if _, ok := f.Field("funding"); ok || f.OK {
		t.Fatalf("failed sample should carry no data")
	}
}

func TestBookMid(t *testing.T) {
	b := Book{
		Bids: []PriceLevel{{Price: 0, Quantity: 1}, {Price: 99, Quantity: 2}},
		Asks: []PriceLevel{{Price: 101, Quantity: 1}},
	}
	if mid, ok := b.Mid(); !ok || mid != 100 {
		t.Fatalf("mid = %v, want 100", mid)
	}
	if b.BidQty() != 2 || b.AskQty() != 1 {
		t.Fatalf("qty = %v/%v", b.BidQty(), b.AskQty())
	}
	if _, ok := (Book{}).Mid(); ok {
		t.Fatalf("empty book has no mid")
	}
}
