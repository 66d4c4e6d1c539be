package service

import (
	"testing"
	"time"

	"mmon/internal/domain/model"
)

func TestBinLiquidations(t *testing.T) {
	now := time.Now()
	events := []model.Liquidation{
		{Source: "binance", Price: 65010, Quantity: 0.5, Side: model.Sell},
		{Source: "bybit", Price: 65099, Quantity: 1.5, Side: model.Buy},
		{Source: "okx", Price: 64950, Quantity: 2},
		{Source: "okx", Price: 0, Quantity: 3},
		{Source: "okx", Price: 64000, Quantity: 0},
	}
	m := BinLiquidations("BTCUSDT", events, 0, now)

	if m.BinSize != DefaultLiquidationBin {
		t.Fatalf("bin size = %v, want %v", m.BinSize, DefaultLiquidationBin)
	}
	if m.Events != 3 {
		t.Fatalf("events = %d, want 3", m.Events)
	}
	wantPrices := []float64{64900, 65000}
	wantVol := []float64{2, 2}
	if len(m.Prices) != 2 {
		t.Fatalf("prices = %v, want %v", m.Prices, wantPrices)
	}
	for i := range wantPrices {
		if m.Prices[i] != wantPrices[i] || m.Volumes[i] != wantVol[i] {
			t.Fatalf("bin %d = %v/%v, want %v/%v", i, m.Prices[i], m.Volumes[i], wantPrices[i], wantVol[i])
		}
	}
}
