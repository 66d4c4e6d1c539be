package service

import (
	"math"
	"sort"
	"time"

	"mmon/internal/domain/model"
)

const DefaultLiquidationBin = 100.0

// BinLiquidations sums liquidated quantity per price bin of binSize.
// Events with non-positive price or quantity are skipped.
func BinLiquidations(symbol string, events []model.Liquidation, binSize float64, at time.Time) model.LiquidationMap {
	if binSize <= 0 {
		binSize = DefaultLiquidationBin
	}
	out := model.LiquidationMap{Symbol: symbol, BinSize: binSize, Timestamp: at}

	bins := make(map[int64]float64)
	for _, e := range events {
		if e.Price <= 0 || e.Quantity <= 0 {
			continue
		}
		bins[int64(math.Floor(e.Price/binSize))] += e.Quantity
		out.Events++
	}

	keys := make([]int64, 0, len(bins))
	for k := range bins {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out.Prices = make([]float64, 0, len(keys))
	out.Volumes = make([]float64, 0, len(keys))
	for _, k := range keys {
		out.Prices = append(out.Prices, float64(k)*binSize)
		out.Volumes = append(out.Volumes, bins[k])
	}
	return out
}
