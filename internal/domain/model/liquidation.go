package model

import "time"

// Liquidation 强平事件，Quantity 为币本位
type Liquidation struct {
	Source   string    `json:"source"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"qty"`
	Time     time.Time `json:"ts"`
}

// LiquidationMap is liquidated volume binned by price, ascending.
type LiquidationMap struct {
	Symbol    string    `json:"symbol"`
	BinSize   float64   `json:"bin_size"`
	Prices    []float64 `json:"prices"`
	Volumes   []float64 `json:"volumes"`
	Events    int       `json:"events"`
	Timestamp time.Time `json:"ts"`
}
