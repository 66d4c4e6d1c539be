package model

import "time"

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// PriceLevel 单个价位的挂单量（币本位）
type PriceLevel struct {
	Price    float64
	Quantity float64
	Side     Side
}

func (l PriceLevel) Valid() bool {
	return l.Price > 0 && l.Quantity > 0
}

// Book is one venue's order-book snapshot, best price first on each side.
type Book struct {
	Source    string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	FetchedAt time.Time
}

func (b Book) Empty() bool {
	return len(b.Bids) == 0 && len(b.Asks) == 0
}

func (b Book) BestBid() (float64, bool) {
	for _, l := range b.Bids {
		if l.Valid() {
			return l.Price, true
		}
	}
	return 0, false
}

func (b Book) BestAsk() (float64, bool) {
	for _, l := range b.Asks {
		if l.Valid() {
			return l.Price, true
		}
	}
	return 0, false
}

// Mid returns the best bid/ask midpoint, or the one side present.
func (b Book) Mid() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	switch {
	case okB && okA:
		return (bid + ask) / 2, true
	case okB:
		return bid, true
	case okA:
		return ask, true
	}
	return 0, false
}

func sumQty(levels []PriceLevel) float64 {
	var s float64
	for _, l := range levels {
		if l.Valid() {
			s += l.Quantity
		}
	}
	return s
}

func (b Book) BidQty() float64 { return sumQty(b.Bids) }

func (b Book) AskQty() float64 { return sumQty(b.Asks) }

// Sample converts a book into the top-of-book fields the composite combines.
func (b Book) Sample(symbol string) SourceSample {
	fields := map[string]float64{
		MetricBidQty: b.BidQty(),
		MetricAskQty: b.AskQty(),
	}
	if v, ok := b.BestBid(); ok {
		fields[MetricBid] = v
	}
	if v, ok := b.BestAsk(); ok {
		fields[MetricAsk] = v
	}
	if v, ok := b.Mid(); ok {
		fields[MetricMid] = v
	}
	return NewSample(b.Source, symbol, fields, b.FetchedAt)
}

// PriceBucket 价格桶。Price 为桶下沿，BuyQty/SellQty 为跨交易所累加量。
type PriceBucket struct {
	Price   float64 `json:"price"`
	BuyQty  float64 `json:"buy"`
	SellQty float64 `json:"sell"`
}

// DepthProfile is the binned, contiguous depth around the mark price.
type DepthProfile struct {
	Symbol   string        `json:"symbol"`
	Mark     float64       `json:"mark"`
	Width    float64       `json:"width"`
	Decimals int           `json:"decimals"`
	Buckets  []PriceBucket `json:"buckets"`
	Venues   int           `json:"venues"`
	Dropped  int           `json:"dropped,omitempty"`
}

func (p DepthProfile) TotalBuy() float64 {
	var s float64
	for _, b := range p.Buckets {
		s += b.BuyQty
	}
	return s
}

func (p DepthProfile) TotalSell() float64 {
	var s float64
	for _, b := range p.Buckets {
		s += b.SellQty
	}
	return s
}
