package service

import (
	"math"
	"sort"

	"mmon/internal/domain/model"
)

const (
	DefaultDepth = 100

	// 桶宽为参考价的万分之一
	relativeWidth = 0.0001
	// floor 前的容差，保证已对齐的桶价重新分桶时落回同一个桶
	indexEpsilon = 1e-9
)

// Binner 把多个交易所的挂单合并为固定宽度的价格桶。
type Binner struct {
	depth    int
	maxSpan  int
	decimals map[string]int
}

// NewBinner creates a binner padding depth buckets each side of the mark.
// decimals overrides the price precision for symbols with unusual tick sizes.
func NewBinner(depth int, decimals map[string]int) *Binner {
	if depth <= 0 {
		depth = DefaultDepth
	}
	cp := make(map[string]int, len(decimals))
	for k, v := range decimals {
		cp[k] = v
	}
	return &Binner{depth: depth, maxSpan: 10 * depth, decimals: cp}
}

// WithMaxSpan limits how many buckets away from the mark a level may land
// before it is discarded.
func (b *Binner) WithMaxSpan(n int) *Binner {
	if n >= b.depth {
		b.maxSpan = n
	}
	return b
}

func (b *Binner) Depth() int { return b.depth }

// Decimals returns the override for symbol or the magnitude-derived default.
func (b *Binner) Decimals(symbol string, reference float64) int {
	if d, ok := b.decimals[symbol]; ok {
		return d
	}
	if reference <= 0 {
		return 2
	}
	d := 2 - int(math.Floor(math.Log10(reference)))
	if d < 2 {
		d = 2
	}
	return d
}

// Width returns the bucket width and price precision for a reference price.
func (b *Binner) Width(symbol string, reference float64) (float64, int) {
	dec := b.Decimals(symbol, reference)
	w := math.Pow10(-dec)
	if rw := reference * relativeWidth; rw > w {
		w = rw
	}
	return w, dec
}

func bucketIndex(price, width float64) int64 {
	return int64(math.Floor(price/width + indexEpsilon))
}

func roundTo(v float64, dec int) float64 {
	if dec > 15 {
		return v
	}
	p := math.Pow10(dec)
	return math.Round(v*p) / p
}

// 桶价只做显示精度上的修整，误差远小于 indexEpsilon
func bucketPrice(idx int64, width float64, dec int) float64 {
	return roundTo(float64(idx)*width, dec+10)
}

// BucketPrice returns the lower edge of the bucket containing price.
func BucketPrice(price, width float64, dec int) float64 {
	return bucketPrice(bucketIndex(price, width), width, dec)
}

type cell struct {
	buy, sell float64
}

func accumulate(books []model.Book, width float64, keep func(int64) bool) (map[int64]*cell, int) {
	cells := make(map[int64]*cell)
	dropped := 0
	add := func(levels []model.PriceLevel, side model.Side) {
		for _, l := range levels {
			if !l.Valid() {
				continue
			}
			idx := bucketIndex(l.Price, width)
			if keep != nil && !keep(idx) {
				dropped++
				continue
			}
			c := cells[idx]
			if c == nil {
				c = &cell{}
				cells[idx] = c
			}
			if side == model.Sell {
				c.sell += l.Quantity
			} else {
				c.buy += l.Quantity
			}
		}
	}
	for _, bk := range books {
		add(bk.Bids, model.Buy)
		add(bk.Asks, model.Sell)
	}
	return cells, dropped
}

// Accumulate buckets every level at the given width without padding.
// The result is sorted ascending by price.
func Accumulate(books []model.Book, width float64, dec int) []model.PriceBucket {
	if width <= 0 {
		return nil
	}
	cells, _ := accumulate(books, width, nil)
	idx := make([]int64, 0, len(cells))
	for i := range cells {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, c int) bool { return idx[a] < idx[c] })
	out := make([]model.PriceBucket, 0, len(idx))
	for _, i := range idx {
		c := cells[i]
		out = append(out, model.PriceBucket{
			Price:   bucketPrice(i, width, dec),
			BuyQty:  c.buy,
			SellQty: c.sell,
		})
	}
	return out
}

func referencePrice(books []model.Book, mark float64) float64 {
	for _, bk := range books {
		if bk.Empty() {
			continue
		}
		if mid, ok := bk.Mid(); ok {
			return mid
		}
	}
	if !finite(mark) {
		return 0
	}
	return mark
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Bin merges the books into a contiguous depth profile around mark.
//
// The axis always contains the bucket holding the rounded mark and at least
// depth buckets on each side of it. Levels further than the max span from the
// mark bucket are dropped and counted in Dropped.
func (b *Binner) Bin(symbol string, books []model.Book, mark float64) model.DepthProfile {
	prof := model.DepthProfile{Symbol: symbol}
	for _, bk := range books {
		if !bk.Empty() {
			prof.Venues++
		}
	}

	ref := referencePrice(books, mark)
	if ref <= 0 {
		return prof
	}
	width, dec := b.Width(symbol, ref)
	if !finite(mark) || mark <= 0 {
		mark = ref
	}
	mark = roundTo(mark, dec)
	markIdx := bucketIndex(mark, width)

	span := int64(b.maxSpan)
	cells, dropped := accumulate(books, width, func(i int64) bool {
		d := i - markIdx
		return d >= -span && d <= span
	})

	lo, hi := markIdx-int64(b.depth), markIdx+int64(b.depth)
	for i := range cells {
		if i < lo {
			lo = i
		}
		if i > hi {
			hi = i
		}
	}

	buckets := make([]model.PriceBucket, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		pb := model.PriceBucket{Price: bucketPrice(i, width, dec)}
		if c := cells[i]; c != nil {
			pb.BuyQty = c.buy
			pb.SellQty = c.sell
		}
		buckets = append(buckets, pb)
	}

	prof.Mark = mark
	prof.Width = width
	prof.Decimals = dec
	prof.Buckets = buckets
	prof.Dropped = dropped
	return prof
}
