package service

import (
	"sort"
	"time"

	"mmon/internal/domain/model"
)

// Grid returns the timestamps from..to (inclusive) at step, with from
// truncated to the step.
func Grid(from, to time.Time, step time.Duration) []time.Time {
	if step <= 0 || to.Before(from) {
		return nil
	}
	start := from.Truncate(step)
	if start.Before(from) {
		start = start.Add(step)
	}
	var out []time.Time
	for t := start; !t.After(to); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// Align 把多条频率不同的序列对齐到同一时间网格。
//
// A regular series contributes the latest observation inside (t-step, t] for
// each grid time t. A FillForward series contributes its last observation at
// or before t, so one funding print covers every grid point until the next.
// Grid points where no series has a value are omitted.
func Align(symbol string, series []model.Series, grid []time.Time, step time.Duration) []model.Point {
	sorted := make([]model.Series, len(series))
	for i, s := range series {
		vals := append([]model.TimedValue(nil), s.Values...)
		sort.SliceStable(vals, func(a, b int) bool { return vals[a].At.Before(vals[b].At) })
		sorted[i] = model.Series{Metric: s.Metric, Values: vals, FillForward: s.FillForward}
	}

	cursor := make([]int, len(sorted))
	out := make([]model.Point, 0, len(grid))
	for _, t := range grid {
		values := make(map[string]float64, len(sorted))
		for i, s := range sorted {
			// advance to the last value at or before t
			for cursor[i] < len(s.Values) && !s.Values[cursor[i]].At.After(t) {
				cursor[i]++
			}
			if cursor[i] == 0 {
				continue
			}
			last := s.Values[cursor[i]-1]
			if !s.FillForward && !last.At.After(t.Add(-step)) {
				continue
			}
			values[s.Metric] = last.Value
		}
		if len(values) == 0 {
			continue
		}
		out = append(out, model.Point{Symbol: symbol, Timestamp: t, Values: values})
	}
	return out
}
