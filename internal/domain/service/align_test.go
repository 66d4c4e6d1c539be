package service

import (
	"testing"
	"time"

	"mmon/internal/domain/model"
)

func TestGridTruncatesToStep(t *testing.T) {
	from := time.Date(2024, 5, 1, 10, 2, 30, 0, time.UTC)
	to := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	g := Grid(from, to, 5*time.Minute)
	want := []string{"10:05", "10:10", "10:15", "10:20"}
	if len(g) != len(want) {
		t.Fatalf("grid = %v, want %v", g, want)
	}
	for i, ts := range g {
		if ts.Format("15:04") != want[i] {
			t.Fatalf("grid[%d] = %s, want %s", i, ts.Format("15:04"), want[i])
		}
	}
	if Grid(to, from, time.Minute) != nil {
		t.Fatalf("reversed range should give no grid")
	}
}

func TestAlignForwardFillsStepSeries(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }
	step := 5 * time.Minute

	basis := model.Series{Metric: "basis", Values: []model.TimedValue{
		{At: at(10), Value: 3},
		{At: at(0), Value: 1},
		{At: at(5), Value: 2},
		// gap at 15
		{At: at(20), Value: 4},
	}}
	funding := model.Series{Metric: "funding", FillForward: true, Values: []model.TimedValue{
		{At: at(-480), Value: 0.0001},
		{At: at(12), Value: 0.0002},
	}}

	pts := Align("BTCUSDT", []model.Series{basis, funding}, Grid(at(0), at(20), step), step)
	if len(pts) != 5 {
		t.Fatalf("len(points) = %d, want 5", len(pts))
	}

	wantFunding := []float64{0.0001, 0.0001, 0.0001, 0.0002, 0.0002}
	for i, p := range pts {
		if p.Values["funding"] != wantFunding[i] {
			t.Errorf("point %d funding = %v, want %v", i, p.Values["funding"], wantFunding[i])
		}
	}
	if _, ok := pts[3].Values["basis"]; ok {
		t.Errorf("basis at 00:15 should be absent, got %v", pts[3].Values["basis"])
	}
	if pts[2].Values["basis"] != 3 || pts[4].Values["basis"] != 4 {
		t.Errorf("basis values = %v / %v", pts[2].Values, pts[4].Values)
	}
	for i := 1; i < len(pts); i++ {
		if !pts[i].Timestamp.After(pts[i-1].Timestamp) {
			t.Fatalf("points not ascending at %d", i)
		}
	}
}

func TestAlignSkipsEmptyGridPoints(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := model.Series{Metric: "oi", Values: []model.TimedValue{{At: base.Add(10 * time.Minute), Value: 7}}}
	pts := Align("X", []model.Series{s}, Grid(base, base.Add(20*time.Minute), 5*time.Minute), 5*time.Minute)
	if len(pts) != 1 || pts[0].Values["oi"] != 7 {
		t.Fatalf("points = %+v, want one point with oi 7", pts)
	}
}
