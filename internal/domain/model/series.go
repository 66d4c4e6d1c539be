package model

import "time"

// Contribution is one source's latest value for a cache key.
type Contribution struct {
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	Value      float64   `json:"value"`
	ReportedAt time.Time `json:"reported_at"`
}

// Point 时间序列中的一行；缺失的指标不出现在 Values 中。
type Point struct {
	Symbol    string             `json:"symbol"`
	Timestamp time.Time          `json:"ts"`
	Values    map[string]float64 `json:"values"`
}

type TimedValue struct {
	At    time.Time
	Value float64
}

// Series is one metric's raw history from a bulk source.
// FillForward marks low-frequency step series (funding) whose last
// known value holds until the next observation.
type Series struct {
	Metric      string
	Values      []TimedValue
	FillForward bool
}
