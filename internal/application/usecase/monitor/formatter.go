package monitor

import (
	"fmt"
	"sort"
	"strings"

	"mmon/internal/domain/model"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Render 一行输出所有交易对：资金费率 / 基差 / OI 合计 / mid
func (f *Formatter) Render(r Reader, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[MMON] ", ansiDim))

	for i, sym := range r.Symbols() {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		sb.WriteString(sym)
		v, ok := r.View(sym)
		if !ok {
			sb.WriteString(colorize(" --", ansiDim))
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(f.symbolLine(v))
	}

	if mode == RenderSnapshot {
		if h := f.holdingsLine(r.Holdings()); h != "" {
			sb.WriteString(colorize("  ||  ", ansiDim))
			sb.WriteString(h)
		}
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

func (f *Formatter) symbolLine(v SymbolView) string {
	c := v.Composite
	parts := make([]string, 0, 4)

	// 资金费率：正绿负红
	fr := "F:--"
	frCol := ansiYellow
	if x, ok := c.Metric(model.MetricFunding).Get(); ok {
		fr = fmt.Sprintf("F:%+.4f%%(%d)", x*100, c.Counts[model.MetricFunding])
		switch {
		case x > 0:
			frCol = ansiGreen
		case x < 0:
			frCol = ansiRed
		}
	}
	parts = append(parts, colorize(fr, frCol))

	basis := "B:--"
	if x, ok := c.Metric(model.MetricBasis).Get(); ok {
		basis = fmt.Sprintf("B:%+.2f", x)
	}
	parts = append(parts, basis)

	// OI 未凑够 quorum 时显示进度
	if x, ok := v.OITotal.Get(); ok {
		parts = append(parts, fmt.Sprintf("OI:%.0f", x))
	} else {
		parts = append(parts, colorize(fmt.Sprintf("OI:--(%d/%d)", v.OIHave, v.OINeed), ansiYellow))
	}

	mid := "M:--"
	midCol := ansiYellow
	if x, ok := c.Metric(model.MetricMid).Get(); ok {
		mid = fmt.Sprintf("M:%.2f", x)
		switch v.MidDir {
		case DirUp:
			midCol = ansiGreen
		case DirDown:
			midCol = ansiRed
		}
	}
	parts = append(parts, colorize(mid, midCol))

	return strings.Join(parts, " ")
}

func (f *Formatter) holdingsLine(h map[string]map[string]float64) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		// per-venue rows are persisted but too noisy for the console
		if strings.Contains(k, ":") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		assets := make([]string, 0, len(h[k]))
		for a, v := range h[k] {
			if v != 0 {
				assets = append(assets, fmt.Sprintf("%s=%g", a, v))
			}
		}
		if len(assets) == 0 {
			continue
		}
		sort.Strings(assets)
		parts = append(parts, k+" "+strings.Join(assets, ","))
	}
	return strings.Join(parts, " ")
}
