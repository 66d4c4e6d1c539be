package service

import (
	"sort"
	"time"

	"mmon/internal/domain/model"
)

const defaultWeight = 1.0

// Combine 按每个指标声明的规则合并多源样本（纯函数）。
//
// Failed samples never contribute. A metric that no source reported is
// undefined, not zero. weights overrides the rule's own weights per source.
func Combine(symbol string, samples []model.SourceSample, rules map[string]model.Rule, weights map[string]float64, at time.Time) model.CompositeSample {
	out := model.CompositeSample{
		Symbol:    symbol,
		Metrics:   make(map[string]model.Optional, len(rules)),
		Counts:    make(map[string]int, len(rules)),
		Timestamp: at,
	}

	ok := make([]model.SourceSample, 0, len(samples))
	for _, s := range samples {
		if s.OK {
			ok = append(ok, s)
		}
	}
	// 稳定的求和顺序
	sort.SliceStable(ok, func(i, j int) bool { return ok[i].Source < ok[j].Source })
	out.ContributingSources = len(ok)

	for metric, rule := range rules {
		v, n := combineMetric(metric, rule, ok, weights)
		out.Metrics[metric] = v
		out.Counts[metric] = n
	}
	return out
}

func weightFor(source string, rule model.Rule, override map[string]float64) float64 {
	if w, ok := override[source]; ok {
		return w
	}
	if w, ok := rule.Weights[source]; ok {
		return w
	}
	return defaultWeight
}

func combineMetric(metric string, rule model.Rule, samples []model.SourceSample, weights map[string]float64) (model.Optional, int) {
	var sum, wsum float64
	n := 0
	for _, s := range samples {
		v, ok := s.Field(metric)
		if !ok {
			continue
		}
		n++
		switch rule.Kind {
		case model.RuleWeightedMean:
			w := weightFor(s.Source, rule, weights)
			sum += w * v
			wsum += w
		default:
			sum += v
		}
	}
	if n == 0 {
		return model.None(), 0
	}
	switch rule.Kind {
	case model.RuleSum:
		return model.Some(sum), n
	case model.RuleWeightedMean:
		if wsum <= 0 {
			return model.None(), n
		}
		return model.Some(sum / wsum), n
	default:
		return model.Some(sum / float64(n)), n
	}
}
