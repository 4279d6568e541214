package engine

import (
	"math"
	"sort"
	"time"
)

// Recency is the decayed recency signal rate^hours. Negative elapsed time
// (clock skew) counts as zero, so the result is in (0, 1].
func Recency(rate, hours float64) float64 {
	if hours < 0 {
		hours = 0
	}
	return math.Pow(rate, hours)
}

// hoursSince returns the hours elapsed from t to now.
func hoursSince(now, t time.Time) float64 {
	return now.Sub(t).Hours()
}

// Normalize min-max scales values to [0, 1]. If every value is equal the
// result is all zeros.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// CompositeScores sums the independently normalized signals per candidate.
// The three slices must have equal length.
func CompositeScores(relevance, importance, recency []float64) []float64 {
	rel := Normalize(relevance)
	imp := Normalize(importance)
	rec := Normalize(recency)

	out := make([]float64, len(rel))
	for i := range out {
		out[i] = rel[i] + imp[i] + rec[i]
	}
	return out
}

// rankByScore returns candidate positions ordered by descending score,
// keeping input order among ties.
func rankByScore(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}
