package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecency(t *testing.T) {
	assert.Equal(t, 1.0, Recency(0.99, 0))
	assert.Equal(t, 1.0, Recency(0.99, -5), "clock skew counts as no elapsed time")
	assert.InDelta(t, 0.5, Recency(0.99, math.Log(0.5)/math.Log(0.99)), 1e-9)

	prev := Recency(0.99, 0)
	for h := 1.0; h <= 1000; h *= 2 {
		r := Recency(0.99, h)
		assert.Less(t, r, prev)
		assert.Greater(t, r, 0.0)
		prev = r
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"empty", nil, []float64{}},
		{"single", []float64{0.7}, []float64{0}},
		{"all equal", []float64{3, 3, 3}, []float64{0, 0, 0}},
		{"range", []float64{9, 1, 5}, []float64{1, 0, 0.5}},
		{"negative", []float64{-1, 1}, []float64{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestCompositeScores_ThreeCandidates(t *testing.T) {
	scores := CompositeScores(
		[]float64{0.9, 0.5, 0.2},
		[]float64{9, 1, 5},
		[]float64{1.0, 0.5, 0.1},
	)

	assert.InDelta(t, 3.0, scores[0], 1e-9)
	assert.InDelta(t, 0.3/0.7+0.4/0.9, scores[1], 1e-9)
	assert.InDelta(t, 0.873, scores[1], 1e-3)
	assert.InDelta(t, 0.5, scores[2], 1e-9)

	assert.Equal(t, []int{0, 1, 2}, rankByScore(scores))
}

func TestRankByScore_StableTies(t *testing.T) {
	assert.Equal(t, []int{1, 3, 0, 2}, rankByScore([]float64{0.5, 2, 0.5, 2}))
	assert.Empty(t, rankByScore(nil))
}

func TestParseImportance(t *testing.T) {
	tests := []struct {
		reply  string
		want   int
		wantOK bool
	}{
		{"7", 7, true},
		{" 3\n", 3, true},
		{"I'd say 8 out of 9", 8, true},
		{"Rating: 2. Because...", 2, true},
		{"0", 0, true},
		{"nine", 5, false},
		{"", 5, false},
		{"NaN", 5, false},
		{"Inf", 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, ok := ParseImportance(tt.reply)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
