package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerplexityFloor(t *testing.T) {
	tests := []struct {
		name string
		s    Statistics
	}{
		{"empty", Statistics{}},
		{"zero loss", Statistics{Loss: 0, NWords: 10}},
		{"negative loss", Statistics{Loss: -3, NWords: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 1+PerplexityEpsilon, tt.s.Perplexity())
			assert.InDelta(t, 0, tt.s.SkipProbability(), 1e-5)
			assert.GreaterOrEqual(t, tt.s.SkipProbability(), 0.0)
		})
	}
}

func TestSkipProbabilityTendsToOne(t *testing.T) {
	s := Statistics{Loss: 1e6, NWords: 1}
	assert.Equal(t, math.Exp(maxXEnt), s.Perplexity())
	assert.InDelta(t, 1, s.SkipProbability(), 1e-12)

	var prev float64
	for _, loss := range []float64{1, 2, 4, 8, 16} {
		p := (&Statistics{Loss: loss, NWords: 1}).SkipProbability()
		assert.Greater(t, p, prev)
		prev = p
	}
}

func TestUpdateIsAdditive(t *testing.T) {
	total := New("de", "1")
	assert.Equal(t, "de-1", total.Basename)

	total.Update(&Statistics{Loss: 2, NWords: 4, NCorrect: 1, NSrcWords: 3}, 0.5)
	total.Update(&Statistics{Loss: 1, NWords: 2, NCorrect: 2}, 0)
	total.Update(nil, 0.25)

	assert.Equal(t, 3.0, total.Loss)
	assert.Equal(t, 6, total.NWords)
	assert.Equal(t, 3, total.NCorrect)
	assert.Equal(t, 3, total.NSrcWords)
	assert.Equal(t, 0.75, total.CriticLoss)
	assert.InDelta(t, 50, total.Accuracy(), 1e-9)
	assert.InDelta(t, math.Exp(0.5), total.Perplexity(), 1e-9)
}

func TestMerge(t *testing.T) {
	early := time.Now().Add(-time.Hour)
	a := &Statistics{Loss: 1, NWords: 1, StartTime: time.Now()}
	b := &Statistics{Loss: 2, NWords: 3, StartTime: early}

	m := Merge("all", a, nil, b)
	assert.Equal(t, "all", m.Basename)
	assert.Equal(t, 3.0, m.Loss)
	assert.Equal(t, 4, m.NWords)
	assert.Equal(t, early, m.StartTime)
}
