// Package stats accumulates per-task training metrics and derives perplexity from them.
package stats

import "math"
import "strings"
import "time"

// PerplexityEpsilon keeps Perplexity strictly above 1 so that the skip probability
// derived from it stays inside [0, 1).
const PerplexityEpsilon = 1e-6

// maxXEnt caps the per-word cross entropy before exponentiation.
const maxXEnt = 100

// Statistics is an additive accumulator of loss, word counts and critic loss.
type Statistics struct {
	Basename   string
	Loss       float64
	NWords     int
	NCorrect   int
	NSrcWords  int
	CriticLoss float64
	StartTime  time.Time
}

// New returns empty statistics started now.
func New(tags ...string) *Statistics {
	return &Statistics{
		Basename:  strings.Join(tags, "-"),
		StartTime: time.Now(),
	}
}

// Restart returns empty statistics with the same basename, started now.
func (s *Statistics) Restart() *Statistics {
	return &Statistics{Basename: s.Basename, StartTime: time.Now()}
}

// Update adds the batch statistics and the critic loss of one chunk.
func (s *Statistics) Update(batch *Statistics, criticLoss float64) {
	if batch != nil {
		s.Loss += batch.Loss
		s.NWords += batch.NWords
		s.NCorrect += batch.NCorrect
		s.NSrcWords += batch.NSrcWords
		s.CriticLoss += batch.CriticLoss
	}
	s.CriticLoss += criticLoss
}

// XEnt is the mean cross entropy per target word.
func (s *Statistics) XEnt() float64 {
	if s.NWords == 0 {
		return 0
	}
	return s.Loss / float64(s.NWords)
}

// Perplexity returns exp(XEnt), never lower than 1+PerplexityEpsilon.
func (s *Statistics) Perplexity() float64 {
	ppl := math.Exp(math.Min(s.XEnt(), maxXEnt))
	if ppl < 1+PerplexityEpsilon || math.IsNaN(ppl) {
		return 1 + PerplexityEpsilon
	}
	return ppl
}

// SkipProbability is 1 - 1/Perplexity. It tends to 0 for an easy task and to 1
// for a task whose perplexity grows without bound.
func (s *Statistics) SkipProbability() float64 {
	return 1 - 1/s.Perplexity()
}

// Accuracy in percent of correctly predicted target words.
func (s *Statistics) Accuracy() float64 {
	if s.NWords == 0 {
		return 0
	}
	return 100 * float64(s.NCorrect) / float64(s.NWords)
}

// ElapsedTime since the statistics were started.
func (s *Statistics) ElapsedTime() time.Duration {
	return time.Since(s.StartTime)
}

// Merge sums a list of statistics into a new value keeping the earliest start time.
func Merge(basename string, list ...*Statistics) *Statistics {
	out := &Statistics{Basename: basename}
	for _, s := range list {
		if s == nil {
			continue
		}
		out.Update(s, 0)
		if out.StartTime.IsZero() || (!s.StartTime.IsZero() && s.StartTime.Before(out.StartTime)) {
			out.StartTime = s.StartTime
		}
	}
	return out
}
