package trainer

import "github.com/pkg/errors"

import "github.com/neurlang/seqadv/datasets"

// MicroBatchGroup is the unit of one accumulated optimizer update.
type MicroBatchGroup struct {
	Batches []*datasets.Batch

	// Normalization is the sum of target tokens or sentences over Batches.
	Normalization float64
}

// accumulator buffers up to count batches of one task into groups.
type accumulator struct {
	iter  datasets.Iterator
	count int
	norm  string
	epoch int
}

func newAccumulator(iter datasets.Iterator, count int, norm string) *accumulator {
	return &accumulator{iter: iter, count: count, norm: norm}
}

// Next returns the next group. The last group of an epoch may be smaller;
// the call after it restarts the iterator.
func (a *accumulator) Next() (*MicroBatchGroup, error) {
	g := &MicroBatchGroup{}
	restarted := false
	for len(g.Batches) < a.count {
		b, ok := a.iter.Next()
		if !ok {
			if len(g.Batches) > 0 {
				break
			}
			if restarted {
				return nil, errors.Wrapf(ErrEmptyTask, "epoch %d", a.epoch)
			}
			a.iter.Reset()
			a.epoch++
			restarted = true
			continue
		}
		g.Batches = append(g.Batches, b)
		g.Normalization += a.normalization(b)
	}
	return g, nil
}

func (a *accumulator) normalization(b *datasets.Batch) float64 {
	if a.norm == NormTokens {
		return float64(b.TargetTokens(datasets.PadIndex))
	}
	return float64(b.BatchSize)
}
