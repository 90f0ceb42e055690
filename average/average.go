// Package average keeps an exponential moving average of the model parameters.
//
// The average is never part of the training graph: it is swapped into the model
// for validation and written to checkpoints.
package average

import "math"

import "github.com/pkg/errors"
import "github.com/x448/float16"
import "gonum.org/v1/gonum/floats"

import "github.com/neurlang/seqadv/nn"
import "github.com/neurlang/seqadv/parallel"

// Precision is the working precision of the model parameters.
type Precision string

const (
	FP32 Precision = "fp32"
	FP16 Precision = "fp16"
)

// ErrShapeMismatch is returned when the parameters do not line up with the average.
var ErrShapeMismatch = errors.New("average: parameters do not match the moving average")

// Tracker holds one float64 snapshot per model parameter, in parameter order.
type Tracker struct {
	decay   float64
	threads int
	avg     [][]float64
}

// New returns a tracker whose decay never falls below decay. Updates of
// distinct parameters run on up to threads goroutines.
func New(decay float64, threads int) *Tracker {
	return &Tracker{decay: decay, threads: threads}
}

// Decay is the weight of the old average at a step: max(decay, 1-(step+1)/(step+10)).
// It starts at 0.9 and does not increase with step.
func (t *Tracker) Decay(step int) float64 {
	return math.Max(t.decay, 1-float64(step+1)/float64(step+10))
}

// Ready reports whether the first snapshot was taken.
func (t *Tracker) Ready() bool {
	return t.avg != nil
}

// Snapshot returns the averaged values; nil before the first Update.
func (t *Tracker) Snapshot() [][]float64 {
	return t.avg
}

// Load replaces the average, e.g. with one read back from a checkpoint.
func (t *Tracker) Load(avg [][]float64) {
	t.avg = avg
}

// Update snapshots params on the first call and blends them in afterwards.
func (t *Tracker) Update(step int, params []*nn.Param) error {
	if t.avg == nil {
		avg := make([][]float64, len(params))
		for i, p := range params {
			avg[i] = append([]float64(nil), p.Value...)
		}
		t.avg = avg
		return nil
	}
	if err := t.check(params); err != nil {
		return err
	}

	decay := t.Decay(step)
	parallel.ForEach(len(params), t.threads, func(i int) {
		floats.Scale(decay, t.avg[i])
		floats.AddScaled(t.avg[i], 1-decay, params[i].Value)
	})
	return nil
}

func (t *Tracker) check(params []*nn.Param) error {
	if len(params) != len(t.avg) {
		return errors.Wrapf(ErrShapeMismatch, "%d parameters, %d averages", len(params), len(t.avg))
	}
	for i, p := range params {
		if len(p.Value) != len(t.avg[i]) {
			return errors.Wrapf(ErrShapeMismatch, "parameter %q has %d values, average %d", p.Name, len(p.Value), len(t.avg[i]))
		}
	}
	return nil
}

// Swap overwrites the parameter values with the average, rounded to the working
// precision, and returns the func restoring the originals. Callers defer it.
func (t *Tracker) Swap(params []*nn.Param, precision Precision) (restore func(), err error) {
	if t.avg == nil {
		return func() {}, nil
	}
	if err := t.check(params); err != nil {
		return nil, err
	}

	backup := make([][]float64, len(params))
	for i, p := range params {
		backup[i] = append([]float64(nil), p.Value...)
		copy(p.Value, t.avg[i])
		if precision == FP16 {
			for j, v := range p.Value {
				p.Value[j] = float64(float16.Fromfloat32(float32(v)).Float32())
			}
		}
	}
	return func() {
		for i, p := range params {
			copy(p.Value, backup[i])
		}
	}, nil
}
