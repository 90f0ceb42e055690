package average

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurlang/seqadv/nn"
)

func params(values ...[]float64) []*nn.Param {
	out := make([]*nn.Param, len(values))
	for i, v := range values {
		out[i] = &nn.Param{Name: "p", Value: append([]float64(nil), v...)}
	}
	return out
}

func TestFirstUpdateCopiesParameters(t *testing.T) {
	tr := New(0.999, 2)
	assert.False(t, tr.Ready())

	ps := params([]float64{1, 2}, []float64{3})
	require.NoError(t, tr.Update(5, ps))
	assert.True(t, tr.Ready())
	assert.Equal(t, [][]float64{{1, 2}, {3}}, tr.Snapshot())

	// the snapshot is detached from the live values
	ps[0].Value[0] = 100
	assert.Equal(t, 1.0, tr.Snapshot()[0][0])
}

func TestDecay(t *testing.T) {
	tr := New(0.5, 1)
	assert.InDelta(t, 0.9, tr.Decay(0), 1e-12)
	for _, s := range []int{1, 10, 100, 1000} {
		assert.Equal(t, math.Max(0.5, 1-float64(s+1)/float64(s+10)), tr.Decay(s))
	}

	prev := tr.Decay(0)
	for s := 1; s < 5000; s++ {
		d := tr.Decay(s)
		assert.LessOrEqual(t, d, prev)
		assert.GreaterOrEqual(t, d, 0.5)
		prev = d
	}
	assert.Equal(t, 0.5, tr.Decay(1_000_000))
}

func TestUpdateBlends(t *testing.T) {
	tr := New(0, 4)
	ps := params([]float64{0, 10}, []float64{4})
	require.NoError(t, tr.Update(0, ps))

	ps[0].Value[0], ps[0].Value[1], ps[1].Value[0] = 1, 20, 8
	require.NoError(t, tr.Update(8, ps))

	d := tr.Decay(8)
	assert.InDelta(t, 0.5, d, 1e-12)
	assert.InDelta(t, d*0+(1-d)*1, tr.Snapshot()[0][0], 1e-12)
	assert.InDelta(t, d*10+(1-d)*20, tr.Snapshot()[0][1], 1e-12)
	assert.InDelta(t, d*4+(1-d)*8, tr.Snapshot()[1][0], 1e-12)
}

func TestUpdateShapeMismatch(t *testing.T) {
	tr := New(0.9, 1)
	require.NoError(t, tr.Update(0, params([]float64{1})))
	assert.ErrorIs(t, tr.Update(1, params([]float64{1}, []float64{2})), ErrShapeMismatch)
	assert.ErrorIs(t, tr.Update(1, params([]float64{1, 2})), ErrShapeMismatch)
}

func TestSwapRestores(t *testing.T) {
	tr := New(0.9, 1)
	ps := params([]float64{1.0001, 2})
	tr.Load([][]float64{{5.0001, 6}})

	restore, err := tr.Swap(ps, FP32)
	require.NoError(t, err)
	assert.Equal(t, []float64{5.0001, 6}, ps[0].Value)
	restore()
	assert.Equal(t, []float64{1.0001, 2}, ps[0].Value)

	restore, err = tr.Swap(ps, FP16)
	require.NoError(t, err)
	// binary16 has an 11 bit significand
	assert.Equal(t, 5.0, ps[0].Value[0])
	assert.Equal(t, 6.0, ps[0].Value[1])
	restore()
	assert.Equal(t, []float64{1.0001, 2}, ps[0].Value)
}

func TestSwapBeforeFirstUpdateIsNoop(t *testing.T) {
	ps := params([]float64{1})
	restore, err := New(0.9, 1).Swap(ps, FP32)
	require.NoError(t, err)
	restore()
	assert.Equal(t, []float64{1}, ps[0].Value)
}
