package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurlang/seqadv/nn"
)

type constLoss struct {
	p    *nn.Param
	grad []float64
}

func (l constLoss) Value() float64 { return 1 }
func (l constLoss) Backward() {
	for i, g := range l.grad {
		l.p.Grad[i] += g
	}
}

func TestStepAppliesGradientAndAdvances(t *testing.T) {
	p := nn.NewParam("w", 2)
	o, err := New([]*nn.Param{p}, HyperParameters{LearningRate: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, o.TrainingStep())

	o.ZeroGrad()
	o.Backward(constLoss{p, []float64{1, -2}})
	o.Step()

	assert.Equal(t, []float64{-0.5, 1}, p.Value)
	assert.Equal(t, 2, o.TrainingStep())

	o.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad)
}

func TestClipping(t *testing.T) {
	p := nn.NewParam("w", 2)
	o, err := New([]*nn.Param{p}, HyperParameters{LearningRate: 1, MaxGradNorm: 1})
	require.NoError(t, err)

	o.Backward(constLoss{p, []float64{3, 4}})
	assert.InDelta(t, 5, o.GradNorm(), 1e-12)
	o.Step()
	assert.InDelta(t, -0.6, p.Value[0], 1e-12)
	assert.InDelta(t, -0.8, p.Value[1], 1e-12)
}

func TestSchedules(t *testing.T) {
	tests := []struct {
		name string
		h    HyperParameters
		step int
		want float64
	}{
		{"none", HyperParameters{LearningRate: 2}, 1000, 2},
		{"rsqrt warmup", HyperParameters{LearningRate: 1, Decay: DecayRsqrt, WarmupSteps: 100}, 4, 0.1},
		{"rsqrt", HyperParameters{LearningRate: 1, Decay: DecayRsqrt, WarmupSteps: 100}, 400, 0.05},
		{"noam", HyperParameters{LearningRate: 2, Decay: DecayNoam, WarmupSteps: 4, ModelDim: 4}, 16, 2 * 0.5 * 0.25},
		{"noam warmup", HyperParameters{LearningRate: 2, Decay: DecayNoam, WarmupSteps: 4, ModelDim: 4}, 2, 2 * 0.5 * 2 * math.Pow(4, -1.5)},
		{"exp before", HyperParameters{LearningRate: 1, Decay: DecayExp, DecayRate: 0.5, StartDecaySteps: 10, DecaySteps: 5}, 4, 1},
		{"exp after", HyperParameters{LearningRate: 1, Decay: DecayExp, DecayRate: 0.5, StartDecaySteps: 10, DecaySteps: 5}, 15, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New(nil, tt.h)
			require.NoError(t, err)
			o.SetTrainingStep(tt.step)
			assert.InDelta(t, tt.want, o.LearningRate(), 1e-12)
			assert.Equal(t, tt.step, o.TrainingStep())
		})
	}
}

func TestInvalidHyperParameters(t *testing.T) {
	for _, h := range []HyperParameters{
		{},
		{LearningRate: 1, Decay: "cosine"},
		{LearningRate: 1, Decay: DecayNoam, WarmupSteps: 10},
		{LearningRate: 1, Decay: DecayRsqrt},
		{LearningRate: 1, Decay: DecayExp},
	} {
		_, err := New(nil, h)
		assert.ErrorIs(t, err, ErrInvalidHyperParameters, "%+v", h)
	}
}
