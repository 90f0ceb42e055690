package critic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/neurlang/seqadv/nn"
)

// constant emits the same logit for every row and records what it saw.
type constant struct {
	logit    float64
	strength float64
	rows     int
}

func (c *constant) Classify(rep *mat.Dense) []float64 {
	c.rows, _ = rep.Dims()
	out := make([]float64, c.rows)
	for i := range out {
		out[i] = c.logit
	}
	return out
}

func (c *constant) SetStrength(lambda float64) { c.strength = lambda }

func sequence(steps, batch, hidden int) *nn.Sequence {
	return &nn.Sequence{Hidden: mat.NewDense(steps*batch, hidden, nil), Batch: batch}
}

func TestTargets(t *testing.T) {
	assert.Equal(t, []float64{0.95, 0.95, 0.95, 0.95, 0.95}, Targets(5, "1", DefaultPositiveLabel))
	assert.Equal(t, []float64{0.05, 0.05, 0.05, 0.05, 0.05}, Targets(5, "2", DefaultPositiveLabel))
}

func TestCouplerLossTargetsFollowActiveTag(t *testing.T) {
	tests := []struct {
		tag  string
		want float64
	}{
		{"1", PositiveTarget},
		{"2", NegativeTarget},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			cl := &constant{}
			c := NewCoupler(cl, nil)
			// 5 valid steps of batch 1 out of 7
			loss, err := c.Loss(Input{Rep: sequence(7, 1, 3), MinSrcLen: 5, Active: tt.tag})
			require.NoError(t, err)
			require.Len(t, loss.Terms, 1)
			assert.Equal(t, 5, cl.rows)
			assert.Equal(t, []float64{tt.want, tt.want, tt.want, tt.want, tt.want}, loss.Terms[0].Targets)
			// logits of zero give BCE log(2) whatever the target
			assert.InDelta(t, Weight*math.Ln2, loss.Value(), 1e-12)
		})
	}
}

func TestCouplerSecondaryUsesTrailingTag(t *testing.T) {
	primary, secondary := &constant{logit: 2}, &constant{logit: -2}
	c := NewCoupler(primary, secondary)
	require.True(t, c.HasSecondary())

	in := Input{
		Rep: sequence(4, 2, 3), Rep2: sequence(4, 2, 3), MinSrcLen: 3,
		Active: "2", Trailing: "1", HasTrailing: true,
	}
	loss, err := c.Loss(in)
	require.NoError(t, err)
	require.Len(t, loss.Terms, 2)
	assert.Equal(t, 6, secondary.rows)
	assert.Equal(t, NegativeTarget, loss.Terms[0].Targets[0])
	assert.Equal(t, PositiveTarget, loss.Terms[1].Targets[0])
	assert.InDelta(t, loss.Terms[0].Value+loss.Terms[1].Value, loss.Value(), 1e-12)

	in.HasTrailing = false
	loss, err = c.Loss(in)
	require.NoError(t, err)
	assert.Len(t, loss.Terms, 1)

	in.HasTrailing = true
	in.Rep2 = nil
	_, err = c.Loss(in)
	assert.ErrorIs(t, err, ErrNoRepresentation)
}

func TestCouplerWithoutRepresentation(t *testing.T) {
	_, err := NewCoupler(&constant{}, nil).Loss(Input{Active: "1"})
	assert.ErrorIs(t, err, ErrNoRepresentation)

	var nilLoss *Loss
	assert.Equal(t, 0.0, nilLoss.Value())
}

func TestStrengthRamp(t *testing.T) {
	assert.Equal(t, 0.0, Strength(0))
	assert.Equal(t, 0.0, Strength(100))
	assert.InDelta(t, 2/(1+math.Exp(-10.0/220000))-1, Strength(101), 1e-15)
	assert.InDelta(t, 2/(1+math.Exp(-10.0))-1, Strength(220100), 1e-12)
	// p is capped at 1
	assert.Equal(t, Strength(220100), Strength(10_000_000))

	prev := 0.0
	for step := 0; step < 300000; step += 5000 {
		s := Strength(step)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}

	primary, secondary := &constant{}, &constant{}
	lambda := NewCoupler(primary, secondary).Ramp(50000)
	assert.Equal(t, Strength(50000), lambda)
	assert.Equal(t, lambda, primary.strength)
	assert.Equal(t, lambda, secondary.strength)
}

func TestLogitGrad(t *testing.T) {
	term := Term{Logits: []float64{0, 0}, Targets: []float64{0.95, 0.05}}
	g := term.LogitGrad()
	assert.InDelta(t, Weight*(0.5-0.95)/2, g[0], 1e-12)
	assert.InDelta(t, Weight*(0.5-0.05)/2, g[1], 1e-12)
	assert.Empty(t, (&Term{}).LogitGrad())
}
