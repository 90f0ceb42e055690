package toy

import "gonum.org/v1/gonum/mat"

import "github.com/neurlang/seqadv/nn"

// Critic is a logistic regression over representation rows with gradient reversal.
type Critic struct {
	weight, bias *nn.Param
	lambda       float64
}

func newCritic(name string, hidden int) *Critic {
	return &Critic{
		weight: nn.NewParam(name+".weight", hidden, 1),
		bias:   nn.NewParam(name+".bias", 1),
	}
}

// Classify implements critic.Classifier.
func (c *Critic) Classify(rep *mat.Dense) []float64 {
	r, _ := rep.Dims()
	var z mat.VecDense
	z.MulVec(rep, mat.NewVecDense(len(c.weight.Value), c.weight.Value))
	out := make([]float64, r)
	for i := range out {
		out[i] = z.AtVec(i) + c.bias.Value[0]
	}
	return out
}

// SetStrength implements critic.Classifier.
func (c *Critic) SetStrength(lambda float64) {
	c.lambda = lambda
}

// Strength is the current gradient reversal coefficient.
func (c *Critic) Strength() float64 {
	return c.lambda
}

// backward accumulates the critic gradients for dz = dLoss/dlogits and returns the
// reversed gradient for the representation rows.
func (c *Critic) backward(rep *mat.Dense, dz []float64) *mat.Dense {
	r, h := rep.Dims()
	g := mat.NewVecDense(r, dz)

	var dw mat.VecDense
	dw.MulVec(rep.T(), g)
	for i := 0; i < h; i++ {
		c.weight.Grad[i] += dw.AtVec(i)
	}
	for _, v := range dz {
		c.bias.Grad[0] += v
	}

	drep := mat.NewDense(r, h, nil)
	drep.Outer(-c.lambda, g, mat.NewVecDense(h, c.weight.Value))
	return drep
}

func (c *Critic) params() []*nn.Param {
	return []*nn.Param{c.weight, c.bias}
}
