package toy

import "math"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/mat"

import "github.com/neurlang/seqadv/critic"
import "github.com/neurlang/seqadv/datasets"
import "github.com/neurlang/seqadv/nn"
import "github.com/neurlang/seqadv/stats"

// LossCompute scores decoder outputs with the generator and a softmax cross entropy.
type LossCompute struct {
	model   *Model
	train   bool
	padding int
}

// NewLossCompute returns the training (train=true) or validation loss of m.
func NewLossCompute(m *Model, train bool) *LossCompute {
	return &LossCompute{model: m, train: train, padding: datasets.PadIndex}
}

// Compute scores out against the gold target rows TruncStart+1 onwards.
func (lc *LossCompute) Compute(batch *datasets.Batch, out nn.ForwardOutput, opts nn.LossOptions) (nn.Loss, *stats.Statistics, error) {
	st := &stats.Statistics{}
	h := out.Outputs
	steps := h.Steps()
	if steps == 0 {
		return nil, st, nil
	}
	if opts.TruncStart+steps >= len(batch.Tgt) {
		return nil, nil, errors.Wrapf(ErrBadInput, "%d outputs from row %d, target has %d rows", steps, opts.TruncStart, len(batch.Tgt))
	}

	gen := lc.model.gen
	var logits mat.Dense
	logits.Mul(h.Hidden, gen.Matrix().T())
	rows, vocab := logits.Dims()
	dlogits := mat.NewDense(rows, vocab, nil)

	norm := opts.Normalization
	if norm <= 0 {
		norm = 1
	}
	for i := 0; i < rows; i++ {
		y := batch.Tgt[opts.TruncStart+1+i/h.Batch][i%h.Batch]
		if y == lc.padding {
			continue
		}
		z := logits.RawRowView(i)
		best, zmax := 0, z[0]
		for v, x := range z {
			if x > zmax {
				best, zmax = v, x
			}
		}
		var sum float64
		for _, x := range z {
			sum += math.Exp(x - zmax)
		}
		st.Loss += -(z[y] - zmax - math.Log(sum))
		st.NWords++
		if best == y {
			st.NCorrect++
		}
		g := dlogits.RawRowView(i)
		for v, x := range z {
			g[v] = math.Exp(x-zmax) / sum / norm
		}
		g[y] -= 1 / norm
	}

	p := lc.model.last
	if !lc.train || p == nil || p.states != h {
		return nil, st, nil
	}
	l := &loss{
		value:   st.Loss / norm,
		pass:    p,
		gen:     gen,
		hidden:  h.Hidden,
		dlogits: dlogits,
	}
	if cl, ok := opts.Critic.(*critic.Loss); ok && cl != nil {
		l.critic = cl
		l.value += cl.Value()
	}
	if opts.ShardSize > 0 {
		l.Backward()
		return nil, st, nil
	}
	return l, st, nil
}

type loss struct {
	value   float64
	pass    *pass
	gen     *nn.Param
	hidden  *mat.Dense
	dlogits *mat.Dense
	critic  *critic.Loss
}

func (l *loss) Value() float64 {
	return l.value
}

func (l *loss) Backward() {
	var dw mat.Dense
	dw.Mul(l.dlogits.T(), l.hidden)
	grad := l.gen.GradMatrix()
	grad.Add(grad, &dw)

	var dh mat.Dense
	dh.Mul(l.dlogits, l.gen.Matrix())
	l.pass.backwardOutputs(&dh)

	if l.critic == nil {
		return
	}
	for i := range l.critic.Terms {
		term := &l.critic.Terms[i]
		c, ok := term.Classifier.(*Critic)
		if !ok || term.Rep == nil || len(term.Logits) == 0 {
			continue
		}
		l.pass.backwardRep(c.backward(term.Rep, term.LogitGrad()))
	}
}
