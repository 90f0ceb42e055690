// Package critic couples task classifiers to the shared representations of the model.
//
// A critic predicts which task a representation came from; its binary cross entropy is
// scaled by Weight and added to the translation loss. The classifier itself reverses the
// gradient flowing back into the model, with a strength that ramps up over training
// (see Strength), so the model learns representations the critic cannot tell apart.
package critic

import "math"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/mat"

import "github.com/neurlang/seqadv/nn"

const (
	// Weight scales every critic binary cross entropy.
	Weight = 10

	// PositiveTarget and NegativeTarget are the soft labels of the positive task and of all others.
	PositiveTarget = 0.95
	NegativeTarget = 0.05

	// DefaultPositiveLabel is the tag value the critic treats as the positive class.
	DefaultPositiveLabel = "1"

	rampDelay  = 100
	rampLength = 220000
)

// ErrNoRepresentation is returned when the model did not produce a representation a critic needs.
var ErrNoRepresentation = errors.New("critic: model returned no representation")

// Classifier is the capability a critic exposes to the coupler.
type Classifier interface {
	// Classify maps a (tokens x hidden) matrix to one logit per token.
	Classify(rep *mat.Dense) []float64

	// SetStrength sets the gradient reversal coefficient.
	SetStrength(lambda float64)
}

// Strength is the gradient reversal coefficient at a global step:
// 2/(1+exp(-10p)) - 1 with p = min(1, (step-100)/220000), never negative.
func Strength(step int) float64 {
	p := math.Min(1, float64(step-rampDelay)/rampLength)
	return math.Max(0, 2/(1+math.Exp(-10*p))-1)
}

// Targets builds the soft label vector for n tokens of a task tagged tag.
func Targets(n int, tag, positive string) []float64 {
	y := NegativeTarget
	if tag == positive {
		y = PositiveTarget
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = y
	}
	return out
}

// Term is the weighted loss of one critic over one representation.
type Term struct {
	Classifier Classifier
	Rep        *mat.Dense
	Logits     []float64
	Targets    []float64
	Value      float64
}

// LogitGrad is the derivative of Value with respect to each logit.
func (t *Term) LogitGrad() []float64 {
	g := make([]float64, len(t.Logits))
	if len(g) == 0 {
		return g
	}
	n := float64(len(g))
	for i, z := range t.Logits {
		g[i] = Weight * (sigmoid(z) - t.Targets[i]) / n
	}
	return g
}

// Loss is the summed adversarial loss of every critic for one chunk.
type Loss struct {
	Terms []Term
}

// Value is the total weighted critic loss; a nil loss is worth 0.
func (l *Loss) Value() float64 {
	if l == nil {
		return 0
	}
	var v float64
	for i := range l.Terms {
		v += l.Terms[i].Value
	}
	return v
}

// Coupler owns the primary critic and the optional secondary critic.
type Coupler struct {
	primary   Classifier
	secondary Classifier

	// PositiveLabel is the tag that gets PositiveTarget.
	PositiveLabel string
}

// NewCoupler returns a coupler; secondary may be nil.
func NewCoupler(primary, secondary Classifier) *Coupler {
	return &Coupler{
		primary:       primary,
		secondary:     secondary,
		PositiveLabel: DefaultPositiveLabel,
	}
}

// HasSecondary reports whether a secondary critic is attached.
func (c *Coupler) HasSecondary() bool {
	return c.secondary != nil
}

// Ramp applies Strength(step) to every critic and returns it.
func (c *Coupler) Ramp(step int) float64 {
	lambda := Strength(step)
	c.primary.SetStrength(lambda)
	if c.secondary != nil {
		c.secondary.SetStrength(lambda)
	}
	return lambda
}

// Input is what the coupler needs from one forward chunk.
type Input struct {
	Rep, Rep2 *nn.Sequence

	// MinSrcLen restricts the representations to the valid source length.
	MinSrcLen int

	// Active is the tag consumed for this chunk.
	Active string
	// Trailing is the tag preceding Active; HasTrailing is false when Active was the first tag.
	Trailing    string
	HasTrailing bool
}

// Loss computes the critic loss for one chunk.
func (c *Coupler) Loss(in Input) (*Loss, error) {
	if in.Rep == nil {
		return nil, ErrNoRepresentation
	}
	loss := &Loss{}
	loss.Terms = append(loss.Terms, c.term(c.primary, in.Rep.Truncate(in.MinSrcLen), in.Active))

	if c.secondary != nil && in.HasTrailing {
		if in.Rep2 == nil {
			return nil, errors.Wrap(ErrNoRepresentation, "secondary critic")
		}
		loss.Terms = append(loss.Terms, c.term(c.secondary, in.Rep2.Truncate(in.MinSrcLen), in.Trailing))
	}
	return loss, nil
}

func (c *Coupler) term(cl Classifier, rep *mat.Dense, tag string) Term {
	t := Term{Classifier: cl, Rep: rep}
	if rep == nil {
		return t
	}
	t.Logits = cl.Classify(rep)
	t.Targets = Targets(len(t.Logits), tag, c.PositiveLabel)
	if len(t.Logits) == 0 {
		return t
	}
	t.Value = Weight * bceWithLogits(t.Logits, t.Targets)
	return t
}

// bceWithLogits is the mean binary cross entropy, computed stably from logits.
func bceWithLogits(z, y []float64) float64 {
	var sum float64
	for i := range z {
		sum += math.Max(z[i], 0) - z[i]*y[i] + math.Log1p(math.Exp(-math.Abs(z[i])))
	}
	return sum / float64(len(z))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
