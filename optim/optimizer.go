// Package optim implements the optimizer driving the global training step.
package optim

import "math"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/floats"

import "github.com/neurlang/seqadv/nn"

// ErrInvalidHyperParameters is returned for a configuration the optimizer cannot run with.
var ErrInvalidHyperParameters = errors.New("optim: invalid hyper parameters")

// Optimizer is plain SGD over nn parameters with scheduled learning rate and
// global gradient norm clipping. TrainingStep starts at 1 and grows by one per Step.
type Optimizer struct {
	h      HyperParameters
	params []*nn.Param
	step   int
	lr     float64
}

// New validates the hyper parameters and returns an optimizer at step 1.
func New(params []*nn.Param, h HyperParameters) (*Optimizer, error) {
	if h.LearningRate <= 0 {
		return nil, errors.Wrapf(ErrInvalidHyperParameters, "learning rate %v", h.LearningRate)
	}
	if h.Decay == "" {
		h.Decay = DecayNone
	}
	switch h.Decay {
	case DecayNone:
	case DecayNoam, DecayRsqrt:
		if h.WarmupSteps <= 0 {
			return nil, errors.Wrapf(ErrInvalidHyperParameters, "%s decay needs warmup steps", h.Decay)
		}
		if h.Decay == DecayNoam && h.ModelDim <= 0 {
			return nil, errors.Wrap(ErrInvalidHyperParameters, "noam decay needs the model dimension")
		}
	case DecayExp:
		if h.DecaySteps <= 0 {
			return nil, errors.Wrap(ErrInvalidHyperParameters, "exp decay needs decay steps")
		}
	default:
		return nil, errors.Wrapf(ErrInvalidHyperParameters, "unknown decay %q", h.Decay)
	}
	o := &Optimizer{h: h, params: params, step: 1}
	o.lr = o.rate(o.step)
	return o, nil
}

// TrainingStep is the global step the next Step will apply.
func (o *Optimizer) TrainingStep() int {
	return o.step
}

// SetTrainingStep moves the step counter, used when resuming.
func (o *Optimizer) SetTrainingStep(step int) {
	o.step = step
	o.lr = o.rate(step)
}

// LearningRate is the rate the next Step will apply.
func (o *Optimizer) LearningRate() float64 {
	return o.lr
}

// ZeroGrad clears every gradient.
func (o *Optimizer) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}

// Backward back-propagates loss into the parameter gradients.
func (o *Optimizer) Backward(loss nn.Loss) {
	loss.Backward()
}

// GradNorm is the L2 norm of all gradients together.
func (o *Optimizer) GradNorm() float64 {
	var sq float64
	for _, p := range o.params {
		n := floats.Norm(p.Grad, 2)
		sq += n * n
	}
	return math.Sqrt(sq)
}

// Step applies one update and advances the training step.
func (o *Optimizer) Step() {
	scale := o.lr
	if o.h.MaxGradNorm > 0 {
		if norm := o.GradNorm(); norm > o.h.MaxGradNorm {
			scale *= o.h.MaxGradNorm / norm
		}
	}
	for _, p := range o.params {
		floats.AddScaled(p.Value, -scale, p.Grad)
	}
	o.step++
	o.lr = o.rate(o.step)
}

func (o *Optimizer) rate(step int) float64 {
	s := float64(step)
	switch o.h.Decay {
	case DecayNoam:
		w := float64(o.h.WarmupSteps)
		return o.h.LearningRate * math.Pow(float64(o.h.ModelDim), -0.5) *
			math.Min(math.Pow(s, -0.5), s*math.Pow(w, -1.5))
	case DecayRsqrt:
		return o.h.LearningRate / math.Sqrt(math.Max(s, float64(o.h.WarmupSteps)))
	case DecayExp:
		periods := (step - o.h.StartDecaySteps + o.h.DecaySteps) / o.h.DecaySteps
		if periods < 0 {
			periods = 0
		}
		return o.h.LearningRate * math.Pow(o.h.DecayRate, float64(periods))
	}
	return o.h.LearningRate
}
