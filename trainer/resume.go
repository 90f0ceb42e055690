package trainer

import "context"

import "github.com/pkg/errors"

import "github.com/neurlang/seqadv/average"
import "github.com/neurlang/seqadv/nn"

// Loader reads a checkpoint into params and returns the step it was saved at
// and its moving average, nil when it has none.
type Loader interface {
	Load(ctx context.Context, path string, params []*nn.Param) (step int, avg [][]float64, err error)
}

// stepSetter is implemented by optimizers whose step can be moved.
type stepSetter interface {
	SetTrainingStep(step int)
}

// Resume continues from a checkpoint: the model parameters and the moving average
// are restored and the optimizer continues after the saved step.
func (t *Trainer) Resume(ctx context.Context, loader Loader, path string) error {
	step, avg, err := loader.Load(ctx, path, t.model.Parameters())
	if err != nil {
		return errors.Wrapf(err, "resume from %s", path)
	}
	if s, ok := t.optim.(stepSetter); ok {
		s.SetTrainingStep(step + 1)
	}
	if avg != nil {
		if t.average == nil {
			t.average = average.New(t.opts.AverageDecay, t.opts.Threads)
		}
		t.average.Load(avg)
	}
	t.logger.Info("resumed", "path", path, "step", step, "average", avg != nil)
	return nil
}
