package trainer

import "github.com/pkg/errors"

import "github.com/neurlang/seqadv/nn"
import "github.com/neurlang/seqadv/stats"

// maybeValidate validates once per step on the validation cadence.
func (t *Trainer) maybeValidate(step, validSteps int, valid *ValidSet) error {
	if valid == nil || validSteps <= 0 || step < 0 || step%validSteps != 0 {
		return nil
	}
	if !t.validated.Insert(step) {
		return nil
	}

	if t.opts.VerboseLevel > 0 {
		t.logger.Debug("validate", "step", step)
	}
	vs, err := t.Validate(valid)
	if err != nil {
		return errors.Wrapf(err, "validate step %d", step)
	}
	t.logger.Info("validation",
		"step", step,
		"ppl", vs.Perplexity(),
		"acc", vs.Accuracy(),
		"xent", vs.XEnt())
	if t.report != nil {
		t.report.ReportStep(t.optim.LearningRate(), step, nil, vs)
	}
	return nil
}

// Validate runs the validation set through the model in evaluation mode, with the
// moving average swapped in when there is one. The model is back in training mode
// with its own parameters on return.
func (t *Trainer) Validate(valid *ValidSet) (*stats.Statistics, error) {
	t.model.Eval()
	defer t.model.Train()

	if t.average != nil && t.average.Ready() {
		restore, err := t.average.Swap(t.model.Parameters(), t.opts.Precision)
		if err != nil {
			return nil, err
		}
		defer restore()
	}

	st := stats.New(valid.Tags...)
	valid.Iterator.Reset()
	for {
		batch, ok := valid.Iterator.Next()
		if !ok {
			break
		}
		rows := len(batch.Tgt) - 1
		if rows <= 0 {
			continue
		}
		out, err := t.model.Forward(nn.ForwardInput{
			Src:        batch.Src,
			SrcLengths: batch.SrcLengths,
			Tgt:        batch.Tgt[:rows],
			Tags:       valid.Tags,
			NoGrad:     true,
		})
		if err != nil {
			return nil, err
		}
		_, bst, err := t.validLoss.Compute(batch, out, nn.LossOptions{Normalization: 1, TruncSize: rows})
		if err != nil {
			return nil, err
		}
		st.Update(bst, 0)
	}
	return st, nil
}

// maybeSave saves on the checkpoint cadence. Saving the same step twice overwrites.
func (t *Trainer) maybeSave(step, saveSteps int) error {
	if saveSteps <= 0 || step < 0 || step%saveSteps != 0 {
		return nil
	}
	return t.save(step)
}

func (t *Trainer) save(step int) error {
	if t.saver == nil {
		return nil
	}
	var avg [][]float64
	if t.average != nil {
		avg = t.average.Snapshot()
	}
	if err := t.saver.Save(step, avg); err != nil {
		return errors.Wrapf(err, "save step %d", step)
	}
	return nil
}
