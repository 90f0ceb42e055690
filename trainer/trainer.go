package trainer

import "context"
import "log/slog"
import "math/rand/v2"

import "github.com/pkg/errors"

import "github.com/neurlang/seqadv/average"
import "github.com/neurlang/seqadv/critic"
import "github.com/neurlang/seqadv/datasets"
import "github.com/neurlang/seqadv/parallel"
import "github.com/neurlang/seqadv/stats"

// Normalization modes of a micro-batch group.
const (
	NormTokens = "tokens"
	NormSents  = "sents"
)

var (
	ErrInvalidAccumCount      = errors.New("trainer: grad_accum_count must be positive")
	ErrTruncWithAccum         = errors.New("trainer: truncated BPTT cannot be combined with gradient accumulation")
	ErrInvalidTruncSize       = errors.New("trainer: trunc_size must not be negative")
	ErrMultiWorkerUnsupported = errors.New("trainer: training on more than one worker is not supported")
	ErrInvalidNormalization   = errors.New("trainer: unknown normalization")
	ErrNoCritic               = errors.New("trainer: model has no critic")
	ErrNoTasks                = errors.New("trainer: no tasks")
	ErrEmptyTask              = errors.New("trainer: task iterator yields no batches")
	ErrTagsExhausted          = errors.New("trainer: no tag left for chunk")
)

// Options configure the training loop.
type Options struct {
	// GradAccumCount batches make one optimizer update.
	GradAccumCount int
	// TruncSize is the truncated BPTT window in target rows, 0 for the whole target.
	TruncSize int
	// ShardSize is passed to the loss computation.
	ShardSize int
	// Normalization is NormTokens or NormSents.
	Normalization string
	// WorldSize is the number of workers; only 1 is supported.
	WorldSize int

	// AverageDecay enables the moving average of the parameters when positive.
	AverageDecay float64
	// AverageEvery updates the average on every AverageEvery-th sweep.
	AverageEvery int
	// Precision the averaged parameters are rounded to for validation.
	Precision average.Precision
	// Threads bound the goroutines updating the average.
	Threads int

	VerboseLevel int
	Seed         uint64
}

// DefaultOptions trains without accumulation, truncation or averaging.
func DefaultOptions() Options {
	return Options{
		GradAccumCount: 1,
		Normalization:  NormSents,
		WorldSize:      1,
		AverageEvery:   1,
		Precision:      average.FP32,
		Threads:        1,
	}
}

// Option configures the collaborators of a Trainer.
type Option func(*Trainer)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithReportManager sets the report manager.
func WithReportManager(r ReportManager) Option {
	return func(t *Trainer) { t.report = r }
}

// WithSaver sets the checkpoint saver.
func WithSaver(s Saver) Option {
	return func(t *Trainer) { t.saver = s }
}

// WithRandomSource replaces the seeded PCG source deciding task skips.
func WithRandomSource(r RandomSource) Option {
	return func(t *Trainer) { t.random = r }
}

// WithAverage uses an existing moving average tracker.
func WithAverage(a *average.Tracker) Option {
	return func(t *Trainer) { t.average = a }
}

// Trainer runs the multi-task training loop.
type Trainer struct {
	model     Model
	trainLoss LossCompute
	validLoss LossCompute
	optim     Optimizer
	opts      Options

	coupler   *critic.Coupler
	average   *average.Tracker
	validated *parallel.StepSet

	logger *slog.Logger
	report ReportManager
	saver  Saver
	random RandomSource
}

// New validates opts and returns a trainer.
func New(model Model, trainLoss, validLoss LossCompute, optim Optimizer, opts Options, options ...Option) (*Trainer, error) {
	if opts.GradAccumCount <= 0 {
		return nil, errors.Wrapf(ErrInvalidAccumCount, "got %d", opts.GradAccumCount)
	}
	if opts.TruncSize < 0 {
		return nil, errors.Wrapf(ErrInvalidTruncSize, "got %d", opts.TruncSize)
	}
	if opts.GradAccumCount > 1 && opts.TruncSize != 0 {
		return nil, errors.Wrapf(ErrTruncWithAccum, "grad_accum_count %d, trunc_size %d", opts.GradAccumCount, opts.TruncSize)
	}
	if opts.WorldSize > 1 {
		return nil, errors.Wrapf(ErrMultiWorkerUnsupported, "world_size %d", opts.WorldSize)
	}
	switch opts.Normalization {
	case "":
		opts.Normalization = NormSents
	case NormSents, NormTokens:
	default:
		return nil, errors.Wrapf(ErrInvalidNormalization, "%q", opts.Normalization)
	}
	if model.Critic() == nil {
		return nil, ErrNoCritic
	}
	if opts.AverageEvery <= 0 {
		opts.AverageEvery = 1
	}
	if opts.Precision == "" {
		opts.Precision = average.FP32
	}

	t := &Trainer{
		model:     model,
		trainLoss: trainLoss,
		validLoss: validLoss,
		optim:     optim,
		opts:      opts,
		coupler:   critic.NewCoupler(model.Critic(), model.SecondaryCritic()),
		validated: parallel.NewStepSet(),
	}
	for _, o := range options {
		o(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	if t.random == nil {
		t.random = rand.New(rand.NewPCG(opts.Seed, 0))
	}
	if t.average == nil && opts.AverageDecay > 0 {
		t.average = average.New(opts.AverageDecay, opts.Threads)
	}
	return t, nil
}

// Average is the moving average tracker, nil when averaging is off.
func (t *Trainer) Average() *average.Tracker {
	return t.average
}

// Coupler is the critic coupler fed by the model critics.
func (t *Trainer) Coupler() *critic.Coupler {
	return t.coupler
}

// TrainParams drive one run.
type TrainParams struct {
	// TrainSteps is the step ceiling, 0 for no ceiling.
	TrainSteps int
	// SaveCheckpointSteps is the checkpoint cadence, 0 disables periodic saves.
	SaveCheckpointSteps int
	// ValidSteps is the validation cadence, 0 disables validation.
	ValidSteps int
	// Smooth is reserved and does not change the loss.
	Smooth float64
}

// ValidSet is the validation data with the tags it is decoded with.
type ValidSet struct {
	Tags     []string
	Iterator datasets.Iterator
}

// Train sweeps over tasks until the step ceiling and returns the total
// statistics of every task, in task order.
func (t *Trainer) Train(ctx context.Context, tasks []*Task, p TrainParams, valid *ValidSet) ([]*stats.Statistics, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	for _, task := range tasks {
		task.accum = newAccumulator(task.Iterator, t.opts.GradAccumCount, t.opts.Normalization)
	}
	if t.report != nil {
		t.report.Start(tasks[0].Total.StartTime)
	}
	t.logger.Info("start training",
		"tasks", len(tasks),
		"train_steps", p.TrainSteps,
		"grad_accum_count", t.opts.GradAccumCount,
		"trunc_size", t.opts.TruncSize)

	step := -1
	for sweep := 0; !reached(p.TrainSteps, step); sweep++ {
		if t.opts.VerboseLevel > 1 {
			t.logger.Debug("sweep", "index", sweep, "step", step)
		}
		for _, task := range tasks {
			if reached(p.TrainSteps, step) {
				break
			}
			if err := ctx.Err(); err != nil {
				return totals(tasks), err
			}

			if t.skip(task) {
				t.logger.Debug("skip task", "task", task.Name(), "ppl", task.Report.Perplexity())
			} else {
				step = t.optim.TrainingStep()
				if err := t.trainTask(task, sweep, step, p.TrainSteps); err != nil {
					return totals(tasks), err
				}
			}

			if err := t.maybeValidate(step, p.ValidSteps, valid); err != nil {
				return totals(tasks), err
			}
			if err := t.maybeSave(step, p.SaveCheckpointSteps); err != nil {
				return totals(tasks), err
			}
		}
	}

	if err := t.save(step); err != nil {
		return totals(tasks), err
	}
	t.logger.Info("training finished", "step", step)
	return totals(tasks), nil
}

// trainTask pulls one group from task and trains on it at step.
func (t *Trainer) trainTask(task *Task, sweep, step, trainSteps int) error {
	g, err := task.accum.Next()
	if err != nil {
		return errors.Wrapf(err, "task %s", task.Name())
	}

	lambda := t.coupler.Ramp(step)
	if t.opts.VerboseLevel > 1 {
		t.logger.Debug("critic strength", "step", step, "lambda", lambda)
	}
	if t.opts.VerboseLevel > 0 {
		t.logger.Debug("train group", "task", task.Name(), "sweep", sweep, "batches", len(g.Batches), "normalization", g.Normalization)
	}

	if err := t.runGroup(task, g); err != nil {
		return err
	}

	if t.average != nil && t.opts.AverageDecay > 0 && sweep%t.opts.AverageEvery == 0 {
		if err := t.average.Update(step, t.model.Parameters()); err != nil {
			return errors.Wrap(err, "moving average")
		}
	}

	if t.report != nil {
		if next := t.report.ReportTraining(step, trainSteps, t.optim.LearningRate(), task.Report, false); next != nil {
			task.Report = next
		}
	}
	return nil
}

func totals(tasks []*Task) []*stats.Statistics {
	out := make([]*stats.Statistics, len(tasks))
	for i, task := range tasks {
		out[i] = task.Total
	}
	return out
}
