package trainer

import "time"

import "github.com/neurlang/seqadv/critic"
import "github.com/neurlang/seqadv/datasets"
import "github.com/neurlang/seqadv/nn"
import "github.com/neurlang/seqadv/stats"

// Model is the network being trained.
type Model interface {
	Forward(in nn.ForwardInput) (nn.ForwardOutput, error)

	// Critic is the primary task critic.
	Critic() critic.Classifier
	// SecondaryCritic is nil when the model has a single decoding path.
	SecondaryCritic() critic.Classifier

	Decoder() nn.Decoder
	// SecondaryDecoder is nil when the model has a single decoding path.
	SecondaryDecoder() nn.Decoder

	// Parameters enumerates the trainable tensors in a stable order.
	Parameters() []*nn.Param

	Train()
	Eval()
}

// LossCompute scores one forward chunk. A nil loss means there is nothing to back-propagate.
type LossCompute interface {
	Compute(batch *datasets.Batch, out nn.ForwardOutput, opts nn.LossOptions) (nn.Loss, *stats.Statistics, error)
}

// Optimizer owns the global training step.
type Optimizer interface {
	TrainingStep() int
	ZeroGrad()
	Backward(loss nn.Loss)
	Step()
	LearningRate() float64
}

// Saver persists checkpoints. avg is nil until the moving average exists.
type Saver interface {
	Save(step int, avg [][]float64) error
}

// ReportManager reports training progress.
type ReportManager interface {
	Start(t time.Time)

	// ReportTraining may report st and returns the statistics to keep accumulating
	// into: fresh ones after a report, st otherwise.
	ReportTraining(step, totalSteps int, lr float64, st *stats.Statistics, multiWorker bool) *stats.Statistics

	ReportStep(lr float64, step int, train, valid *stats.Statistics)
}

// RandomSource draws the uniform numbers deciding which tasks are skipped.
type RandomSource interface {
	Float64() float64
}
