package optim

// Decay method names.
const (
	DecayNone  = "none"
	DecayNoam  = "noam"
	DecayRsqrt = "rsqrt"
	DecayExp   = "exp"
)

type HyperParameters struct {
	LearningRate float64 // base learning rate

	Decay       string // learning rate decay method: none, noam, rsqrt or exp
	WarmupSteps int    // warmup steps of noam and rsqrt
	ModelDim    int    // model size used to scale noam

	DecayRate       float64 // multiplier applied every DecaySteps by exp
	StartDecaySteps int     // first step exp decays at
	DecaySteps      int     // period of exp decay

	MaxGradNorm float64 // clip the global gradient norm to this value, 0 disables clipping
}
