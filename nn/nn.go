// Package nn holds the value types exchanged between the trainer and a sequence-to-sequence model.
package nn

import "gonum.org/v1/gonum/mat"

// Param is a named trainable tensor stored flat in row-major order.
type Param struct {
	Name  string
	Shape []int
	Value []float64
	Grad  []float64
}

// NewParam allocates a zeroed parameter of the given shape.
func NewParam(name string, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{
		Name:  name,
		Shape: shape,
		Value: make([]float64, n),
		Grad:  make([]float64, n),
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Matrix views a 2-D parameter as a matrix sharing the backing array.
func (p *Param) Matrix() *mat.Dense {
	return mat.NewDense(p.rows(), p.cols(), p.Value)
}

// GradMatrix views the gradient of a 2-D parameter as a matrix sharing the backing array.
func (p *Param) GradMatrix() *mat.Dense {
	return mat.NewDense(p.rows(), p.cols(), p.Grad)
}

func (p *Param) rows() int {
	if len(p.Shape) == 0 {
		return 1
	}
	return p.Shape[0]
}

func (p *Param) cols() int {
	return len(p.Value) / p.rows()
}

// Sequence is a time-major stack of hidden vectors: row t*Batch+b holds step t of sequence b.
type Sequence struct {
	Hidden *mat.Dense
	Batch  int
}

// Steps is the number of time steps in the sequence.
func (s *Sequence) Steps() int {
	if s == nil || s.Hidden == nil || s.Batch == 0 {
		return 0
	}
	r, _ := s.Hidden.Dims()
	return r / s.Batch
}

// Truncate returns the first steps time steps flattened to a (steps*Batch) x hidden view.
// Asking for more steps than present returns every step; zero steps yield nil.
func (s *Sequence) Truncate(steps int) *mat.Dense {
	if steps > s.Steps() || steps < 0 {
		steps = s.Steps()
	}
	if steps == 0 {
		return nil
	}
	_, c := s.Hidden.Dims()
	return s.Hidden.Slice(0, steps*s.Batch, 0, c).(*mat.Dense)
}

// ForwardInput is one forward call of the model over a (possibly truncated) target.
type ForwardInput struct {
	Src        [][]int
	SrcLengths []int
	Tgt        [][]int
	Tags       []string

	// NoGrad disables gradient bookkeeping.
	NoGrad bool
	// Continuation reuses the decoder state of the previous chunk of the same batch.
	Continuation bool
	// WantReps asks for the intermediate representations the critics classify.
	WantReps bool
}

// ForwardOutput is what the model returns for one forward call.
type ForwardOutput struct {
	Outputs *Sequence
	Attns   map[string]*Sequence

	// Rep is the primary intermediate representation.
	Rep *Sequence
	// Rep2 is the secondary representation, nil for models with a single decoding path.
	Rep2 *Sequence
}

// Loss is a scalar objective that can back-propagate into the parameters it was computed from.
type Loss interface {
	Value() float64
	Backward()
}

// CriticLoss is the adversarial part of the objective handed to the loss computation.
type CriticLoss interface {
	Value() float64
}

// LossOptions parameterize one loss computation over a chunk of the target.
type LossOptions struct {
	// Normalization divides the summed loss: target tokens or sentences of the whole group.
	Normalization float64
	// ShardSize > 0 lets the loss back-propagate by itself in shards and return no loss.
	ShardSize int
	// TruncStart and TruncSize locate the chunk inside the target.
	TruncStart int
	TruncSize  int
	// Critic is added to the translation loss; it may be nil.
	Critic CriticLoss
}

// Decoder holds the recurrent state of one decoding path between forward calls.
type Decoder interface {
	HasState() bool
	// DetachState keeps the state values and drops their gradient history.
	DetachState()
}
