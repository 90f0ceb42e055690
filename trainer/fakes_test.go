package trainer

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/neurlang/seqadv/critic"
	"github.com/neurlang/seqadv/datasets"
	"github.com/neurlang/seqadv/nn"
	"github.com/neurlang/seqadv/stats"
)

type fakeDecoder struct {
	state    bool
	detached int
}

func (d *fakeDecoder) HasState() bool { return d.state }
func (d *fakeDecoder) DetachState()   { d.detached++ }

type fakeCritic struct {
	lambda float64
}

func (c *fakeCritic) Classify(rep *mat.Dense) []float64 {
	r, _ := rep.Dims()
	return make([]float64, r)
}

func (c *fakeCritic) SetStrength(lambda float64) { c.lambda = lambda }

type fakeModel struct {
	critic, critic2 *fakeCritic
	dec, dec2       *fakeDecoder
	params          []*nn.Param

	calls    []nn.ForwardInput
	training bool
	evals    int
}

func newFakeModel(dual bool) *fakeModel {
	m := &fakeModel{
		critic:   &fakeCritic{},
		dec:      &fakeDecoder{},
		params:   []*nn.Param{nn.NewParam("w", 2, 2)},
		training: true,
	}
	if dual {
		m.critic2 = &fakeCritic{}
		m.dec2 = &fakeDecoder{}
	}
	return m
}

func (m *fakeModel) Forward(in nn.ForwardInput) (nn.ForwardOutput, error) {
	m.calls = append(m.calls, in)
	batch := len(in.Src[0])
	d := m.dec
	if m.dec2 != nil && len(in.Tags) > 0 && in.Tags[len(in.Tags)-1] == SecondaryTag {
		d = m.dec2
	}
	d.state = true

	out := nn.ForwardOutput{
		Outputs: &nn.Sequence{Hidden: mat.NewDense(len(in.Tgt)*batch, 2, nil), Batch: batch},
	}
	if in.WantReps {
		out.Rep = &nn.Sequence{Hidden: mat.NewDense(len(in.Src)*batch, 2, nil), Batch: batch}
		if m.critic2 != nil {
			out.Rep2 = out.Rep
		}
	}
	return out, nil
}

func (m *fakeModel) Critic() critic.Classifier {
	if m.critic == nil {
		return nil
	}
	return m.critic
}

func (m *fakeModel) SecondaryCritic() critic.Classifier {
	if m.critic2 == nil {
		return nil
	}
	return m.critic2
}

func (m *fakeModel) Decoder() nn.Decoder { return m.dec }

func (m *fakeModel) SecondaryDecoder() nn.Decoder {
	if m.dec2 == nil {
		return nil
	}
	return m.dec2
}

func (m *fakeModel) Parameters() []*nn.Param { return m.params }
func (m *fakeModel) Train()                  { m.training = true }

func (m *fakeModel) Eval() {
	m.training = false
	m.evals++
}

type fakeLossValue struct {
	backwards *int
}

func (l fakeLossValue) Value() float64 { return 1 }
func (l fakeLossValue) Backward()      { *l.backwards++ }

// fakeLoss counts one word per target cell of the chunk and one loss unit per word.
type fakeLoss struct {
	nilLoss   bool
	opts      []nn.LossOptions
	backwards int
}

func (f *fakeLoss) Compute(batch *datasets.Batch, out nn.ForwardOutput, opts nn.LossOptions) (nn.Loss, *stats.Statistics, error) {
	f.opts = append(f.opts, opts)
	n := out.Outputs.Steps() * out.Outputs.Batch
	st := &stats.Statistics{Loss: float64(n), NWords: n}
	if f.nilLoss {
		return nil, st, nil
	}
	return fakeLossValue{backwards: &f.backwards}, st, nil
}

type fakeOptimizer struct {
	step      int
	zeroGrads int
	backwards int
	steps     int
}

func newFakeOptimizer() *fakeOptimizer {
	return &fakeOptimizer{step: 1}
}

func (o *fakeOptimizer) TrainingStep() int     { return o.step }
func (o *fakeOptimizer) ZeroGrad()             { o.zeroGrads++ }
func (o *fakeOptimizer) LearningRate() float64 { return 0.1 }
func (o *fakeOptimizer) SetTrainingStep(s int) { o.step = s }

func (o *fakeOptimizer) Backward(loss nn.Loss) {
	o.backwards++
	loss.Backward()
}

func (o *fakeOptimizer) Step() {
	o.steps++
	o.step++
}

type recordingReport struct {
	started    time.Time
	trainSteps []int
	validSteps []int
	restart    bool
}

func (r *recordingReport) Start(t time.Time) { r.started = t }

func (r *recordingReport) ReportTraining(step, totalSteps int, lr float64, st *stats.Statistics, multiWorker bool) *stats.Statistics {
	r.trainSteps = append(r.trainSteps, step)
	if r.restart {
		return st.Restart()
	}
	return st
}

func (r *recordingReport) ReportStep(lr float64, step int, train, valid *stats.Statistics) {
	r.validSteps = append(r.validSteps, step)
}

type recordingSaver struct {
	steps []int
	avgs  [][][]float64
}

func (s *recordingSaver) Save(step int, avg [][]float64) error {
	s.steps = append(s.steps, step)
	s.avgs = append(s.avgs, avg)
	return nil
}

// randomFunc adapts a func to RandomSource.
type randomFunc func() float64

func (f randomFunc) Float64() float64 { return f() }

func constantRandom(u float64) RandomSource {
	return randomFunc(func() float64 { return u })
}

type fakeLoader struct {
	step int
	avg  [][]float64
	err  error
}

func (l fakeLoader) Load(ctx context.Context, path string, params []*nn.Param) (int, [][]float64, error) {
	return l.step, l.avg, l.err
}

// testBatch is a batch of size sentences with srcLen source and tgtRows target rows.
func testBatch(size, srcLen, tgtRows int) *datasets.Batch {
	b := &datasets.Batch{BatchSize: size}
	for range srcLen {
		b.Src = append(b.Src, filled(size, 4))
	}
	for range tgtRows {
		b.Tgt = append(b.Tgt, filled(size, 5))
	}
	for range size {
		b.SrcLengths = append(b.SrcLengths, srcLen)
	}
	return b
}

func filled(n, v int) []int {
	row := make([]int, n)
	for i := range row {
		row[i] = v
	}
	return row
}
