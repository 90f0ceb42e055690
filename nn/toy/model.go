// Package toy is a small encoder/decoder with task critics whose gradients are computed by hand.
//
// The encoder embeds source words; the decoder state starts from the mean source
// embedding and mixes in one target embedding per step (s = a*s + (1-a)*x). The
// generator maps states to vocabulary logits. It is sized for tests and demos, not
// for translation quality.
package toy

import "math/rand/v2"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/mat"

import "github.com/neurlang/seqadv/critic"
import "github.com/neurlang/seqadv/nn"

// SecondaryTag is the trailing tag routing a batch through the secondary decoder.
const SecondaryTag = "2"

// mix is the weight of the previous state in the decoder recurrence.
const mix = 0.5

// ErrBadInput is returned for inputs the model cannot run.
var ErrBadInput = errors.New("toy: bad input")

// Config sizes the model.
type Config struct {
	Vocab  int
	Hidden int

	// Dual adds the secondary decoder and the secondary critic.
	Dual bool

	Seed uint64
}

// Model is the toy encoder/decoder.
type Model struct {
	cfg Config

	enc, dec, dec2, gen *nn.Param

	critic, critic2   *Critic
	decoder, decoder2 *Decoder
	training          bool
	params            []*nn.Param
	last              *pass

	// current ran the last forward call; only its state may be continued.
	current *Decoder
}

// New initializes the model with small random weights.
func New(cfg Config) (*Model, error) {
	if cfg.Vocab <= 0 || cfg.Hidden <= 0 {
		return nil, errors.Wrapf(ErrBadInput, "vocab %d hidden %d", cfg.Vocab, cfg.Hidden)
	}
	m := &Model{
		cfg:      cfg,
		enc:      nn.NewParam("encoder.embeddings", cfg.Vocab, cfg.Hidden),
		dec:      nn.NewParam("decoder.embeddings", cfg.Vocab, cfg.Hidden),
		gen:      nn.NewParam("generator.weight", cfg.Vocab, cfg.Hidden),
		critic:   newCritic("critic", cfg.Hidden),
		decoder:  &Decoder{name: "decoder"},
		training: true,
	}
	m.params = []*nn.Param{m.enc, m.dec, m.gen}
	if cfg.Dual {
		m.dec2 = nn.NewParam("decoder2.embeddings", cfg.Vocab, cfg.Hidden)
		m.critic2 = newCritic("critic2", cfg.Hidden)
		m.decoder2 = &Decoder{name: "decoder2"}
		m.params = append(m.params, m.dec2)
	}
	m.params = append(m.params, m.critic.params()...)
	if m.critic2 != nil {
		m.params = append(m.params, m.critic2.params()...)
	}

	r := rand.New(rand.NewPCG(cfg.Seed, 0x5eed))
	for _, p := range m.params {
		for i := range p.Value {
			p.Value[i] = (r.Float64() - 0.5) * 0.2
		}
	}
	return m, nil
}

// Parameters enumerates every trainable tensor in a stable order.
func (m *Model) Parameters() []*nn.Param {
	return m.params
}

// Critic is the primary task critic.
func (m *Model) Critic() critic.Classifier {
	return m.critic
}

// SecondaryCritic is nil for a single path model.
func (m *Model) SecondaryCritic() critic.Classifier {
	if m.critic2 == nil {
		return nil
	}
	return m.critic2
}

// Decoder returns the primary decoder.
func (m *Model) Decoder() nn.Decoder {
	return m.decoder
}

// SecondaryDecoder returns the secondary decoder, nil for a single path model.
func (m *Model) SecondaryDecoder() nn.Decoder {
	if m.decoder2 == nil {
		return nil
	}
	return m.decoder2
}

// Train switches to training mode.
func (m *Model) Train() {
	m.training = true
}

// Eval switches to evaluation mode; forward passes record nothing for backward.
func (m *Model) Eval() {
	m.training = false
}

// Training reports the current mode.
func (m *Model) Training() bool {
	return m.training
}

// pass records one forward call for back-propagation.
type pass struct {
	in      nn.ForwardInput
	lengths []int
	rep     *nn.Sequence
	states  *nn.Sequence
	enc     *nn.Param
	emb     *nn.Param
	fresh   bool
	origin  func(g *mat.Dense)
}

// Forward runs the encoder over the whole source and the decoder over the given target rows.
func (m *Model) Forward(in nn.ForwardInput) (nn.ForwardOutput, error) {
	if len(in.Src) == 0 || len(in.Src[0]) == 0 {
		return nn.ForwardOutput{}, errors.Wrap(ErrBadInput, "empty source")
	}
	batch := len(in.Src[0])
	lengths := in.SrcLengths
	if lengths == nil {
		lengths = make([]int, batch)
		for b := range lengths {
			lengths[b] = len(in.Src)
		}
	}

	if len(lengths) != batch {
		return nn.ForwardOutput{}, errors.Wrapf(ErrBadInput, "%d source lengths for a batch of %d", len(lengths), batch)
	}
	for _, l := range lengths {
		if l < 0 || l > len(in.Src) {
			return nn.ForwardOutput{}, errors.Wrapf(ErrBadInput, "source length %d outside [0, %d]", l, len(in.Src))
		}
	}

	rep, err := m.encode(in.Src, batch)
	if err != nil {
		return nn.ForwardOutput{}, err
	}

	decoder, emb := m.decoder, m.dec
	if m.dec2 != nil && len(in.Tags) > 0 && in.Tags[len(in.Tags)-1] == SecondaryTag {
		decoder, emb = m.decoder2, m.dec2
	}

	p := &pass{in: in, lengths: lengths, rep: rep, enc: m.enc, emb: emb}
	var s *mat.Dense
	if in.Continuation && decoder == m.current && decoder.HasState() {
		s = mat.DenseCopyOf(decoder.state)
		p.origin = decoder.origin
	} else {
		s = m.context(rep, lengths, batch)
		p.fresh = true
	}
	if r, _ := s.Dims(); r != batch {
		return nn.ForwardOutput{}, errors.Wrapf(ErrBadInput, "decoder state for %d sequences, batch of %d", r, batch)
	}

	p.states = &nn.Sequence{Batch: batch}
	if steps := len(in.Tgt); steps > 0 {
		table := emb.Matrix()
		hidden := mat.NewDense(steps*batch, m.cfg.Hidden, nil)
		for t := 0; t < steps; t++ {
			if len(in.Tgt[t]) != batch {
				return nn.ForwardOutput{}, errors.Wrapf(ErrBadInput, "target row %d has %d columns, want %d", t, len(in.Tgt[t]), batch)
			}
			for b, w := range in.Tgt[t] {
				if w < 0 || w >= m.cfg.Vocab {
					return nn.ForwardOutput{}, errors.Wrapf(ErrBadInput, "target word %d outside vocabulary", w)
				}
				x := table.RawRowView(w)
				row := s.RawRowView(b)
				for h := range row {
					row[h] = mix*row[h] + (1-mix)*x[h]
				}
				hidden.SetRow(t*batch+b, row)
			}
		}
		p.states.Hidden = hidden
	}

	decoder.state = s
	decoder.origin = nil
	m.current = decoder
	if m.training && !in.NoGrad {
		m.last = p
		decoder.origin = p.backwardState
	} else {
		m.last = nil
	}

	out := nn.ForwardOutput{
		Outputs: p.states,
		Attns:   map[string]*nn.Sequence{},
	}
	if in.WantReps {
		out.Rep = rep
		if m.critic2 != nil {
			out.Rep2 = rep
		}
	}
	return out, nil
}

func (m *Model) encode(src [][]int, batch int) (*nn.Sequence, error) {
	rep := mat.NewDense(len(src)*batch, m.cfg.Hidden, nil)
	emb := m.enc.Matrix()
	for t, row := range src {
		if len(row) != batch {
			return nil, errors.Wrapf(ErrBadInput, "source row %d has %d columns, want %d", t, len(row), batch)
		}
		for b, w := range row {
			if w < 0 || w >= m.cfg.Vocab {
				return nil, errors.Wrapf(ErrBadInput, "source word %d outside vocabulary", w)
			}
			rep.SetRow(t*batch+b, emb.RawRowView(w))
		}
	}
	return &nn.Sequence{Hidden: rep, Batch: batch}, nil
}

// context is the mean embedding of the valid source words of each sequence.
func (m *Model) context(rep *nn.Sequence, lengths []int, batch int) *mat.Dense {
	ctx := mat.NewDense(batch, m.cfg.Hidden, nil)
	for b := 0; b < batch; b++ {
		row := ctx.RawRowView(b)
		for t := 0; t < lengths[b]; t++ {
			x := rep.Hidden.RawRowView(t*batch + b)
			for h := range row {
				row[h] += x[h] / float64(lengths[b])
			}
		}
	}
	return ctx
}

// backwardOutputs back-propagates the gradient of the decoder outputs (steps*batch x hidden).
func (p *pass) backwardOutputs(dH *mat.Dense) {
	batch := p.states.Batch
	steps := len(p.in.Tgt)
	_, hidden := dH.Dims()
	g := mat.NewDense(batch, hidden, nil)
	for t := steps - 1; t >= 0; t-- {
		for b := 0; b < batch; b++ {
			row := g.RawRowView(b)
			d := dH.RawRowView(t*batch + b)
			for h := range row {
				row[h] += d[h]
			}
		}
		p.step(t, g)
	}
	p.backwardInitial(g)
}

// backwardState back-propagates a gradient on the final state of this pass.
func (p *pass) backwardState(g *mat.Dense) {
	g = mat.DenseCopyOf(g)
	for t := len(p.in.Tgt) - 1; t >= 0; t-- {
		p.step(t, g)
	}
	p.backwardInitial(g)
}

// step moves g from s_t to s_{t-1}, accumulating the embedding gradient of x_t.
func (p *pass) step(t int, g *mat.Dense) {
	grad := p.emb.GradMatrix()
	for b := range p.in.Tgt[t] {
		row := g.RawRowView(b)
		dx := grad.RawRowView(p.in.Tgt[t][b])
		for h := range row {
			dx[h] += (1 - mix) * row[h]
			row[h] *= mix
		}
	}
}

func (p *pass) backwardInitial(g *mat.Dense) {
	if !p.fresh {
		if p.origin != nil {
			p.origin(g)
		}
		return
	}
	p.backwardContext(g)
}

func (p *pass) backwardContext(g *mat.Dense) {
	batch := p.states.Batch
	drep := mat.NewDense(len(p.in.Src)*batch, p.rep.Hidden.RawMatrix().Cols, nil)
	for b := 0; b < batch; b++ {
		for t := 0; t < p.lengths[b]; t++ {
			row := drep.RawRowView(t*batch + b)
			for h, v := range g.RawRowView(b) {
				row[h] += v / float64(p.lengths[b])
			}
		}
	}
	p.backwardRep(drep)
}

// backwardRep adds the gradient of the first rows of the representation to the source embeddings.
func (p *pass) backwardRep(drep *mat.Dense) {
	batch := p.states.Batch
	rows, _ := drep.Dims()
	grad := p.enc.GradMatrix()
	for i := 0; i < rows; i++ {
		w := p.in.Src[i/batch][i%batch]
		dx := grad.RawRowView(w)
		for h, v := range drep.RawRowView(i) {
			dx[h] += v
		}
	}
}
