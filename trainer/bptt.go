package trainer

import "github.com/pkg/errors"

import "github.com/neurlang/seqadv/critic"
import "github.com/neurlang/seqadv/nn"

// SecondaryTag is the trailing tag that routes a chunk through the secondary decoder.
const SecondaryTag = "2"

// TagCursor walks a tag sequence from its end, one tag per chunk, without
// modifying the sequence.
type TagCursor struct {
	tags []string
	pos  int
}

// NewTagCursor starts a cursor after the last tag.
func NewTagCursor(tags []string) *TagCursor {
	return &TagCursor{tags: tags, pos: len(tags)}
}

// Next consumes the last unconsumed tag and returns it with the tags before it.
func (c *TagCursor) Next() (active string, prefix []string, err error) {
	if c.pos == 0 {
		return "", nil, errors.Wrapf(ErrTagsExhausted, "%d tags", len(c.tags))
	}
	c.pos--
	return c.tags[c.pos], c.tags[:c.pos:c.pos], nil
}

// Trailing is the last tag of the current prefix, false when the prefix is empty.
func (c *TagCursor) Trailing() (string, bool) {
	if c.pos == 0 {
		return "", false
	}
	return c.tags[c.pos-1], true
}

// Remaining is the number of tags left to consume.
func (c *TagCursor) Remaining() int {
	return c.pos
}

// chunks returns the start rows of the decoder inputs of a target with rows
// rows: 0, trunc, 2*trunc, ... below rows-1. A trunc of 0 yields one chunk.
func chunks(rows, trunc int) []int {
	if trunc <= 0 {
		trunc = rows
	}
	var starts []int
	for j := 0; j < rows-1; j += trunc {
		starts = append(starts, j)
	}
	return starts
}

// runGroup runs every batch of g chunk by chunk, back-propagating each chunk.
// With accumulation the optimizer steps once for the whole group, otherwise once per chunk.
func (t *Trainer) runGroup(task *Task, g *MicroBatchGroup) error {
	accumulate := t.opts.GradAccumCount > 1
	if accumulate {
		t.optim.ZeroGrad()
	}

	cursor := NewTagCursor(task.Tags)
	for n, batch := range g.Batches {
		if batch.SrcLengths != nil {
			task.Report.NSrcWords += batch.SourceTokens()
		}
		rows := len(batch.Tgt)
		trunc := t.opts.TruncSize
		if trunc == 0 {
			trunc = rows
		}

		for _, j := range chunks(rows, trunc) {
			end := min(j+trunc, rows-1)
			active, prefix, err := cursor.Next()
			if err != nil {
				return errors.Wrapf(err, "task %s batch %d chunk %d", task.Name(), n, j/trunc)
			}
			trailing, hasTrailing := cursor.Trailing()

			if !accumulate {
				t.optim.ZeroGrad()
			}
			out, err := t.model.Forward(nn.ForwardInput{
				Src:          batch.Src,
				SrcLengths:   batch.SrcLengths,
				Tgt:          batch.Tgt[j:end],
				Tags:         prefix,
				Continuation: j > 0,
				WantReps:     true,
			})
			if err != nil {
				return errors.Wrapf(err, "task %s forward", task.Name())
			}

			cl, err := t.coupler.Loss(critic.Input{
				Rep:         out.Rep,
				Rep2:        out.Rep2,
				MinSrcLen:   batch.MinSourceLength(),
				Active:      active,
				Trailing:    trailing,
				HasTrailing: hasTrailing,
			})
			if err != nil {
				return errors.Wrapf(err, "task %s critic", task.Name())
			}

			loss, bst, err := t.trainLoss.Compute(batch, out, nn.LossOptions{
				Normalization: g.Normalization,
				ShardSize:     t.opts.ShardSize,
				TruncStart:    j,
				TruncSize:     trunc,
				Critic:        cl,
			})
			if err != nil {
				return errors.Wrapf(err, "task %s loss", task.Name())
			}

			var criticLoss float64
			if loss != nil {
				t.optim.Backward(loss)
				criticLoss = cl.Value()
			}
			task.Total.Update(bst, criticLoss)
			task.Report.Update(bst, criticLoss)

			if !accumulate {
				t.optim.Step()
			}
			t.detach(trailing, hasTrailing)
		}
	}

	if accumulate {
		t.optim.Step()
	}
	return nil
}

// detach cuts the state of the decoder selected by the trailing tag.
func (t *Trainer) detach(trailing string, ok bool) {
	d := t.model.Decoder()
	if ok && trailing == SecondaryTag {
		if d2 := t.model.SecondaryDecoder(); d2 != nil {
			d = d2
		}
	}
	if d != nil && d.HasState() {
		d.DetachState()
	}
}
