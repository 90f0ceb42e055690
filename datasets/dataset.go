// Package datasets implements the batch type and the restartable batch iterators fed to the trainer
package datasets

import "math/rand/v2"

// PadIndex is the token id used for padding.
const PadIndex = 1

// Batch is one padded, time-major batch: Src[t][b] and Tgt[t][b].
type Batch struct {
	Src        [][]int
	SrcLengths []int
	Tgt        [][]int
	BatchSize  int
}

// TargetTokens counts non-padding target tokens, skipping the first (start of sentence) row.
func (b *Batch) TargetTokens(padding int) (n int) {
	for t := 1; t < len(b.Tgt); t++ {
		for _, tok := range b.Tgt[t] {
			if tok != padding {
				n++
			}
		}
	}
	return
}

// SourceTokens sums the source lengths, or 0 when lengths are not provided.
func (b *Batch) SourceTokens() (n int) {
	for _, l := range b.SrcLengths {
		n += l
	}
	return
}

// MinSourceLength is the shortest source length, or the padded length without lengths.
func (b *Batch) MinSourceLength() int {
	if len(b.SrcLengths) == 0 {
		return len(b.Src)
	}
	m := b.SrcLengths[0]
	for _, l := range b.SrcLengths[1:] {
		if l < m {
			m = l
		}
	}
	return m
}

// Iterator is a lazy, restartable sequence of batches.
type Iterator interface {
	// Next returns the next batch, or false once the epoch is exhausted.
	Next() (*Batch, bool)

	// Reset restarts the sequence from the beginning of a new epoch.
	Reset()
}

// Slice iterates over a fixed list of batches, optionally shuffled on every Reset.
type Slice struct {
	batches []*Batch
	pos     int
	rng     *rand.Rand
}

// NewSlice returns an iterator over batches in order.
func NewSlice(batches ...*Batch) *Slice {
	return &Slice{batches: batches}
}

// NewShuffledSlice returns an iterator that reshuffles the batches at every epoch.
func NewShuffledSlice(seed uint64, batches ...*Batch) *Slice {
	s := &Slice{batches: append([]*Batch(nil), batches...), rng: rand.New(rand.NewPCG(seed, seed))}
	s.shuffle()
	return s
}

func (s *Slice) shuffle() {
	if s.rng == nil {
		return
	}
	s.rng.Shuffle(len(s.batches), func(i, j int) { s.batches[i], s.batches[j] = s.batches[j], s.batches[i] })
}

// Next implements Iterator.
func (s *Slice) Next() (*Batch, bool) {
	if s.pos >= len(s.batches) {
		return nil, false
	}
	b := s.batches[s.pos]
	s.pos++
	return b, true
}

// Reset implements Iterator.
func (s *Slice) Reset() {
	s.pos = 0
	s.shuffle()
}

// Len is the number of batches per epoch.
func (s *Slice) Len() int {
	return len(s.batches)
}
