package synthetic

import "math/rand/v2"

import "github.com/neurlang/seqadv/datasets"

// Reserved token ids.
const (
	Pad = datasets.PadIndex
	BOS = 2
	EOS = 3

	firstWord = 4
)

// Corpus describes one synthetic translation direction: the target is the source
// with every word shifted by Shift inside the vocabulary.
type Corpus struct {
	Vocab      int
	Shift      int
	BatchSize  int
	MinLen     int
	MaxLen     int
	NumBatches int
	Seed       uint64
}

// Batches materializes the corpus into padded batches.
func (c Corpus) Batches() []*datasets.Batch {
	r := rand.New(rand.NewPCG(c.Seed, uint64(c.Shift)))
	out := make([]*datasets.Batch, 0, c.NumBatches)
	for n := 0; n < c.NumBatches; n++ {
		out = append(out, c.batch(r))
	}
	return out
}

// Iterator returns a restartable iterator reshuffling the batches every epoch.
func (c Corpus) Iterator() *datasets.Slice {
	return datasets.NewShuffledSlice(c.Seed, c.Batches()...)
}

func (c Corpus) words() int {
	return c.Vocab - firstWord
}

func (c Corpus) translate(w int) int {
	return firstWord + (w-firstWord+c.Shift)%c.words()
}

func (c Corpus) batch(r *rand.Rand) *datasets.Batch {
	lengths := make([]int, c.BatchSize)
	maxLen := 0
	for b := range lengths {
		lengths[b] = c.MinLen
		if c.MaxLen > c.MinLen {
			lengths[b] += r.IntN(c.MaxLen - c.MinLen + 1)
		}
		if lengths[b] > maxLen {
			maxLen = lengths[b]
		}
	}

	src := make([][]int, maxLen)
	// BOS + words + EOS
	tgt := make([][]int, maxLen+2)
	for t := range src {
		src[t] = make([]int, c.BatchSize)
	}
	for t := range tgt {
		tgt[t] = make([]int, c.BatchSize)
	}
	for b, l := range lengths {
		tgt[0][b] = BOS
		for t := 0; t < maxLen; t++ {
			if t >= l {
				src[t][b] = Pad
				tgt[t+1][b] = Pad
				continue
			}
			w := firstWord + r.IntN(c.words())
			src[t][b] = w
			tgt[t+1][b] = c.translate(w)
		}
		tgt[l+1][b] = EOS
		for t := l + 2; t < len(tgt); t++ {
			tgt[t][b] = Pad
		}
	}
	return &datasets.Batch{
		Src:        src,
		SrcLengths: lengths,
		Tgt:        tgt,
		BatchSize:  c.BatchSize,
	}
}
