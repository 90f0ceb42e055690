package trainer

import "github.com/neurlang/seqadv/datasets"
import "github.com/neurlang/seqadv/stats"

// Task is one tagged training stream.
type Task struct {
	Tags     []string
	Iterator datasets.Iterator

	// Report accumulates between two training reports; its perplexity decides skipping.
	Report *stats.Statistics
	// Total accumulates over the whole run.
	Total *stats.Statistics

	accum *accumulator
}

// NewTask returns a task with empty statistics named after its tags.
func NewTask(iter datasets.Iterator, tags ...string) *Task {
	return &Task{
		Tags:     tags,
		Iterator: iter,
		Report:   stats.New(tags...),
		Total:    stats.New(tags...),
	}
}

// Name is the tags joined by "-".
func (t *Task) Name() string {
	return t.Total.Basename
}
