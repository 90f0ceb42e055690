package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/neurlang/seqadv/average"
	"github.com/neurlang/seqadv/optim"
	"github.com/neurlang/seqadv/trainer"
)

// Validate checks if the configuration is valid.
func (o *Options) Validate() error {
	if len(o.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}
	for _, tags := range o.TaskTags() {
		for _, tag := range tags {
			if tag == "" {
				return fmt.Errorf("task %q has an empty tag", strings.Join(tags, "-"))
			}
		}
	}
	if o.TrainSteps < 0 {
		return fmt.Errorf("train_steps must not be negative, got %d", o.TrainSteps)
	}
	if o.GradAccumCount <= 0 {
		return fmt.Errorf("grad_accum_count must be positive, got %d", o.GradAccumCount)
	}
	if o.GradAccumCount > 1 && o.TruncSize != 0 {
		return fmt.Errorf("trunc_size %d cannot be combined with grad_accum_count %d", o.TruncSize, o.GradAccumCount)
	}
	switch o.Normalization {
	case trainer.NormSents, trainer.NormTokens:
	default:
		return fmt.Errorf("normalization must be %q or %q, got %q", trainer.NormSents, trainer.NormTokens, o.Normalization)
	}
	if o.WorldSize != 1 {
		return fmt.Errorf("world_size must be 1, got %d", o.WorldSize)
	}
	switch average.Precision(o.Precision) {
	case average.FP32, average.FP16:
	default:
		return fmt.Errorf("precision must be fp32, fp16 or auto, got %q", o.Precision)
	}
	if o.AverageDecay < 0 || o.AverageDecay >= 1 {
		return fmt.Errorf("average_decay must be in [0, 1), got %g", o.AverageDecay)
	}
	switch o.DecayMethod {
	case optim.DecayNone, optim.DecayNoam, optim.DecayRsqrt, optim.DecayExp:
	default:
		return fmt.Errorf("unknown decay_method %q", o.DecayMethod)
	}
	if o.KeepCheckpoint < -1 {
		return fmt.Errorf("keep_checkpoint must be -1 or more, got %d", o.KeepCheckpoint)
	}
	// word ids start after the four reserved tokens
	if o.Vocab < 5 {
		return fmt.Errorf("vocab must be at least 5, got %d", o.Vocab)
	}
	if o.Hidden <= 0 || o.BatchSize <= 0 || o.NumBatches <= 0 {
		return fmt.Errorf("hidden, batch_size and num_batches must be positive")
	}
	if o.MinLen < 1 || o.MaxLen < o.MinLen {
		return fmt.Errorf("need 1 <= min_len <= max_len, got %d and %d", o.MinLen, o.MaxLen)
	}
	if _, err := o.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (o *Options) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", o.LogLevel, err)
	}
	return l, nil
}
