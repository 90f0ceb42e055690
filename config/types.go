// Package config loads the options of a training run.
//
// Values are layered: built-in defaults, then a YAML file, then SEQADV_
// environment variables, then explicitly set command line flags.
package config

import (
	"strings"

	"github.com/neurlang/seqadv/average"
	"github.com/neurlang/seqadv/optim"
	"github.com/neurlang/seqadv/trainer"
)

// PrecisionAuto picks fp16 when the CPU converts half floats natively.
const PrecisionAuto = "auto"

// Options holds every setting of a training run.
type Options struct {
	// Tasks are the training tasks, each one a list of tags joined by "-".
	Tasks []string `koanf:"tasks"`
	// ValidTags are the tags of the validation set joined by "-", empty disables validation.
	ValidTags string `koanf:"valid_tags"`

	TrainSteps          int     `koanf:"train_steps"`
	SaveCheckpointSteps int     `koanf:"save_checkpoint_steps"`
	ValidSteps          int     `koanf:"valid_steps"`
	Smooth              float64 `koanf:"smooth"`

	GradAccumCount int    `koanf:"grad_accum_count"`
	TruncSize      int    `koanf:"trunc_size"`
	ShardSize      int    `koanf:"shard_size"`
	Normalization  string `koanf:"normalization"`
	WorldSize      int    `koanf:"world_size"`

	AverageDecay float64 `koanf:"average_decay"`
	AverageEvery int     `koanf:"average_every"`
	Precision    string  `koanf:"precision"`
	Threads      int     `koanf:"threads"`

	LearningRate    float64 `koanf:"learning_rate"`
	DecayMethod     string  `koanf:"decay_method"`
	WarmupSteps     int     `koanf:"warmup_steps"`
	DecayRate       float64 `koanf:"learning_rate_decay"`
	StartDecaySteps int     `koanf:"start_decay_steps"`
	DecaySteps      int     `koanf:"decay_steps"`
	MaxGradNorm     float64 `koanf:"max_grad_norm"`

	// Synthetic corpus and toy model sizes.
	Vocab      int  `koanf:"vocab"`
	Hidden     int  `koanf:"hidden"`
	Dual       bool `koanf:"dual"`
	BatchSize  int  `koanf:"batch_size"`
	MinLen     int  `koanf:"min_len"`
	MaxLen     int  `koanf:"max_len"`
	NumBatches int  `koanf:"num_batches"`

	ReportEvery    int    `koanf:"report_every"`
	KeepCheckpoint int    `koanf:"keep_checkpoint"`
	SaveModel      string `koanf:"save_model"`
	Basename       string `koanf:"basename"`
	MetricsDB      string `koanf:"metrics_db"`
	TrainFrom      string `koanf:"train_from"`

	Seed         uint64 `koanf:"seed"`
	VerboseLevel int    `koanf:"verbose_level"`
	LogLevel     string `koanf:"log_level"`
}

// defaults are loaded before any other source.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"tasks":                 []string{"de-1", "fr-2"},
		"valid_tags":            "de-1",
		"train_steps":           1000,
		"save_checkpoint_steps": 500,
		"valid_steps":           100,
		"smooth":                0.0,
		"grad_accum_count":      1,
		"trunc_size":            0,
		"shard_size":            0,
		"normalization":         trainer.NormSents,
		"world_size":            1,
		"average_decay":         0.0,
		"average_every":         1,
		"precision":             string(average.FP32),
		"threads":               1,
		"learning_rate":         1.0,
		"decay_method":          optim.DecayNone,
		"warmup_steps":          4000,
		"learning_rate_decay":   0.5,
		"start_decay_steps":     50000,
		"decay_steps":           10000,
		"max_grad_norm":         5.0,
		"vocab":                 16,
		"hidden":                8,
		"dual":                  false,
		"batch_size":            16,
		"min_len":               2,
		"max_len":               6,
		"num_batches":           32,
		"report_every":          50,
		"keep_checkpoint":       -1,
		"save_model":            "checkpoints",
		"basename":              "model",
		"metrics_db":            "seqadv.db",
		"train_from":            "",
		"seed":                  1,
		"verbose_level":         0,
		"log_level":             "info",
	}
}

// TaskTags splits every task into its tags.
func (o *Options) TaskTags() [][]string {
	out := make([][]string, 0, len(o.Tasks))
	for _, t := range o.Tasks {
		out = append(out, splitTags(t))
	}
	return out
}

// ValidationTags splits ValidTags, nil when validation is off.
func (o *Options) ValidationTags() []string {
	if o.ValidTags == "" {
		return nil
	}
	return splitTags(o.ValidTags)
}

func splitTags(s string) []string {
	return strings.Split(strings.TrimSpace(s), "-")
}

// TrainerOptions converts to the training loop options. Precision must be resolved.
func (o *Options) TrainerOptions() trainer.Options {
	return trainer.Options{
		GradAccumCount: o.GradAccumCount,
		TruncSize:      o.TruncSize,
		ShardSize:      o.ShardSize,
		Normalization:  o.Normalization,
		WorldSize:      o.WorldSize,
		AverageDecay:   o.AverageDecay,
		AverageEvery:   o.AverageEvery,
		Precision:      average.Precision(o.Precision),
		Threads:        o.Threads,
		VerboseLevel:   o.VerboseLevel,
		Seed:           o.Seed,
	}
}

// TrainParams converts to the parameters of one run.
func (o *Options) TrainParams() trainer.TrainParams {
	return trainer.TrainParams{
		TrainSteps:          o.TrainSteps,
		SaveCheckpointSteps: o.SaveCheckpointSteps,
		ValidSteps:          o.ValidSteps,
		Smooth:              o.Smooth,
	}
}

// HyperParameters converts to the optimizer settings.
func (o *Options) HyperParameters() optim.HyperParameters {
	return optim.HyperParameters{
		LearningRate:    o.LearningRate,
		Decay:           o.DecayMethod,
		WarmupSteps:     o.WarmupSteps,
		ModelDim:        o.Hidden,
		DecayRate:       o.DecayRate,
		StartDecaySteps: o.StartDecaySteps,
		DecaySteps:      o.DecaySteps,
		MaxGradNorm:     o.MaxGradNorm,
	}
}
