package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "SEQADV_"

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "seqadv.yaml"

// Load reads the options from the defaults, cfgFile (or DefaultFile when it
// exists), the environment and the flags that were explicitly set.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Options, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load config file
	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Load environment variables
	// Transform: SEQADV_TRAIN_STEPS -> train_steps
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var opts Options
	if err := k.Unmarshal("", &opts); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	// SEQADV_TASKS=de-1,fr-2 decodes as a single element
	opts.Tasks = splitList(opts.Tasks)
	opts.Precision = ResolvePrecision(opts.Precision)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// ResolvePrecision turns PrecisionAuto into fp16 on CPUs with F16C and fp32 elsewhere.
func ResolvePrecision(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p != PrecisionAuto {
		return p
	}
	if cpuid.CPU.Supports(cpuid.F16C) {
		return "fp16"
	}
	return "fp32"
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// RegisterFlags adds one flag per option to fs. Flag names are the option keys
// in kebab-case.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSlice("tasks", nil, "training tasks, tags joined by '-' (e.g. de-1,fr-2)")
	fs.String("valid-tags", "", "tags of the validation set joined by '-'")

	fs.Int("train-steps", 0, "stop training at this optimizer step")
	fs.Int("save-checkpoint-steps", 0, "save a checkpoint every N steps")
	fs.Int("valid-steps", 0, "validate every N steps")

	fs.Int("grad-accum-count", 0, "batches accumulated per optimizer update")
	fs.Int("trunc-size", 0, "truncated BPTT window in target rows")
	fs.Int("shard-size", 0, "loss shard size")
	fs.String("normalization", "", "loss normalization: sents or tokens")

	fs.Float64("average-decay", 0, "moving average decay, 0 disables averaging")
	fs.Int("average-every", 0, "update the moving average every N sweeps")
	fs.String("precision", "", "validation precision: fp32, fp16 or auto")
	fs.Int("threads", 0, "goroutines used by the moving average")

	fs.Float64("learning-rate", 0, "base learning rate")
	fs.String("decay-method", "", "learning rate schedule: none, noam, rsqrt or exp")
	fs.Int("warmup-steps", 0, "warmup steps of noam and rsqrt")
	fs.Float64("max-grad-norm", 0, "clip the gradient norm, 0 disables clipping")

	fs.Bool("dual", false, "add the secondary decoder and critic")
	fs.Int("batch-size", 0, "sentences per batch")

	fs.Int("report-every", 0, "report training statistics every N steps")
	fs.Int("keep-checkpoint", 0, "checkpoints to keep, -1 keeps all, 0 saves none")
	fs.String("save-model", "", "checkpoint directory")
	fs.String("metrics-db", "", "SQLite file the reports are stored in")
	fs.String("train-from", "", "checkpoint to resume from")

	fs.Uint64("seed", 0, "random seed")
	fs.Int("verbose-level", 0, "debug verbosity of the training loop")
	fs.String("log-level", "", "log level: debug, info, warn or error")
}
