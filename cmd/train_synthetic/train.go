package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neurlang/seqadv/checkpoint"
	"github.com/neurlang/seqadv/config"
	"github.com/neurlang/seqadv/datasets/synthetic"
	"github.com/neurlang/seqadv/nn/toy"
	"github.com/neurlang/seqadv/optim"
	"github.com/neurlang/seqadv/report"
	"github.com/neurlang/seqadv/trainer"
)

func newTrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train on the configured synthetic tasks",
		Example: `  # Two tasks, validate on the first one every 50 steps
  train_synthetic train --tasks de-1,fr-1 --valid-tags de-1 --valid-steps 50

  # Resume from a checkpoint
  train_synthetic train --train-from checkpoints/model_step_500.json.lzw`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := getOptions(cmd.Context())
			if err != nil {
				return err
			}
			return runTrain(cmd.Context(), cmd, opts, getLogger(cmd.Context()))
		},
	}
}

func runTrain(ctx context.Context, cmd *cobra.Command, opts *config.Options, logger *slog.Logger) error {
	model, err := toy.New(toy.Config{Vocab: opts.Vocab, Hidden: opts.Hidden, Dual: opts.Dual, Seed: opts.Seed})
	if err != nil {
		return err
	}
	opt, err := optim.New(model.Parameters(), opts.HyperParameters())
	if err != nil {
		return err
	}

	tasks, valid := buildTasks(opts)

	var store *report.Store
	if opts.MetricsDB != "" {
		if dir := filepath.Dir(opts.MetricsDB); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create metrics directory: %w", err)
			}
		}
		store, err = report.OpenStore(ctx, opts.MetricsDB)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	saver := checkpoint.NewSaver(opts.SaveModel, opts.Basename, opts.KeepCheckpoint, model.Parameters(), logger)
	manager := report.NewManager(report.Config{
		Every:  opts.ReportEvery,
		Store:  store,
		RunID:  saver.RunID(),
		Logger: logger,
	})

	tr, err := trainer.New(model, toy.NewLossCompute(model, true), toy.NewLossCompute(model, false), opt,
		opts.TrainerOptions(),
		trainer.WithLogger(logger),
		trainer.WithReportManager(manager),
		trainer.WithSaver(saver))
	if err != nil {
		return err
	}
	if opts.TrainFrom != "" {
		if err := tr.Resume(ctx, saver, opts.TrainFrom); err != nil {
			return err
		}
	}

	totals, err := tr.Train(ctx, tasks, opts.TrainParams(), valid)
	report.RenderSummary(cmd.OutOrStdout(), totals)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", manager.RunID())
	return nil
}

// buildTasks gives task i a shift of i+1. The validation set reuses the shift of
// the task with the same tags, or a shift of 1.
func buildTasks(opts *config.Options) ([]*trainer.Task, *trainer.ValidSet) {
	corpus := func(shift int, seed uint64, batches int) synthetic.Corpus {
		return synthetic.Corpus{
			Vocab:      opts.Vocab,
			Shift:      shift,
			BatchSize:  opts.BatchSize,
			MinLen:     opts.MinLen,
			MaxLen:     opts.MaxLen,
			NumBatches: batches,
			Seed:       seed,
		}
	}

	var tasks []*trainer.Task
	shifts := map[string]int{}
	for i, tags := range opts.TaskTags() {
		c := corpus(i+1, opts.Seed+uint64(i), opts.NumBatches)
		task := trainer.NewTask(c.Iterator(), tags...)
		if _, ok := shifts[task.Name()]; !ok {
			shifts[task.Name()] = c.Shift
		}
		tasks = append(tasks, task)
	}

	tags := opts.ValidationTags()
	if tags == nil || opts.ValidSteps <= 0 {
		return tasks, nil
	}
	shift, ok := shifts[strings.Join(tags, "-")]
	if !ok {
		shift = 1
	}
	c := corpus(shift, opts.Seed+1<<32, max(1, opts.NumBatches/4))
	return tasks, &trainer.ValidSet{Tags: tags, Iterator: c.Iterator()}
}
