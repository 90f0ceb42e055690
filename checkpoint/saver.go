package checkpoint

import "context"
import "fmt"
import "log/slog"
import "os"
import "path/filepath"
import "slices"

import "github.com/google/uuid"
import "github.com/pkg/errors"

import "github.com/neurlang/seqadv/nn"

// Saver writes one checkpoint file per step and keeps only the newest ones.
type Saver struct {
	dir      string
	basename string
	keep     int
	params   []*nn.Param
	runID    string
	logger   *slog.Logger

	saved []string
}

// NewSaver saves params under dir. keep is the number of checkpoints kept:
// -1 keeps all of them, 0 disables saving.
func NewSaver(dir, basename string, keep int, params []*nn.Param, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Saver{
		dir:      dir,
		basename: basename,
		keep:     keep,
		params:   params,
		runID:    uuid.New().String(),
		logger:   logger,
	}
}

// RunID identifies the run in every checkpoint the saver writes.
func (s *Saver) RunID() string {
	return s.runID
}

// Path is the file of the checkpoint at step.
func (s *Saver) Path(step int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_step_%d.json.lzw", s.basename, step))
}

// Save writes the checkpoint of step, overwriting an earlier save of the same step.
func (s *Saver) Save(step int, avg [][]float64) error {
	if s.keep == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "create checkpoint directory")
	}
	path := s.Path(step)
	if err := WriteFile(path, Snapshot(s.runID, step, s.params, avg)); err != nil {
		return errors.Wrapf(err, "write checkpoint %s", path)
	}
	s.logger.Info("saved checkpoint", "path", path, "step", step, "average", avg != nil)

	if slices.Contains(s.saved, path) {
		return nil
	}
	s.saved = append(s.saved, path)
	for s.keep > 0 && len(s.saved) > s.keep {
		old := s.saved[0]
		s.saved = s.saved[1:]
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove checkpoint %s", old)
		}
		s.logger.Debug("removed checkpoint", "path", old)
	}
	return nil
}

// Load implements the trainer's checkpoint loader.
func (s *Saver) Load(ctx context.Context, path string, params []*nn.Param) (int, [][]float64, error) {
	return Load(ctx, path, params)
}
