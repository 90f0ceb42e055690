// Package checkpoint writes and reads lzw compressed JSON checkpoints of the model parameters.
package checkpoint

import "compress/lzw"
import "context"
import "encoding/json"
import "io"
import "os"
import "time"

import "github.com/pkg/errors"

import "github.com/neurlang/seqadv/nn"

// ErrMismatch is returned when a checkpoint does not fit the model parameters.
var ErrMismatch = errors.New("checkpoint: parameters do not match")

// Param is one saved tensor.
type Param struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Value []float64 `json:"value"`
}

// Checkpoint is the content of one checkpoint file.
type Checkpoint struct {
	RunID   string    `json:"run_id"`
	Step    int       `json:"step"`
	SavedAt time.Time `json:"saved_at"`
	Params  []Param   `json:"params"`

	// Average is the moving average in parameter order, absent without one.
	Average [][]float64 `json:"average,omitempty"`
}

// Write writes c to w
func Write(w io.Writer, c *Checkpoint) error {
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if err := json.NewEncoder(lw).Encode(c); err != nil {
		lw.Close()
		return err
	}
	return lw.Close()
}

// Read reads a checkpoint from r
func Read(r io.Reader) (*Checkpoint, error) {
	lr := lzw.NewReader(r, lzw.LSB, 8)
	defer lr.Close()
	var c Checkpoint
	if err := json.NewDecoder(lr).Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// WriteFile writes c to the file name, replacing it only once fully written.
func WriteFile(name string, c *Checkpoint) error {
	tmp := name + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = Write(file, c)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, name)
}

// ReadFile reads the checkpoint file name.
func ReadFile(name string) (*Checkpoint, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file)
}

// Snapshot captures params at step.
func Snapshot(runID string, step int, params []*nn.Param, avg [][]float64) *Checkpoint {
	c := &Checkpoint{
		RunID:   runID,
		Step:    step,
		SavedAt: time.Now().UTC(),
		Params:  make([]Param, len(params)),
		Average: avg,
	}
	for i, p := range params {
		c.Params[i] = Param{
			Name:  p.Name,
			Shape: append([]int(nil), p.Shape...),
			Value: append([]float64(nil), p.Value...),
		}
	}
	return c
}

// Apply copies the saved values into params, which must match by name and size.
func (c *Checkpoint) Apply(params []*nn.Param) error {
	if len(c.Params) != len(params) {
		return errors.Wrapf(ErrMismatch, "%d saved, %d in the model", len(c.Params), len(params))
	}
	for i, p := range params {
		saved := c.Params[i]
		if saved.Name != p.Name || len(saved.Value) != len(p.Value) {
			return errors.Wrapf(ErrMismatch, "saved %q (%d values), model %q (%d values)",
				saved.Name, len(saved.Value), p.Name, len(p.Value))
		}
	}
	if c.Average != nil {
		if len(c.Average) != len(params) {
			return errors.Wrapf(ErrMismatch, "%d averages for %d parameters", len(c.Average), len(params))
		}
		for i, p := range params {
			if len(c.Average[i]) != len(p.Value) {
				return errors.Wrapf(ErrMismatch, "average of %q has %d values", p.Name, len(c.Average[i]))
			}
		}
	}
	for i, p := range params {
		copy(p.Value, c.Params[i].Value)
	}
	return nil
}

// Load reads the checkpoint file path into params and returns its step and moving average.
func Load(ctx context.Context, path string, params []*nn.Param) (step int, avg [][]float64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	c, err := ReadFile(path)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "read checkpoint %s", path)
	}
	if err := c.Apply(params); err != nil {
		return 0, nil, err
	}
	return c.Step, c.Average, nil
}
