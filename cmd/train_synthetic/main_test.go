package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "train_synthetic v"+Version)
}

func TestTrainThenReport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	db := filepath.Join(dir, "metrics", "runs.db")
	ckpt := filepath.Join(dir, "ckpt")

	out, err := execute(t, "train",
		"--tasks=de-1,fr-2",
		"--valid-tags=de-1",
		"--train-steps=3",
		"--save-checkpoint-steps=2",
		"--valid-steps=1",
		"--report-every=1",
		"--batch-size=2",
		"--save-model="+ckpt,
		"--metrics-db="+db,
		"--log-level=error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "de-1")
	assert.Contains(t, out, "fr-2")
	assert.Contains(t, out, "TOTAL")
	assert.FileExists(t, filepath.Join(ckpt, "model_step_2.json.lzw"))
	assert.FileExists(t, filepath.Join(ckpt, "model_step_3.json.lzw"))

	out, err = execute(t, "report", "--kind=valid", "--metrics-db="+db, "--log-level=error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "valid")
	assert.Contains(t, out, "(3 rows)")

	out, err = execute(t, "train",
		"--train-steps=4",
		"--train-from="+filepath.Join(ckpt, "model_step_3.json.lzw"),
		"--save-model="+ckpt,
		"--metrics-db="+db,
		"--log-level=error")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(ckpt, "model_step_4.json.lzw"))
}

func TestInvalidConfiguration(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "train", "--grad-accum-count=2", "--trunc-size=2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trunc_size")
}

func TestReportWithoutRuns(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	_, err := execute(t, "report", "--metrics-db="+filepath.Join(dir, "empty.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runs")
}
