package shell_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dake/internal/adapters/shell"
)

func TestExecutor_CapturesOutput(t *testing.T) {
	e := shell.NewExecutor(nil)
	res, err := e.Run(context.Background(), t.TempDir(), []string{
		"echo out",
		"echo err 1>&2",
	})
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecutor_StopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	e := shell.NewExecutor(nil)
	res, err := e.Run(context.Background(), dir, []string{
		"echo first",
		"exit 3",
		"touch should-not-exist",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "first\n", res.Stdout)

	_, statErr := os.Stat(filepath.Join(dir, "should-not-exist"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExecutor_RunsInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	e := shell.NewExecutor(nil)
	res, err := e.Run(context.Background(), dir, []string{"pwd"})
	require.NoError(t, err)
	require.True(t, res.Ok())

	got, err := filepath.EvalSymlinks(filepath.Clean(res.Stdout[:len(res.Stdout)-1]))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExecutor_EmptyRecipe(t *testing.T) {
	e := shell.NewExecutor(nil)
	res, err := e.Run(context.Background(), ".", nil)
	require.NoError(t, err)
	assert.True(t, res.Ok())
}

func TestExecutor_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e := shell.NewExecutor(nil)
	_, err := e.Run(ctx, ".", []string{"sleep 5"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
