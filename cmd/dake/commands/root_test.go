package commands_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dake/cmd/dake/commands"
	"go.trai.ch/dake/internal/adapters/artifact"
	"go.trai.ch/dake/internal/adapters/config"
	"go.trai.ch/dake/internal/adapters/hosts"
	"go.trai.ch/dake/internal/adapters/makefile"
	"go.trai.ch/dake/internal/adapters/shell"
	"go.trai.ch/dake/internal/app"
	"go.trai.ch/dake/internal/daemon"
	"go.trai.ch/dake/internal/engine/scheduler"
	"go.trai.ch/dake/internal/remote"
)

type quietLogger struct{}

func (quietLogger) Info(string) {}
func (quietLogger) Warn(string) {}
func (quietLogger) Error(error) {}

func newCLI(t *testing.T) *commands.CLI {
	t.Helper()
	t.Chdir(t.TempDir())

	settings := config.Default()
	executor := shell.NewExecutor(nil)
	dispatcher := remote.NewDispatcher(remote.Options{DialAttempts: 1}, nil)
	store := artifact.NewStore(".")

	a := app.New(
		makefile.NewLoader(nil),
		settings,
		hosts.NewFactory(settings.Port),
		scheduler.New(executor, dispatcher, store, nil, nil),
		daemon.NewServer(0, executor, nil),
		store,
		dispatcher,
		quietLogger{},
	)
	return commands.New(a)
}

func TestRoot_BuildsDefaultGoal(t *testing.T) {
	cli := newCLI(t)
	require.NoError(t, os.WriteFile("Makefile", []byte("out:\n\ttouch out\n"), 0o644))

	cli.SetArgs(nil)
	require.NoError(t, cli.Execute(context.Background()))
	assert.FileExists(t, "out")
}

func TestRoot_BuildsNamedTargets(t *testing.T) {
	cli := newCLI(t)
	require.NoError(t, os.WriteFile("Makefile", []byte("a:\n\ttouch a\nb:\n\ttouch b\n"), 0o644))

	cli.SetArgs([]string{"b"})
	require.NoError(t, cli.Execute(context.Background()))
	assert.FileExists(t, "b")
	assert.NoFileExists(t, "a")
}

func TestRoot_FileFlag(t *testing.T) {
	cli := newCLI(t)
	require.NoError(t, os.WriteFile("rules.mk", []byte("out:\n\ttouch out\n"), 0o644))

	cli.SetArgs([]string{"--file", "rules.mk"})
	require.NoError(t, cli.Execute(context.Background()))
	assert.FileExists(t, "out")
}

func TestRoot_MissingMakefileFails(t *testing.T) {
	cli := newCLI(t)

	cli.SetArgs(nil)
	assert.Error(t, cli.Execute(context.Background()))
}

func TestVersionCmd(t *testing.T) {
	cli := newCLI(t)

	cli.SetArgs([]string{"version"})
	assert.NoError(t, cli.Execute(context.Background()))
}
