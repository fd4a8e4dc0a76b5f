package app_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dake/internal/adapters/artifact"
	"go.trai.ch/dake/internal/adapters/config"
	"go.trai.ch/dake/internal/adapters/hosts"
	"go.trai.ch/dake/internal/adapters/makefile"
	"go.trai.ch/dake/internal/adapters/shell"
	"go.trai.ch/dake/internal/app"
	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/daemon"
	"go.trai.ch/dake/internal/engine/scheduler"
	"go.trai.ch/dake/internal/remote"
)

// newApp assembles a fully local App rooted in a fresh temp directory and
// chdirs into it.
func newApp(t *testing.T) *app.App {
	t.Helper()
	t.Chdir(t.TempDir())

	settings := config.Default()
	executor := shell.NewExecutor(nil)
	dispatcher := remote.NewDispatcher(remote.Options{DialAttempts: 1}, nil)
	store := artifact.NewStore(".")
	sched := scheduler.New(executor, dispatcher, store, nil, nil)
	server := daemon.NewServer(0, executor, nil)

	return app.New(
		makefile.NewLoader(nil),
		settings,
		hosts.NewFactory(settings.Port),
		sched,
		server,
		store,
		dispatcher,
		noopLogger{},
	)
}

type noopLogger struct{}

func (noopLogger) Info(string) {}
func (noopLogger) Warn(string) {}
func (noopLogger) Error(error) {}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

func TestApp_RunDefaultGoal(t *testing.T) {
	a := newApp(t)

	writeFile(t, "Makefile", "out.txt: src.txt\n\tcp src.txt out.txt\n")
	writeFile(t, "src.txt", "payload")

	require.NoError(t, a.Run(context.Background(), nil, app.RunOptions{}))

	data, err := os.ReadFile("out.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestApp_RunNamedGoal(t *testing.T) {
	a := newApp(t)

	writeFile(t, "Makefile", "first:\n\ttouch first\nsecond:\n\ttouch second\n")

	require.NoError(t, a.Run(context.Background(), []string{"second"}, app.RunOptions{}))

	assert.NoFileExists(t, "first")
	assert.FileExists(t, "second")
}

func TestApp_RunFileOverride(t *testing.T) {
	a := newApp(t)

	writeFile(t, "build.mk", "out:\n\ttouch out\n")

	require.NoError(t, a.Run(context.Background(), nil, app.RunOptions{File: "build.mk"}))
	assert.FileExists(t, "out")
}

func TestApp_RunMissingMakefile(t *testing.T) {
	a := newApp(t)

	err := a.Run(context.Background(), nil, app.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrNoMakefile)
}

func TestApp_RunRecipeFailureCarriesExitCode(t *testing.T) {
	a := newApp(t)

	writeFile(t, "Makefile", "bad:\n\texit 5\n")

	err := a.Run(context.Background(), nil, app.RunOptions{})
	var exitErr *domain.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 5, exitErr.Code)
}

func TestApp_RunUnknownTarget(t *testing.T) {
	a := newApp(t)

	writeFile(t, "Makefile", "all:\n\ttrue\n")

	err := a.Run(context.Background(), []string{"nope"}, app.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestApp_RunUnresolvedPrerequisite(t *testing.T) {
	a := newApp(t)

	writeFile(t, "Makefile", "out: missing.c\n\ttrue\n")

	err := a.Run(context.Background(), nil, app.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrUnresolvedPrerequisite)
}

func TestApp_ServeDaemonStopsOnCancel(t *testing.T) {
	a := newApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeDaemon(ctx, 0) }()

	cancel()
	assert.NoError(t, <-done)
}

// startDaemon runs a build daemon on an ephemeral loopback port and returns
// the port number for use in host annotations.
func startDaemon(t *testing.T) string {
	t.Helper()

	srv := daemon.NewServer(0, shell.NewExecutor(nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == nil {
		require.True(t, time.Now().Before(deadline), "daemon did not start listening")
		time.Sleep(5 * time.Millisecond)
	}

	_, port, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	return port
}

func TestApp_DistributedBuild(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	a := newApp(t)

	portA := startDaemon(t)
	portB := startDaemon(t)

	// Sources live in the checkout everywhere, objects are compiled on their
	// own nodes and linked on the coordinator.
	for _, dir := range []string{".", dirA, dirB} {
		writeFile(t, filepath.Join(dir, "a.src"), "alpha\n")
		writeFile(t, filepath.Join(dir, "b.src"), "beta\n")
	}

	writeFile(t, "Makefile", fmt.Sprintf(`#!ROOT_DEF 127.0.0.1:%[1]s = %[3]s
#!ROOT_DEF 127.0.0.1:%[2]s = %[4]s

main.txt: a.o b.o
	cat a.o b.o > main.txt

a.o[127.0.0.1:%[1]s]: a.src
	tr a-z A-Z < a.src > a.o

b.o[127.0.0.1:%[2]s]: b.src
	tr a-z A-Z < b.src > b.o
`, portA, portB, dirA, dirB))

	require.NoError(t, a.Run(context.Background(), nil, app.RunOptions{}))

	// Each object was produced on its own node, came home, and got linked.
	assert.FileExists(t, filepath.Join(dirA, "a.o"))
	assert.FileExists(t, filepath.Join(dirB, "b.o"))

	data, err := os.ReadFile("main.txt")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA\nBETA\n", string(data))

	// An immediate rerun finds everything current on every node.
	before, err := os.Stat("main.txt")
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background(), nil, app.RunOptions{}))
	after, err := os.Stat("main.txt")
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestApp_DispatchersCloseAfterRun(t *testing.T) {
	a := newApp(t)

	writeFile(t, "Makefile", "ok:\n\ttrue\n")
	require.NoError(t, a.Run(context.Background(), nil, app.RunOptions{}))
	// A second run must work even though Run closes dispatcher sessions.
	require.NoError(t, a.Run(context.Background(), nil, app.RunOptions{}))
}
