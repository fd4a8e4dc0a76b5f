package remote_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/remote"
	"go.trai.ch/dake/internal/wire"
	"go.trai.ch/zerr"
)

// fakeDaemon answers wire requests on in-memory pipes using the provided
// handler. It also counts how many sessions were dialed.
type fakeDaemon struct {
	dials  atomic.Int64
	handle func(kind wire.Kind, payload []byte, conn *wire.Conn)
}

func (f *fakeDaemon) dial(_ context.Context, _ string) (net.Conn, error) {
	f.dials.Add(1)
	client, server := net.Pipe()

	go func() {
		conn := wire.NewConn(server)
		defer conn.Close()
		for {
			kind, payload, err := conn.Receive()
			if err != nil {
				return
			}
			f.handle(kind, payload, conn)
		}
	}()

	return client, nil
}

func newDispatcher(t *testing.T, f *fakeDaemon) *remote.Dispatcher {
	t.Helper()
	d := remote.NewDispatcher(remote.Options{DialAttempts: 1}, nil)
	d.SetDial(f.dial)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func remoteNode() domain.Node {
	return domain.Node{Address: "10.0.0.2:1808", WorkingDir: "/srv/build"}
}

func TestDispatcher_Build(t *testing.T) {
	f := &fakeDaemon{}
	f.handle = func(kind wire.Kind, payload []byte, conn *wire.Conn) {
		assert.Equal(t, wire.KindBuildRequest, kind)

		var req wire.BuildRequest
		assert.NoError(t, wire.Decode(payload, &req))
		assert.Equal(t, "main.o", req.TargetName)
		assert.Equal(t, "/srv/build", req.WorkingDir)

		_ = conn.Send(wire.KindBuildResult, &wire.BuildResult{
			ExitCode: 0,
			Stdout:   "compiled\n",
		})
	}

	d := newDispatcher(t, f)
	res, err := d.Build(context.Background(), remoteNode(), "main.o", []string{"cc -c main.c"})
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, "compiled\n", res.Stdout)
}

func TestDispatcher_SessionReuse(t *testing.T) {
	f := &fakeDaemon{}
	f.handle = func(kind wire.Kind, _ []byte, conn *wire.Conn) {
		assert.Equal(t, wire.KindStatRequest, kind)
		_ = conn.Send(wire.KindStatResponse, &wire.StatResponse{Exists: true})
	}

	d := newDispatcher(t, f)
	for range 3 {
		_, err := d.Stat(context.Background(), remoteNode(), "main.o")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.dials.Load(), "requests to one node should share a session")
}

func TestDispatcher_ConcurrentRequestsDoNotQueue(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	f := &fakeDaemon{}
	f.handle = func(kind wire.Kind, _ []byte, conn *wire.Conn) {
		switch kind {
		case wire.KindBuildRequest:
			close(started)
			<-release
			_ = conn.Send(wire.KindBuildResult, &wire.BuildResult{})
		case wire.KindStatRequest:
			_ = conn.Send(wire.KindStatResponse, &wire.StatResponse{Exists: true})
		}
	}

	d := newDispatcher(t, f)

	buildDone := make(chan error, 1)
	go func() {
		_, err := d.Build(context.Background(), remoteNode(), "slow.o", []string{"cc -c slow.c"})
		buildDone <- err
	}()

	// While the build holds its connection, a stat must get one of its own.
	<-started
	info, err := d.Stat(context.Background(), remoteNode(), "main.o")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(2), f.dials.Load())

	close(release)
	require.NoError(t, <-buildDone)

	// Both connections are back in the pool now.
	_, err = d.Stat(context.Background(), remoteNode(), "main.o")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.dials.Load(), "released connections are reused")
}

func TestDispatcher_FetchVerifiesChecksum(t *testing.T) {
	content := []byte("artifact bytes")

	f := &fakeDaemon{}
	f.handle = func(_ wire.Kind, _ []byte, conn *wire.Conn) {
		_ = conn.Send(wire.KindFetchResponse, &wire.FetchResponse{
			Size:     int64(len(content)),
			Checksum: wire.Checksum(content),
			Data:     content,
		})
	}

	d := newDispatcher(t, f)
	data, err := d.Fetch(context.Background(), remoteNode(), "main.o")
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestDispatcher_FetchChecksumMismatch(t *testing.T) {
	f := &fakeDaemon{}
	f.handle = func(_ wire.Kind, _ []byte, conn *wire.Conn) {
		_ = conn.Send(wire.KindFetchResponse, &wire.FetchResponse{
			Size:     4,
			Checksum: 0xdeadbeef,
			Data:     []byte("data"),
		})
	}

	d := newDispatcher(t, f)
	_, err := d.Fetch(context.Background(), remoteNode(), "main.o")
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestDispatcher_RemoteNotFound(t *testing.T) {
	f := &fakeDaemon{}
	f.handle = func(_ wire.Kind, _ []byte, conn *wire.Conn) {
		_ = conn.Send(wire.KindError, &wire.ErrorMessage{
			Code:    wire.CodeNotFound,
			Message: "no such file: main.o",
		})
	}

	d := newDispatcher(t, f)
	_, err := d.Fetch(context.Background(), remoteNode(), "main.o")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestDispatcher_UnexpectedKind(t *testing.T) {
	f := &fakeDaemon{}
	f.handle = func(_ wire.Kind, _ []byte, conn *wire.Conn) {
		_ = conn.Send(wire.KindBuildResult, &wire.BuildResult{})
	}

	d := newDispatcher(t, f)
	_, err := d.Stat(context.Background(), remoteNode(), "main.o")
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestDispatcher_DialRetryExhausted(t *testing.T) {
	var attempts atomic.Int64
	d := remote.NewDispatcher(remote.Options{
		DialAttempts: 3,
		DialBackoff:  time.Millisecond,
	}, nil)
	d.SetDial(func(_ context.Context, _ string) (net.Conn, error) {
		attempts.Add(1)
		return nil, zerr.New("connection refused")
	})

	_, err := d.Build(context.Background(), remoteNode(), "main.o", nil)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestDispatcher_StatModTime(t *testing.T) {
	mtime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	f := &fakeDaemon{}
	f.handle = func(_ wire.Kind, _ []byte, conn *wire.Conn) {
		_ = conn.Send(wire.KindStatResponse, &wire.StatResponse{
			Exists:    true,
			MtimeUnix: mtime.UnixNano(),
			Size:      42,
		})
	}

	d := newDispatcher(t, f)
	info, err := d.Stat(context.Background(), remoteNode(), "main.o")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.True(t, info.ModTime.Equal(mtime))
	assert.Equal(t, int64(42), info.Size)
}
