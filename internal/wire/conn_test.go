package wire_test

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/wire"
)

func pipeConns(t *testing.T) (*wire.Conn, *wire.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return wire.NewConn(a), wire.NewConn(b)
}

func TestConn_BuildRequestRoundTrip(t *testing.T) {
	client, server := pipeConns(t)

	sent := wire.BuildRequest{
		TargetName:  "a.o",
		RecipeLines: []string{"gcc -c a.c -o a.o"},
		WorkingDir:  "/srv/build",
	}

	errCh := make(chan error, 1)
	go func() { errCh <- client.Send(wire.KindBuildRequest, sent) }()

	kind, payload, err := server.Receive()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, wire.KindBuildRequest, kind)

	var got wire.BuildRequest
	require.NoError(t, wire.Decode(payload, &got))
	assert.Equal(t, sent, got)
}

func TestConn_FetchResponseBytes(t *testing.T) {
	client, server := pipeConns(t)

	data := []byte{0x7f, 'E', 'L', 'F', 0x00, 0x01}
	go func() {
		_ = server.Send(wire.KindFetchResponse, wire.FetchResponse{
			Size: int64(len(data)),
			Data: data,
		})
	}()

	kind, payload, err := client.Receive()
	require.NoError(t, err)
	assert.Equal(t, wire.KindFetchResponse, kind)

	var resp wire.FetchResponse
	require.NoError(t, wire.Decode(payload, &resp))
	assert.Equal(t, data, resp.Data)
	assert.EqualValues(t, len(data), resp.Size)
}

func TestConn_SessionReuse(t *testing.T) {
	// Several request/response pairs over one connection.
	client, server := pipeConns(t)

	go func() {
		for i := 0; i < 3; i++ {
			kind, payload, err := server.Receive()
			if err != nil || kind != wire.KindStatRequest {
				return
			}
			var req wire.StatRequest
			if err := wire.Decode(payload, &req); err != nil {
				return
			}
			_ = server.Send(wire.KindStatResponse, wire.StatResponse{Exists: true})
		}
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Send(wire.KindStatRequest, wire.StatRequest{Path: "a.o"}))
		kind, payload, err := client.Receive()
		require.NoError(t, err)
		require.Equal(t, wire.KindStatResponse, kind)
		var resp wire.StatResponse
		require.NoError(t, wire.Decode(payload, &resp))
		assert.True(t, resp.Exists)
	}
}

func TestConn_BadKindByte(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	go func() {
		// Hand-rolled frame with an out-of-range kind byte.
		_, _ = a.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0xff})
	}()

	_, _, err := wire.NewConn(b).Receive()
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestConn_EOFOnClose(t *testing.T) {
	a, b := net.Pipe()
	conn := wire.NewConn(b)
	require.NoError(t, a.Close())

	_, _, err := conn.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "BUILD_REQUEST", wire.KindBuildRequest.String())
	assert.Equal(t, "ERROR", wire.KindError.String())
	assert.Equal(t, "UNKNOWN", wire.Kind(42).String())
}
