// Package daemon implements the build server side of the wire protocol. A
// daemon accepts coordinator sessions over TCP, executes recipes, and serves
// the files those recipes produce.
package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/dake/internal/wire"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// fetchChunkSize is the read granularity when loading a file for transfer.
const fetchChunkSize = 8 * 1024

// Server accepts coordinator sessions and serves build, fetch, and stat
// requests. Concurrent build requests for the same target in the same
// working directory coalesce into a single execution.
type Server struct {
	port     int
	executor ports.Executor
	logger   ports.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*wire.Conn]struct{}
	inflight map[string]*inflightBuild
}

// inflightBuild is one running recipe execution. Followers wait on done and
// read the shared outcome.
type inflightBuild struct {
	done   chan struct{}
	result *domain.RecipeResult
	err    error
}

// NewServer creates a Server listening on port once Serve is called.
func NewServer(port int, executor ports.Executor, logger ports.Logger) *Server {
	return &Server{
		port:     port,
		executor: executor,
		logger:   logger,
		conns:    make(map[*wire.Conn]struct{}),
		inflight: make(map[string]*inflightBuild),
	}
}

// SetPort changes the listen port. Only valid before Serve.
func (s *Server) SetPort(port int) {
	s.port = port
}

// Serve listens and handles sessions until ctx is canceled. It returns
// ctx.Err() on graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return zerr.Wrap(err, "failed to listen")
	}

	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("daemon listening on " + lis.Addr().String())
	}

	g, ctx := errgroup.WithContext(ctx)

	// Unblock Accept and open sessions when the context ends.
	g.Go(func() error {
		<-ctx.Done()
		_ = lis.Close()
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	})

	g.Go(func() error {
		for {
			raw, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return zerr.Wrap(err, "accept failed")
			}

			g.Go(func() error {
				s.handleSession(ctx, wire.NewConn(raw))
				return nil
			})
		}
	})

	return g.Wait()
}

// Addr returns the bound listen address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleSession serves one coordinator connection until it closes or a
// protocol violation occurs. Request errors are reported in-band and keep
// the session alive.
func (s *Server) handleSession(ctx context.Context, conn *wire.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		kind, payload, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil && s.logger != nil {
				s.logger.Warn("session " + conn.RemoteAddr().String() + " dropped: " + err.Error())
			}
			return
		}

		if err := s.handleRequest(ctx, conn, kind, payload); err != nil {
			if s.logger != nil {
				s.logger.Error(err)
			}
			return
		}
	}
}

// handleRequest dispatches one frame. The returned error is a transport
// failure; request-level failures go back as ERROR frames.
func (s *Server) handleRequest(ctx context.Context, conn *wire.Conn, kind wire.Kind, payload []byte) error {
	switch kind {
	case wire.KindBuildRequest:
		var req wire.BuildRequest
		if err := wire.Decode(payload, &req); err != nil {
			return s.sendError(conn, wire.CodeProtocol, err.Error())
		}
		return s.handleBuild(ctx, conn, &req)

	case wire.KindFetchRequest:
		var req wire.FetchRequest
		if err := wire.Decode(payload, &req); err != nil {
			return s.sendError(conn, wire.CodeProtocol, err.Error())
		}
		return s.handleFetch(conn, &req)

	case wire.KindStatRequest:
		var req wire.StatRequest
		if err := wire.Decode(payload, &req); err != nil {
			return s.sendError(conn, wire.CodeProtocol, err.Error())
		}
		return s.handleStat(conn, &req)

	default:
		return s.sendError(conn, wire.CodeProtocol, "unexpected message kind "+kind.String())
	}
}

func (s *Server) handleBuild(ctx context.Context, conn *wire.Conn, req *wire.BuildRequest) error {
	result, err := s.runCoalesced(ctx, req)
	if err != nil {
		return s.sendError(conn, wire.CodeBuild, err.Error())
	}

	return conn.Send(wire.KindBuildResult, &wire.BuildResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	})
}

// runCoalesced executes the recipe, or joins an identical execution already
// in flight. Every requester of one (workingDir, target) pair observes the
// same result.
func (s *Server) runCoalesced(ctx context.Context, req *wire.BuildRequest) (*domain.RecipeResult, error) {
	key := req.WorkingDir + "\x00" + req.TargetName

	s.mu.Lock()
	if b, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-b.done:
			return b.result, b.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b := &inflightBuild{done: make(chan struct{})}
	s.inflight[key] = b
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("building " + req.TargetName)
	}
	b.result, b.err = s.executor.Run(ctx, req.WorkingDir, req.RecipeLines)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	close(b.done)

	return b.result, b.err
}

func (s *Server) handleFetch(conn *wire.Conn, req *wire.FetchRequest) error {
	data, err := readChunked(resolvePath(req.WorkingDir, req.Path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.sendError(conn, wire.CodeNotFound, "no such file: "+req.Path)
		}
		return s.sendError(conn, wire.CodeBuild, err.Error())
	}

	return conn.Send(wire.KindFetchResponse, &wire.FetchResponse{
		Size:     int64(len(data)),
		Checksum: wire.Checksum(data),
		Data:     data,
	})
}

func (s *Server) handleStat(conn *wire.Conn, req *wire.StatRequest) error {
	resp := &wire.StatResponse{}

	info, err := os.Stat(resolvePath(req.WorkingDir, req.Path))
	switch {
	case err == nil:
		resp.Exists = true
		resp.MtimeUnix = info.ModTime().UnixNano()
		resp.Size = info.Size()
	case errors.Is(err, fs.ErrNotExist):
		// Exists stays false.
	default:
		return s.sendError(conn, wire.CodeBuild, err.Error())
	}

	return conn.Send(wire.KindStatResponse, resp)
}

func (s *Server) sendError(conn *wire.Conn, code, message string) error {
	return conn.Send(wire.KindError, &wire.ErrorMessage{Code: code, Message: message})
}

// resolvePath anchors a relative request path in the working directory.
func resolvePath(workingDir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(workingDir, path)
}

// readChunked loads a file in fixed-size reads. Files larger than the frame
// limit are rejected rather than truncated.
func readChunked(path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the coordinator
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	chunk := make([]byte, fetchChunkSize)
	for {
		n, err := f.Read(chunk)
		buf.Write(chunk[:n])
		if buf.Len() > wire.MaxFrameSize {
			return nil, zerr.With(domain.ErrProtocol, "file_exceeds_frame_limit", path)
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, zerr.Wrap(err, "failed to read "+path)
		}
	}
}
