// Package remote implements the coordinator-side client for build daemons.
// Connections are opened lazily and pooled per node address; the wire format
// serializes one exchange per connection, so concurrent requests to the same
// node each run on their own connection instead of queuing behind a long
// build.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/dake/internal/wire"
	"go.trai.ch/zerr"
)

// DialFunc opens a stream to a daemon address. Swappable for tests.
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// Options tunes the dispatcher's connection behavior.
type Options struct {
	// DialAttempts bounds connection retries per session.
	DialAttempts int

	// DialBackoff is the initial retry delay; it doubles per attempt.
	DialBackoff time.Duration
}

// maxIdleConns caps pooled idle connections per address; extra connections
// dialed under load are closed on release instead.
const maxIdleConns = 4

// Dispatcher implements ports.Dispatcher over the wire protocol.
type Dispatcher struct {
	opts   Options
	logger ports.Logger
	dial   DialFunc

	mu     sync.Mutex
	idle   map[string][]*wire.Conn
	closed bool
}

// NewDispatcher creates a Dispatcher dialing over TCP.
func NewDispatcher(opts Options, logger ports.Logger) *Dispatcher {
	if opts.DialAttempts < 1 {
		opts.DialAttempts = 1
	}
	return &Dispatcher{
		opts:   opts,
		logger: logger,
		dial: func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", address)
		},
		idle: make(map[string][]*wire.Conn),
	}
}

// SetDial overrides the dial function. Test hook.
func (d *Dispatcher) SetDial(dial DialFunc) {
	d.dial = dial
}

// Build implements ports.Dispatcher.
func (d *Dispatcher) Build(ctx context.Context, node domain.Node, target string, recipe []string) (*domain.RecipeResult, error) {
	req := &wire.BuildRequest{
		TargetName:  target,
		RecipeLines: recipe,
		WorkingDir:  node.WorkingDir,
	}

	var resp wire.BuildResult
	if err := d.roundTrip(ctx, node, wire.KindBuildRequest, req, wire.KindBuildResult, &resp); err != nil {
		return nil, err
	}

	return &domain.RecipeResult{
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	}, nil
}

// Fetch implements ports.Dispatcher. The transferred bytes are verified
// against the checksum the daemon computed.
func (d *Dispatcher) Fetch(ctx context.Context, node domain.Node, path string) ([]byte, error) {
	req := &wire.FetchRequest{Path: path, WorkingDir: node.WorkingDir}

	var resp wire.FetchResponse
	if err := d.roundTrip(ctx, node, wire.KindFetchRequest, req, wire.KindFetchResponse, &resp); err != nil {
		return nil, err
	}

	if sum := wire.Checksum(resp.Data); sum != resp.Checksum {
		return nil, zerr.With(zerr.With(domain.ErrProtocol, "path", path), "checksum_mismatch", fmt.Sprintf("%x != %x", sum, resp.Checksum))
	}
	return resp.Data, nil
}

// Stat implements ports.Dispatcher.
func (d *Dispatcher) Stat(ctx context.Context, node domain.Node, path string) (domain.FileInfo, error) {
	req := &wire.StatRequest{Path: path, WorkingDir: node.WorkingDir}

	var resp wire.StatResponse
	if err := d.roundTrip(ctx, node, wire.KindStatRequest, req, wire.KindStatResponse, &resp); err != nil {
		return domain.FileInfo{}, err
	}

	info := domain.FileInfo{Exists: resp.Exists, Size: resp.Size}
	if resp.Exists {
		info.ModTime = time.Unix(0, resp.MtimeUnix)
	}
	return info, nil
}

// Close implements ports.Dispatcher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true

	var firstErr error
	for addr, conns := range d.idle {
		for _, conn := range conns {
			if err := conn.Close(); err != nil && firstErr == nil {
				firstErr = zerr.Wrap(err, "failed to close session to "+addr)
			}
		}
		delete(d.idle, addr)
	}
	return firstErr
}

// roundTrip runs one request/response exchange on a connection of its own.
// Healthy connections return to the pool; any transport or protocol failure
// closes the connection so the next request redials.
func (d *Dispatcher) roundTrip(ctx context.Context, node domain.Node, reqKind wire.Kind, req any, wantKind wire.Kind, resp any) error {
	conn, err := d.acquire(ctx, node.Address)
	if err != nil {
		return err
	}

	healthy := false
	defer func() {
		if healthy {
			d.release(node.Address, conn)
		} else {
			_ = conn.Close()
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return zerr.Wrap(err, "failed to set session deadline")
		}
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}

	if err := conn.Send(reqKind, req); err != nil {
		return zerr.Wrap(err, "failed to send "+reqKind.String()+" to "+node.Address)
	}

	kind, payload, err := conn.Receive()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zerr.Wrap(domain.ErrDispatchTimeout, node.Address)
		}
		return zerr.Wrap(err, "failed to receive response from "+node.Address)
	}

	switch kind {
	case wantKind:
		healthy = true
		return wire.Decode(payload, resp)
	case wire.KindError:
		var msg wire.ErrorMessage
		if err := wire.Decode(payload, &msg); err != nil {
			return err
		}
		// In-band errors leave the stream frame-aligned.
		healthy = true
		return remoteError(node.Address, msg)
	default:
		return zerr.With(zerr.With(domain.ErrProtocol, "want", wantKind.String()), "got", kind.String())
	}
}

// acquire hands out an idle connection to address, dialing a fresh one with
// bounded retry when every pooled connection is busy.
func (d *Dispatcher) acquire(ctx context.Context, address string) (*wire.Conn, error) {
	d.mu.Lock()
	if conns := d.idle[address]; len(conns) > 0 {
		conn := conns[len(conns)-1]
		d.idle[address] = conns[:len(conns)-1]
		d.mu.Unlock()
		return conn, nil
	}
	d.mu.Unlock()

	raw, err := d.dialRetry(ctx, address)
	if err != nil {
		return nil, err
	}
	return wire.NewConn(raw), nil
}

// release returns a healthy connection to the pool.
func (d *Dispatcher) release(address string, conn *wire.Conn) {
	d.mu.Lock()
	if !d.closed && len(d.idle[address]) < maxIdleConns {
		d.idle[address] = append(d.idle[address], conn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	_ = conn.Close()
}

func (d *Dispatcher) dialRetry(ctx context.Context, address string) (net.Conn, error) {
	backoff := d.opts.DialBackoff
	var lastErr error

	for attempt := 1; attempt <= d.opts.DialAttempts; attempt++ {
		raw, err := d.dial(ctx, address)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if attempt < d.opts.DialAttempts {
			if d.logger != nil {
				d.logger.Warn(fmt.Sprintf("dial %s failed (attempt %d/%d), retrying", address, attempt, d.opts.DialAttempts))
			}
			select {
			case <-ctx.Done():
				return nil, zerr.Wrap(domain.ErrConnection, address)
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return nil, zerr.With(zerr.Wrap(domain.ErrConnection, "all dial attempts to "+address+" exhausted"), "cause", lastErr.Error())
}

// remoteError maps a daemon error message to the domain taxonomy.
func remoteError(address string, msg wire.ErrorMessage) error {
	switch msg.Code {
	case wire.CodeNotFound:
		return zerr.Wrap(domain.ErrArtifactNotFound, msg.Message)
	case wire.CodeBuild:
		return zerr.Wrap(domain.ErrRecipeFailed, msg.Message)
	default:
		return zerr.With(zerr.Wrap(domain.ErrProtocol, msg.Message), "node", address)
	}
}
