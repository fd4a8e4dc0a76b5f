package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/zerr"
)

// HeaderSize is the fixed frame header length: 8 bytes little-endian payload
// size plus one kind byte.
const HeaderSize = 9

// MaxFrameSize bounds a single payload. Artifacts travel in one frame, so
// this is also the largest transferable file.
const MaxFrameSize = 1 << 30

// Conn frames messages over a stream. It is not safe for concurrent use; the
// dispatcher serializes request/response pairs per session.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader
	w   *bufio.Writer
}

// NewConn wraps a network connection.
func NewConn(raw net.Conn) *Conn {
	return &Conn{
		raw: raw,
		r:   bufio.NewReader(raw),
		w:   bufio.NewWriter(raw),
	}
}

// Send encodes v and writes one frame.
func (c *Conn) Send(kind Kind, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return zerr.Wrap(err, "failed to encode message")
	}
	if len(payload) > MaxFrameSize {
		return zerr.With(domain.ErrProtocol, "oversize_payload", len(payload))
	}

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(payload)))
	header[8] = byte(kind)

	if _, err := c.w.Write(header[:]); err != nil {
		return zerr.Wrap(err, "failed to write frame header")
	}
	if _, err := c.w.Write(payload); err != nil {
		return zerr.Wrap(err, "failed to write frame payload")
	}
	if err := c.w.Flush(); err != nil {
		return zerr.Wrap(err, "failed to flush frame")
	}
	return nil
}

// Receive reads one frame and returns its kind and raw payload.
func (c *Conn) Receive() (Kind, []byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		// Propagate EOF untouched so session loops can detect disconnects.
		if err == io.EOF {
			return 0, nil, err
		}
		return 0, nil, zerr.Wrap(err, "failed to read frame header")
	}

	size := binary.LittleEndian.Uint64(header[:8])
	kind := Kind(header[8])
	if kind > KindError {
		return 0, nil, zerr.With(domain.ErrProtocol, "kind", int(header[8]))
	}
	if size > MaxFrameSize {
		return 0, nil, zerr.With(domain.ErrProtocol, "frame_size", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return 0, nil, zerr.Wrap(err, "failed to read frame payload")
	}
	return kind, payload, nil
}

// Decode unmarshals a payload produced by Receive.
func Decode(payload []byte, v any) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return zerr.Wrap(err, "failed to decode message")
	}
	return nil
}

// SetDeadline bounds the next read/write on the underlying connection. The
// zero time removes the deadline.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
