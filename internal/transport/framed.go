// Package transport wraps a stream connection so callers send and receive
// whole messages instead of bytes (spec §4.1).
//
// Framing: a 4-byte big-endian unsigned length N, followed by exactly N
// bytes of UTF-8 payload. This mirrors the teacher's per-peer receiver
// model (one task owns the socket, decodes whole frames) and the original
// Python Connection wrapper it is grounded on.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"unicode/utf8"

	"github.com/huntmesh/huntmesh/internal/domain"
)

const headerSize = 4

// Framed wraps a net.Conn with whole-message send/receive semantics.
// Receive is safe to call only from a single goroutine at a time (the
// receiver task owns it exclusively); Send is safe for concurrent callers.
type Framed struct {
	conn net.Conn

	sendMu sync.Mutex

	// Partial-read accumulation state. Reset to zero only once a full
	// frame has been delivered, per spec §4.1.
	readMu    sync.Mutex
	header    [headerSize]byte
	headerLen int
	bodyLen   uint32
	body      []byte
	bodyGot   int
}

// New wraps conn in a Framed transport.
func New(conn net.Conn) *Framed {
	return &Framed{conn: conn}
}

// Conn returns the underlying connection.
func (f *Framed) Conn() net.Conn { return f.conn }

// Close closes the underlying connection.
func (f *Framed) Close() error { return f.conn.Close() }

// Send writes one whole frame atomically. Blocks until the entire frame has
// been handed to the OS.
func (f *Framed) Send(payload string) error {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	data := []byte(payload)
	frame := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(data)))
	copy(frame[headerSize:], data)

	_, err := f.conn.Write(frame)
	return err
}

// Receive returns the next complete payload. Returns domain.ErrConnectionClosed
// when the peer shut down (including mid-frame), or domain.ErrBadEncoding if
// the payload bytes are not valid UTF-8.
func (f *Framed) Receive() (string, error) {
	f.readMu.Lock()
	defer f.readMu.Unlock()

	// Read the 4-byte length header, accumulating across short reads.
	for f.headerLen < headerSize {
		n, err := f.conn.Read(f.header[f.headerLen:])
		if n > 0 {
			f.headerLen += n
		}
		if err != nil {
			if err == io.EOF {
				return "", domain.ErrConnectionClosed
			}
			return "", fmt.Errorf("read header: %w", err)
		}
	}

	if f.body == nil {
		f.bodyLen = binary.BigEndian.Uint32(f.header[:])
		f.body = make([]byte, f.bodyLen)
		f.bodyGot = 0
	}

	for uint32(f.bodyGot) < f.bodyLen {
		n, err := f.conn.Read(f.body[f.bodyGot:])
		if n > 0 {
			f.bodyGot += n
		}
		if err != nil {
			if err == io.EOF {
				return "", domain.ErrConnectionClosed
			}
			return "", fmt.Errorf("read body: %w", err)
		}
	}

	payload := f.body
	f.resetLocked()

	if !utf8.Valid(payload) {
		return "", domain.ErrBadEncoding
	}
	return string(payload), nil
}

// resetLocked clears header/body accumulation state. Caller must hold readMu.
func (f *Framed) resetLocked() {
	f.headerLen = 0
	f.bodyLen = 0
	f.body = nil
	f.bodyGot = 0
}
