// Package connio wraps a TCP connection with the non-blocking,
// partial-frame-reassembling I/O the chat protocol needs: poll for a frame
// without ever parking the calling goroutine, and track liveness so the
// caller never has to special-case a half-dead socket.
//
// Go's net.Conn has no portable "try to read, tell me if nothing is ready"
// primitive at this level - the usual idiomatic shortcut is
// SetReadDeadline(time.Now()), but that folds real timeouts and
// "no data yet" into the same error value. Since the chat protocol's
// poll/wait split depends on distinguishing those two cases exactly, Conn
// reaches under net.TCPConn via SyscallConn and issues the read/write
// syscalls itself through golang.org/x/sys/unix.
package connio

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-chat-server/internal/protocol"
)

// ScratchSize is the fixed-size read buffer per spec section 3.
const ScratchSize = 256

// errWouldBlock signals "no data available right now", the Go analogue of
// the reference implementation's io::ErrorKind::WouldBlock. It is never
// returned to callers; Poll/Send translate it into "nothing happened" or
// "connection still alive, try later".
var errWouldBlock = errors.New("connio: would block")

// Conn is a non-blocking wrapper around one TCP endpoint.
type Conn struct {
	id      uuid.UUID
	tcp     *net.TCPConn
	raw     syscall.RawConn
	scratch [ScratchSize]byte
	partial []byte
	alive   atomic.Bool
}

// Dial connects to addr and returns a ready Conn.
func Dial(addr string) (*Conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newConn(c.(*net.TCPConn))
}

// Accept wraps an already-accepted TCP connection.
func Accept(c net.Conn) (*Conn, error) {
	tcp, ok := c.(*net.TCPConn)
	if !ok {
		return nil, fmt.Errorf("connio: not a TCP connection: %T", c)
	}
	return newConn(tcp)
}

func newConn(tcp *net.TCPConn) (*Conn, error) {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("connio: syscall conn: %w", err)
	}
	c := &Conn{id: uuid.New(), tcp: tcp, raw: raw}
	c.alive.Store(true)
	return c, nil
}

// ID is a per-connection identifier used only for log correlation.
func (c *Conn) ID() uuid.UUID { return c.id }

// Alive reports whether the connection is still usable. Once false it
// never becomes true again.
func (c *Conn) Alive() bool { return c.alive.Load() }

func (c *Conn) die() {
	if c.alive.CompareAndSwap(true, false) {
		_ = c.tcp.Close()
	}
}

// rawRead issues a single non-blocking read syscall against the
// underlying fd, bypassing the runtime netpoller so EAGAIN surfaces
// immediately instead of parking the goroutine.
func (c *Conn) rawRead(buf []byte) (int, error) {
	var n int
	var callErr error
	ctlErr := c.raw.Control(func(fd uintptr) {
		n, callErr = unix.Read(int(fd), buf)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	if callErr != nil {
		if errors.Is(callErr, unix.EAGAIN) || errors.Is(callErr, unix.EWOULDBLOCK) {
			return 0, errWouldBlock
		}
		return 0, callErr
	}
	return n, nil
}

// rawWrite pushes buf out with plain write(2) calls, advancing past short
// writes, but - matching spec section 4.2 - never waits for the socket to
// become writable. A WouldBlock here is a fatal error like any other: the
// transport assumes a healthy socket or drops it, it does not retry.
func (c *Conn) rawWrite(buf []byte) (int, error) {
	total := 0
	for len(buf) > 0 {
		var n int
		var callErr error
		ctlErr := c.raw.Control(func(fd uintptr) {
			n, callErr = unix.Write(int(fd), buf)
		})
		if ctlErr != nil {
			return total, ctlErr
		}
		if callErr != nil {
			if errors.Is(callErr, unix.EAGAIN) || errors.Is(callErr, unix.EWOULDBLOCK) {
				return total, errWouldBlock
			}
			return total, callErr
		}
		if n == 0 {
			return total, fmt.Errorf("connio: short write with no progress")
		}
		total += n
		buf = buf[n:]
	}
	return total, nil
}

// Send serializes and writes fr. Any error - including the socket not
// being immediately writable - marks the connection dead; the write is
// never retried. Writes on a dead connection are silent no-ops.
func (c *Conn) Send(fr protocol.Frame) {
	if !c.Alive() {
		return
	}
	if _, err := c.rawWrite(fr.Encode()); err != nil {
		c.die()
	}
}

// Poll performs one non-blocking read pass and returns at most one decoded
// frame. It never parks the calling goroutine: a WouldBlock result from
// the kernel is not an error, just "nothing yet". Any other read error, or
// a zero-length read, marks the connection dead.
func (c *Conn) Poll() (protocol.Frame, bool) {
	if !c.Alive() {
		return protocol.Frame{}, false
	}
	for {
		n, err := c.rawRead(c.scratch[:])
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				break
			}
			c.die()
			return protocol.Frame{}, false
		}
		if n == 0 {
			c.die()
			return protocol.Frame{}, false
		}
		// Substitute invalid UTF-8 with U+FFFD before it ever reaches the
		// frame buffer, the way the wire contract requires. The framing
		// delimiters are single-byte ASCII, so this never disturbs them.
		c.partial = append(c.partial, strings.ToValidUTF8(string(c.scratch[:n]), "�")...)
		if n < ScratchSize {
			break
		}
	}
	idx := bytes.IndexByte(c.partial, protocol.ETX)
	if idx < 0 {
		return protocol.Frame{}, false
	}
	raw := c.partial[:idx+1]
	rest := append([]byte(nil), c.partial[idx+1:]...)
	frame, ok := protocol.DecodeFrame(raw)
	c.partial = rest
	return frame, ok
}

// Wait polls at a 5ms cadence until a frame arrives or the connection
// dies. Used by test tooling and nothing on the server's hot path (the
// event loop never blocks).
func (c *Conn) Wait() (protocol.Frame, bool) {
	for c.Alive() {
		if fr, ok := c.Poll(); ok {
			return fr, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return protocol.Frame{}, false
}

// Close marks the connection dead and releases the socket.
func (c *Conn) Close() { c.die() }

// RemoteAddr exposes the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr { return c.tcp.RemoteAddr() }
