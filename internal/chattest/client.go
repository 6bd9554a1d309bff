// Package chattest is a minimal scriptable wire client used by
// integration tests to drive a running chat server over real loopback
// TCP. It is not the interactive client program (prompts, help text, name
// suggestions) - those stay out of scope - just enough to dial, send
// frames, and assert on what comes back.
package chattest

import (
	"testing"
	"time"

	"github.com/kstaniek/go-chat-server/internal/connio"
	"github.com/kstaniek/go-chat-server/internal/protocol"
)

// Client wraps a connio.Conn with test-friendly assertions.
type Client struct {
	t    *testing.T
	conn *connio.Conn
}

// Dial connects to addr.
func Dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := connio.Dial(addr)
	if err != nil {
		t.Fatalf("chattest: dial %s: %v", addr, err)
	}
	return &Client{t: t, conn: c}
}

// Login dials addr and completes a named login, failing the test unless
// the server acks.
func Login(t *testing.T, addr, name string) *Client {
	t.Helper()
	c := Dial(t, addr)
	c.Send("login", name)
	c.Expect("ack")
	return c
}

// Listen dials addr and completes a passive admission.
func Listen(t *testing.T, addr string) *Client {
	t.Helper()
	c := Dial(t, addr)
	c.Send("listen")
	c.Expect("ack")
	return c
}

// Send encodes and writes a frame.
func (c *Client) Send(command string, args ...string) {
	c.t.Helper()
	c.conn.Send(protocol.NewFrame(command, args...))
}

// Expect waits (5ms cadence, same as Wait) for the next frame and asserts
// its command, returning its args.
func (c *Client) Expect(command string) []string {
	c.t.Helper()
	fr, ok := c.conn.Wait()
	if !ok {
		c.t.Fatalf("chattest: connection died waiting for %q", command)
	}
	if fr.Command != command {
		c.t.Fatalf("chattest: got frame %+v, want command %q", fr, command)
	}
	return fr.Args
}

// ExpectErr asserts the next frame is an err with the given reason.
func (c *Client) ExpectErr(reason string) {
	c.t.Helper()
	args := c.Expect("err")
	if len(args) != 1 || args[0] != reason {
		c.t.Fatalf("chattest: got err %v, want reason %q", args, reason)
	}
}

// Drain polls for the whole of within, discarding every frame that arrives,
// useful to clear unread pushes between assertions. Returns how many it
// discarded.
func (c *Client) Drain(within time.Duration) int {
	c.t.Helper()
	deadline := time.Now().Add(within)
	n := 0
	for time.Now().Before(deadline) {
		if _, ok := c.conn.Poll(); ok {
			n++
			continue
		}
		time.Sleep(time.Millisecond)
	}
	return n
}

// Alive reports whether the underlying connection is still usable.
func (c *Client) Alive() bool { return c.conn.Alive() }

// Close releases the connection.
func (c *Client) Close() { c.conn.Close() }
