package chatserver

import (
	"context"
	"testing"
	"time"

	"github.com/kstaniek/go-chat-server/internal/connio"
	"github.com/kstaniek/go-chat-server/internal/login"
	"github.com/kstaniek/go-chat-server/internal/protocol"
)

// harness wires a real login worker and event loop over loopback TCP, the
// same topology cmd/chat-server assembles, so tests exercise the actual
// admission hand-off rather than constructing clients in-process.
type harness struct {
	t      *testing.T
	worker *login.Worker
	server *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	w := login.NewWorker(
		login.WithListenAddr("127.0.0.1:0"),
		login.WithTick(3*time.Millisecond),
	)
	s := NewServer(
		WithAdmissions(w.Admissions()),
		WithTick(3*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	go func() { _ = s.Run(ctx) }()
	select {
	case <-w.Ready():
	case <-time.After(time.Second):
		t.Fatal("worker never became ready")
	}
	return &harness{t: t, worker: w, server: s}
}

func (h *harness) login(name string) *connio.Conn {
	h.t.Helper()
	c, err := connio.Dial(h.worker.Addr())
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	c.Send(protocol.NewFrame("login", name))
	expectFrame(h.t, c, "ack")
	return c
}

func expectFrame(t *testing.T, c *connio.Conn, command string) protocol.Frame {
	t.Helper()
	fr, ok := c.Wait()
	if !ok {
		t.Fatalf("connection died waiting for %q", command)
	}
	if fr.Command != command {
		t.Fatalf("got %+v, want command %q", fr, command)
	}
	return fr
}

func expectErr(t *testing.T, c *connio.Conn, reason string) {
	t.Helper()
	fr := expectFrame(t, c, "err")
	if len(fr.Args) != 1 || fr.Args[0] != reason {
		t.Fatalf("got err %+v, want reason %q", fr.Args, reason)
	}
}

func TestLoginAndPing(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	defer alice.Close()

	alice.Send(protocol.NewFrame("ping"))
	expectFrame(t, alice, "ack")

	alice.Send(protocol.NewFrame("offenses"))
	fr := expectFrame(t, alice, "info")
	if len(fr.Args) != 2 || fr.Args[0] != "0" || fr.Args[1] != "5" {
		t.Fatalf("got %+v", fr.Args)
	}
}

func TestGlobalPost(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	defer alice.Close()
	bob := h.login("bob")
	defer bob.Close()

	alice.Send(protocol.NewFrame("post", "", "hi"))
	expectFrame(t, alice, "ack")

	fr := expectFrame(t, bob, "msg")
	if fr.Args[0] != "" || fr.Args[1] != "alice" || fr.Args[2] != "hi" {
		t.Fatalf("got %+v", fr.Args)
	}
}

func TestPrivateChannelSubscribe(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	defer alice.Close()
	bob := h.login("bob")
	defer bob.Close()

	alice.Send(protocol.NewFrame("new_channel", "secret", "pw"))
	expectFrame(t, alice, "ack")

	bob.Send(protocol.NewFrame("subscribe", "secret", "wrong"))
	expectErr(t, bob, "wrong password")

	bob.Send(protocol.NewFrame("subscribe", "secret", "pw"))
	expectFrame(t, bob, "ack")

	alice.Send(protocol.NewFrame("post", "secret", "ping"))
	expectFrame(t, alice, "ack")

	fr := expectFrame(t, bob, "msg")
	if fr.Args[0] != "secret" || fr.Args[1] != "alice" || fr.Args[2] != "ping" {
		t.Fatalf("got %+v", fr.Args)
	}
}

func TestBlock(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	defer alice.Close()
	bob := h.login("bob")
	defer bob.Close()

	bob.Send(protocol.NewFrame("block", "alice"))
	expectFrame(t, bob, "ack")

	alice.Send(protocol.NewFrame("send", "bob", "hello"))
	expectErr(t, alice, "you were blocked by user")
}

func TestOffenseKick(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	defer alice.Close()

	for i := 0; i < MaxOffenses; i++ {
		alice.Send(protocol.NewFrame("post", "nope", "x"))
		expectErr(t, alice, "channel doesn't exist")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && alice.Alive() {
		alice.Poll()
		time.Sleep(3 * time.Millisecond)
	}
	if alice.Alive() {
		t.Fatal("expected connection to be kicked after 5 offenses")
	}
}

func TestPardonOfInnocentPenalizesPardoner(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	defer alice.Close()
	bob := h.login("bob")
	defer bob.Close()

	bob.Send(protocol.NewFrame("pardon", "alice"))
	expectErr(t, bob, "user has no offenses")

	bob.Send(protocol.NewFrame("offenses"))
	fr := expectFrame(t, bob, "info")
	if fr.Args[0] != "1" {
		t.Fatalf("got %+v, want pardoner charged one offense", fr.Args)
	}
}

func TestDuplicateSubscribeRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	defer alice.Close()

	alice.Send(protocol.NewFrame("new_channel", "room", ""))
	expectFrame(t, alice, "ack")

	alice.Send(protocol.NewFrame("subscribe", "room", ""))
	expectErr(t, alice, "already subscribed")
}
