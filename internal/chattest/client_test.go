package chattest

import (
	"context"
	"testing"
	"time"

	"github.com/kstaniek/go-chat-server/internal/chatserver"
	"github.com/kstaniek/go-chat-server/internal/login"
)

func startChatServer(t *testing.T) string {
	t.Helper()
	w := login.NewWorker(
		login.WithListenAddr("127.0.0.1:0"),
		login.WithTick(3*time.Millisecond),
	)
	s := chatserver.NewServer(
		chatserver.WithAdmissions(w.Admissions()),
		chatserver.WithTick(3*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	go func() { _ = s.Run(ctx) }()
	select {
	case <-w.Ready():
	case <-time.After(time.Second):
		t.Fatal("server never became ready")
	}
	return w.Addr()
}

func TestScriptedLoginPostAndListen(t *testing.T) {
	addr := startChatServer(t)

	alice := Login(t, addr, "alice")
	defer alice.Close()
	passive := Listen(t, addr)
	defer passive.Close()

	alice.Send("post", "", "hello everyone")
	alice.Expect("ack")

	args := passive.Expect("msg")
	if args[0] != "" || args[1] != "alice" || args[2] != "hello everyone" {
		t.Fatalf("got %v", args)
	}
}

func TestScriptedFeaturesAndAbout(t *testing.T) {
	addr := startChatServer(t)
	alice := Login(t, addr, "alice")
	defer alice.Close()

	alice.Send("features")
	if args := alice.Expect("info"); len(args) == 0 {
		t.Fatal("expected at least one feature tag")
	}

	alice.Send("about")
	if args := alice.Expect("info"); len(args) == 0 {
		t.Fatal("expected a banner")
	}
}
