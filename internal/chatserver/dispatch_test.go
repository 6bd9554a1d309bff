package chatserver

import (
	"testing"

	"github.com/kstaniek/go-chat-server/internal/protocol"
)

func newTestServer() *Server {
	return NewServer()
}

func admitActive(s *Server, name string) *client {
	c := &client{name: name, blocked: map[string]struct{}{}, conn: nil}
	s.active[name] = c
	s.channels[GlobalChannel].addMember(name)
	return c
}

func TestRespondAbout(t *testing.T) {
	s := newTestServer()
	c := admitActive(s, "alice")
	resp := s.respond(c, protocol.Request{Kind: protocol.KindAbout})
	if resp.Kind != protocol.RespInfo || len(resp.Data) != 1 {
		t.Fatalf("got %+v", resp)
	}
}

func TestRespondFeatures(t *testing.T) {
	s := newTestServer()
	c := admitActive(s, "alice")
	resp := s.respond(c, protocol.Request{Kind: protocol.KindFeatures})
	if resp.Kind != protocol.RespInfo || len(resp.Data) == 0 {
		t.Fatalf("got %+v", resp)
	}
}

func TestRespondNewChannelRejectsDuplicate(t *testing.T) {
	s := newTestServer()
	c := admitActive(s, "alice")
	if resp := s.respond(c, protocol.Request{Kind: protocol.KindNewChannel, Channel: "room"}); !resp.IsBad() && resp.Kind != protocol.RespAck {
		t.Fatalf("got %+v", resp)
	}
	resp := s.respond(c, protocol.Request{Kind: protocol.KindNewChannel, Channel: "room"})
	if !resp.IsBad() || resp.Reason != "channel exists already" {
		t.Fatalf("got %+v", resp)
	}
}

func TestRespondNewChannelRejectsGlobalAndDirect(t *testing.T) {
	s := newTestServer()
	c := admitActive(s, "alice")
	resp := s.respond(c, protocol.Request{Kind: protocol.KindNewChannel, Channel: GlobalChannel})
	if !resp.IsBad() || resp.Reason != "channel exists already" {
		t.Fatalf("got %+v", resp)
	}
	resp = s.respond(c, protocol.Request{Kind: protocol.KindNewChannel, Channel: DirectChannel})
	if !resp.IsBad() || resp.Reason != "channel name reserved" {
		t.Fatalf("got %+v", resp)
	}
}

func TestRespondUnsubscribeRequiresMembership(t *testing.T) {
	s := newTestServer()
	c := admitActive(s, "alice")
	s.channels["room"] = newChannel("room", "")

	resp := s.respond(c, protocol.Request{Kind: protocol.KindUnsubscribe, Channel: "room"})
	if !resp.IsBad() || resp.Reason != "not subscribed to channel" {
		t.Fatalf("got %+v", resp)
	}

	s.channels["room"].addMember("alice")
	resp = s.respond(c, protocol.Request{Kind: protocol.KindUnsubscribe, Channel: "room"})
	if resp.Kind != protocol.RespAck {
		t.Fatalf("got %+v", resp)
	}
}

func TestRespondBlockUnblockRoundTrip(t *testing.T) {
	s := newTestServer()
	alice := admitActive(s, "alice")
	admitActive(s, "bob")

	resp := s.respond(alice, protocol.Request{Kind: protocol.KindBlock, Name: "bob"})
	if resp.Kind != protocol.RespAck {
		t.Fatalf("got %+v", resp)
	}
	resp = s.respond(alice, protocol.Request{Kind: protocol.KindBlock, Name: "bob"})
	if !resp.IsBad() || resp.Reason != "user already blocked" {
		t.Fatalf("got %+v", resp)
	}
	resp = s.respond(alice, protocol.Request{Kind: protocol.KindUnblock, Name: "bob"})
	if resp.Kind != protocol.RespAck {
		t.Fatalf("got %+v", resp)
	}
	resp = s.respond(alice, protocol.Request{Kind: protocol.KindUnblock, Name: "bob"})
	if !resp.IsBad() || resp.Reason != "user wasn't blocked" {
		t.Fatalf("got %+v", resp)
	}
}

func TestRespondListChannelsIncludesGlobal(t *testing.T) {
	s := newTestServer()
	c := admitActive(s, "alice")
	resp := s.respond(c, protocol.Request{Kind: protocol.KindListChannels})
	found := false
	for _, name := range resp.Data {
		if name == GlobalChannel {
			found = true
		}
	}
	if !found {
		t.Fatalf("got %+v, want GLOBAL included", resp.Data)
	}
}
