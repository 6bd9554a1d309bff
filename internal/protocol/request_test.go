package protocol

import (
	"errors"
	"testing"
)

func TestParseRequestKnownCommands(t *testing.T) {
	cases := []struct {
		frame Frame
		kind  Kind
	}{
		{NewFrame("login", "alice"), KindLogin},
		{NewFrame("listen"), KindListen},
		{NewFrame("ping"), KindPing},
		{NewFrame("post", "", "hi"), KindPost},
		{NewFrame("send", "bob", "hi"), KindSend},
		{NewFrame("names", "general"), KindNames},
		{NewFrame("about"), KindAbout},
		{NewFrame("features"), KindFeatures},
		{NewFrame("new_channel", "secret", "pw"), KindNewChannel},
		{NewFrame("list_channels"), KindListChannels},
		{NewFrame("subscribe", "secret", "pw"), KindSubscribe},
		{NewFrame("unsubscribe", "secret"), KindUnsubscribe},
		{NewFrame("block", "bob"), KindBlock},
		{NewFrame("unblock", "bob"), KindUnblock},
		{NewFrame("offenses"), KindOffenses},
		{NewFrame("pardon", "bob"), KindPardon},
	}
	for _, c := range cases {
		req, err := ParseRequest(c.frame)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.frame.Command, err)
			continue
		}
		if req.Kind != c.kind {
			t.Errorf("%s: got kind %v want %v", c.frame.Command, req.Kind, c.kind)
		}
	}
}

func TestParseRequestUnknownCommand(t *testing.T) {
	_, err := ParseRequest(NewFrame("frobnicate"))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("got %v", err)
	}
}

func TestParseRequestMissingArgs(t *testing.T) {
	_, err := ParseRequest(NewFrame("post", "onlyone"))
	if !errors.Is(err, ErrMissingArgs) {
		t.Fatalf("got %v", err)
	}
}

func TestParseRequestInvalidIdent(t *testing.T) {
	_, err := ParseRequest(NewFrame("login", "not a name!"))
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("got %v", err)
	}
}

func TestParseRequestEmptyChannelIsGlobal(t *testing.T) {
	req, err := ParseRequest(NewFrame("names", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Channel != "" {
		t.Errorf("got %q", req.Channel)
	}
}

func TestParseRequestEmptyLoginNamePasses(t *testing.T) {
	// Identifier check is vacuously true for "" - the login worker, not the
	// parser, is responsible for rejecting an empty login name.
	req, err := ParseRequest(NewFrame("login", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Name != "" {
		t.Errorf("got %q", req.Name)
	}
}
