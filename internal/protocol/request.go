package protocol

import (
	"errors"
	"fmt"
)

// Kind tags which request a decoded frame carries.
type Kind int

const (
	KindLogin Kind = iota
	KindListen
	KindPing
	KindPost
	KindSend
	KindNames
	KindAbout
	KindFeatures
	KindNewChannel
	KindListChannels
	KindSubscribe
	KindUnsubscribe
	KindBlock
	KindUnblock
	KindOffenses
	KindPardon
)

// Request is a typed, validated interpretation of a client frame. Only the
// fields relevant to Kind are populated; see the command table in spec
// section 4.3 for the argument shape of each command.
type Request struct {
	Kind Kind

	Name     string // login/send/block/unblock/pardon target
	Channel  string // post/names/new_channel/subscribe/unsubscribe
	Message  string // post/send body
	Password string // new_channel/subscribe
}

// Sentinel errors classifying a parse failure; wrap with the offending
// detail via fmt.Errorf("%w: ...", ErrX) so callers can errors.Is against
// them while still rendering a useful reason string.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArgs    = errors.New("missing arguments")
	ErrInvalidName    = errors.New("invalid name")
)

// ParseRequest lifts a decoded frame into a Request, or reports one of the
// three parse-failure sentinels above.
func ParseRequest(f Frame) (Request, error) {
	switch f.Command {
	case "login":
		args, err := expect(f, 1)
		if err != nil {
			return Request{}, err
		}
		name, err := checkIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindLogin, Name: name}, nil
	case "listen":
		return Request{Kind: KindListen}, nil
	case "ping":
		return Request{Kind: KindPing}, nil
	case "post":
		args, err := expect(f, 2)
		if err != nil {
			return Request{}, err
		}
		channel, err := checkChannelIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindPost, Channel: channel, Message: args[1]}, nil
	case "send":
		args, err := expect(f, 2)
		if err != nil {
			return Request{}, err
		}
		name, err := checkIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindSend, Name: name, Message: args[1]}, nil
	case "names":
		args, err := expect(f, 1)
		if err != nil {
			return Request{}, err
		}
		channel, err := checkChannelIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindNames, Channel: channel}, nil
	case "about":
		return Request{Kind: KindAbout}, nil
	case "features":
		return Request{Kind: KindFeatures}, nil
	case "new_channel":
		args, err := expect(f, 2)
		if err != nil {
			return Request{}, err
		}
		channel, err := checkChannelIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindNewChannel, Channel: channel, Password: args[1]}, nil
	case "list_channels":
		return Request{Kind: KindListChannels}, nil
	case "subscribe":
		args, err := expect(f, 2)
		if err != nil {
			return Request{}, err
		}
		channel, err := checkChannelIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindSubscribe, Channel: channel, Password: args[1]}, nil
	case "unsubscribe":
		args, err := expect(f, 1)
		if err != nil {
			return Request{}, err
		}
		channel, err := checkChannelIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindUnsubscribe, Channel: channel}, nil
	case "block":
		args, err := expect(f, 1)
		if err != nil {
			return Request{}, err
		}
		name, err := checkIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindBlock, Name: name}, nil
	case "unblock":
		args, err := expect(f, 1)
		if err != nil {
			return Request{}, err
		}
		name, err := checkIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindUnblock, Name: name}, nil
	case "offenses":
		return Request{Kind: KindOffenses}, nil
	case "pardon":
		args, err := expect(f, 1)
		if err != nil {
			return Request{}, err
		}
		name, err := checkIdent(args[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindPardon, Name: name}, nil
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, f.Command)
	}
}

// expect validates the frame carries exactly n arguments.
func expect(f Frame, n int) ([]string, error) {
	if len(f.Args) != n {
		return nil, fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrMissingArgs, f.Command, n, len(f.Args))
	}
	return f.Args, nil
}

// checkIdent validates a user-name identifier: ASCII alphanumeric or
// underscore only. The empty string passes; rejecting an empty name is
// left to the caller (the login worker answers "please provide a name").
func checkIdent(s string) (string, error) {
	for _, c := range []byte(s) {
		if !isIdentByte(c) {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, s)
		}
	}
	return s, nil
}

// checkChannelIdent is checkIdent except the empty string (GLOBAL) is
// always legal and bypasses the identifier check.
func checkChannelIdent(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return checkIdent(s)
}

func isIdentByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return true
	default:
		return false
	}
}

// ErrorResponse renders a ParseRequest failure into the Response the
// client should receive for it.
func ErrorResponse(err error) Response {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return Err(fmt.Sprintf("unknown command %q", unwrapDetail(err)))
	case errors.Is(err, ErrMissingArgs):
		return Err(err.Error())
	case errors.Is(err, ErrInvalidName):
		return Err("invalid name")
	default:
		return Err(err.Error())
	}
}

func unwrapDetail(err error) string {
	// fmt.Errorf("%w: %q", ErrUnknownCommand, cmd) renders as `unknown command: "cmd"`;
	// pull the quoted command back out for a terser client-facing message.
	s := err.Error()
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			return s[i+1 : len(s)-1]
		}
	}
	return s
}
