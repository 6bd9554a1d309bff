package protocol

// RespKind tags the shape of a Response.
type RespKind int

const (
	RespAck RespKind = iota
	RespErr
	RespInfo
	RespMsg
)

// Response is the server's reply to a Request, or an asynchronous push.
// It is classified "bad" iff Kind == RespErr; bad responses cost the
// originating client an offense.
type Response struct {
	Kind    RespKind
	Reason  string   // RespErr
	Data    []string // RespInfo
	Channel string   // RespMsg
	Sender  string   // RespMsg
	Body    string   // RespMsg
}

// Ack builds a successful, dataless response.
func Ack() Response { return Response{Kind: RespAck} }

// Err builds a failure response carrying a free-form reason.
func Err(reason string) Response { return Response{Kind: RespErr, Reason: reason} }

// Info builds a successful response carrying a payload.
func Info(data ...string) Response { return Response{Kind: RespInfo, Data: data} }

// Msg builds an asynchronous push. channel is "__direct"
// (chatserver.DirectChannel) for DMs.
func Msg(channel, sender, body string) Response {
	return Response{Kind: RespMsg, Channel: channel, Sender: sender, Body: body}
}

// IsBad reports whether the response counts against the recipient's offenses.
func (r Response) IsBad() bool { return r.Kind == RespErr }

// Frame renders the response onto the wire.
func (r Response) Frame() Frame {
	switch r.Kind {
	case RespAck:
		return Frame{Command: "ack"}
	case RespErr:
		return Frame{Command: "err", Args: []string{r.Reason}}
	case RespInfo:
		return Frame{Command: "info", Args: r.Data}
	case RespMsg:
		return Frame{Command: "msg", Args: []string{r.Channel, r.Sender, r.Body}}
	default:
		return Frame{Command: "err", Args: []string{"internal error: unknown response kind"}}
	}
}

// ParseResponse lifts a decoded frame back into a Response, the inverse of
// Response.Frame. The server itself never calls it.
func ParseResponse(f Frame) (Response, bool) {
	switch f.Command {
	case "ack":
		return Ack(), true
	case "err":
		if len(f.Args) < 1 {
			return Response{}, false
		}
		return Err(f.Args[0]), true
	case "info":
		return Info(f.Args...), true
	case "msg":
		if len(f.Args) != 3 {
			return Response{}, false
		}
		return Msg(f.Args[0], f.Args[1], f.Args[2]), true
	default:
		return Response{}, false
	}
}
