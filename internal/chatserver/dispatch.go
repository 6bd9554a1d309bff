package chatserver

import (
	"strconv"

	"github.com/kstaniek/go-chat-server/internal/metrics"
	"github.com/kstaniek/go-chat-server/internal/protocol"
)

// respond computes the single response a request yields, mutating chat
// state as a side effect. It never touches the caller's offense counter -
// reply (called from dispatchAll) does that uniformly for every bad response.
func (s *Server) respond(c *client, req protocol.Request) protocol.Response {
	switch req.Kind {
	case protocol.KindLogin, protocol.KindListen:
		return protocol.Err("already logged in")

	case protocol.KindPing:
		return protocol.Ack()

	case protocol.KindPost:
		ch, ok := s.channels[req.Channel]
		if !ok {
			return protocol.Err("channel doesn't exist")
		}
		if !ch.hasMember(c.name) {
			return protocol.Err("not subscribed to channel")
		}
		ch.queue = append(ch.queue, channelMessage{sender: c.name, body: req.Message})
		metrics.IncMessage(metrics.KindPost)
		return protocol.Ack()

	case protocol.KindSend:
		if c.isBlocking(req.Name) {
			return protocol.Err("user was blocked")
		}
		target, ok := s.active[req.Name]
		if !ok {
			return protocol.Err("user doesn't exist")
		}
		if target.isBlocking(c.name) {
			return protocol.Err("you were blocked by user")
		}
		target.conn.Send(protocol.Msg(DirectChannel, c.name, req.Message).Frame())
		metrics.IncMessage(metrics.KindSend)
		return protocol.Ack()

	case protocol.KindNames:
		ch, ok := s.channels[req.Channel]
		if !ok {
			return protocol.Err("channel doesn't exist")
		}
		if !ch.hasMember(c.name) {
			return protocol.Err("not subscribed to channel")
		}
		return protocol.Info(ch.members...)

	case protocol.KindAbout:
		return protocol.Info(s.banner)

	case protocol.KindFeatures:
		return protocol.Info(s.features...)

	case protocol.KindNewChannel:
		if req.Channel == DirectChannel {
			return protocol.Err("channel name reserved")
		}
		if _, exists := s.channels[req.Channel]; exists {
			return protocol.Err("channel exists already")
		}
		ch := newChannel(req.Channel, req.Password)
		ch.addMember(c.name)
		s.channels[req.Channel] = ch
		return protocol.Ack()

	case protocol.KindListChannels:
		names := make([]string, 0, len(s.channels))
		for name := range s.channels {
			names = append(names, name)
		}
		return protocol.Info(names...)

	case protocol.KindSubscribe:
		ch, ok := s.channels[req.Channel]
		if !ok {
			return protocol.Err("channel doesn't exist")
		}
		if ch.password != req.Password {
			return protocol.Err("wrong password")
		}
		if ch.hasMember(c.name) {
			return protocol.Err("already subscribed")
		}
		ch.addMember(c.name)
		return protocol.Ack()

	case protocol.KindUnsubscribe:
		ch, ok := s.channels[req.Channel]
		if !ok {
			return protocol.Err("channel doesn't exist")
		}
		if !ch.removeMember(c.name) {
			return protocol.Err("not subscribed to channel")
		}
		return protocol.Ack()

	case protocol.KindBlock:
		if _, ok := s.active[req.Name]; !ok {
			return protocol.Err("user doesn't exist")
		}
		if c.isBlocking(req.Name) {
			return protocol.Err("user already blocked")
		}
		c.blocked[req.Name] = struct{}{}
		return protocol.Ack()

	case protocol.KindUnblock:
		if !c.isBlocking(req.Name) {
			return protocol.Err("user wasn't blocked")
		}
		delete(c.blocked, req.Name)
		return protocol.Ack()

	case protocol.KindOffenses:
		return protocol.Info(strconv.Itoa(c.offenses), strconv.Itoa(MaxOffenses))

	case protocol.KindPardon:
		target, ok := s.active[req.Name]
		if !ok {
			return protocol.Err("user doesn't exist")
		}
		if target.offenses == 0 {
			return protocol.Err("user has no offenses")
		}
		target.offenses--
		return protocol.Ack()

	default:
		return protocol.Err("unknown command")
	}
}
