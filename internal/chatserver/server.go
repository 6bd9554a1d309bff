// Package chatserver owns the event loop: the single-threaded, lock-free
// authority over clients, channels, offenses and blocks. Nothing outside
// Run's own goroutine ever touches this state; the only door in is the
// admissions channel fed by internal/login.
package chatserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/kstaniek/go-chat-server/internal/logging"
	"github.com/kstaniek/go-chat-server/internal/login"
	"github.com/kstaniek/go-chat-server/internal/metrics"
	"github.com/kstaniek/go-chat-server/internal/protocol"
)

const (
	defaultTick    = 5 * time.Millisecond
	defaultBanner  = "chat-server"
	defaultVersion = "dev"
)

var defaultFeatures = []string{"basic", "direct", "channels", "offenses"}

// Server is the authoritative chat state and its tick loop.
type Server struct {
	admissions <-chan login.Admission
	tick       time.Duration
	logger     *slog.Logger
	banner     string
	features   []string
	malformed  *logging.Sometimes

	active   map[string]*client
	passive  []*client
	channels map[string]*channel
}

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		tick:     defaultTick,
		logger:   logging.L(),
		banner:   defaultBanner + " " + defaultVersion,
		features: append([]string(nil), defaultFeatures...),
		active:   make(map[string]*client),
		channels: make(map[string]*channel),
	}
	s.channels[GlobalChannel] = newChannel(GlobalChannel, "")
	s.malformed = logging.NewSometimesEvery(20)
	for _, o := range opts {
		o(s)
	}
	return s
}

func WithAdmissions(ch <-chan login.Admission) ServerOption {
	return func(s *Server) { s.admissions = ch }
}
func WithTick(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.tick = d
		}
	}
}
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
func WithBanner(banner string) ServerOption {
	return func(s *Server) {
		if banner != "" {
			s.banner = banner
		}
	}
}
func WithFeatures(features []string) ServerOption {
	return func(s *Server) {
		if len(features) > 0 {
			s.features = features
		}
	}
}

// Run ticks until ctx is canceled. It never blocks on connection I/O; the
// only suspension point is the tick ticker itself.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			s.tickOnce()
			metrics.ObserveTick(time.Since(start).Seconds())
		}
	}
}

// tickOnce runs the five phases from collect-new-clients through prune.
func (s *Server) tickOnce() {
	s.collectNewClients()
	pendings := s.collectRequests()
	s.dispatchAll(pendings)
	s.fanout()
	s.prune()
}

func (s *Server) collectNewClients() {
	if s.admissions == nil {
		return
	}
	for {
		select {
		case adm, ok := <-s.admissions:
			if !ok {
				return
			}
			s.admitOne(adm)
		default:
			return
		}
	}
}

func (s *Server) admitOne(adm login.Admission) {
	if adm.Name == nil {
		c := newClient(adm.Conn, "", true)
		s.passive = append(s.passive, c)
		c.conn.Send(protocol.Ack().Frame())
		metrics.SetPassiveClients(len(s.passive))
		return
	}
	name := *adm.Name
	if _, exists := s.active[name]; exists {
		adm.Conn.Send(protocol.Err("name already used").Frame())
		adm.Conn.Close()
		return
	}
	c := newClient(adm.Conn, name, false)
	s.active[name] = c
	c.conn.Send(protocol.Ack().Frame())
	s.channels[GlobalChannel].addMember(name)
	metrics.SetActiveClients(len(s.active))
}

type pending struct {
	client *client
	req    protocol.Request
}

// collectRequests drains every pollable frame from every active
// connection. A parse failure is answered immediately and charged as an
// offense right here rather than stashed for dispatch.
func (s *Server) collectRequests() []pending {
	var out []pending
	for _, c := range s.active {
		for {
			fr, ok := c.conn.Poll()
			if !ok {
				break
			}
			req, err := protocol.ParseRequest(fr)
			if err != nil {
				s.reply(c, protocol.ErrorResponse(err))
				metrics.IncMalformed()
				s.malformed.Do(func() {
					s.logger.Warn("malformed_frame", "client", c.name, "error", err)
				})
				continue
			}
			out = append(out, pending{client: c, req: req})
		}
	}
	// Passive listeners send no requests worth honoring, but their buffer
	// still needs draining so a chatty client doesn't grow partial forever.
	for _, c := range s.passive {
		for {
			if _, ok := c.conn.Poll(); !ok {
				break
			}
		}
	}
	return out
}

// dispatchAll processes stashed requests in collection order, replying to
// each originator exactly once.
func (s *Server) dispatchAll(pendings []pending) {
	for _, p := range pendings {
		resp := s.respond(p.client, p.req)
		s.reply(p.client, resp)
	}
}

func (s *Server) reply(c *client, resp protocol.Response) {
	c.conn.Send(resp.Frame())
	if resp.IsBad() {
		c.offenses++
		metrics.IncOffense()
	}
}

// fanout drains every channel's message queue to its current membership,
// plus passive listeners for GLOBAL only.
func (s *Server) fanout() {
	for _, ch := range s.channels {
		if len(ch.queue) == 0 {
			continue
		}
		for _, m := range ch.queue {
			frame := protocol.Msg(ch.name, m.sender, m.body).Frame()
			for _, memberName := range ch.members {
				if c, ok := s.active[memberName]; ok {
					c.conn.Send(frame)
				}
			}
			if ch.name == GlobalChannel {
				for _, p := range s.passive {
					p.conn.Send(frame)
				}
			}
		}
		ch.queue = ch.queue[:0]
	}
}

// prune drops dead or over-offense clients, dead passive listeners, and
// empty non-GLOBAL channels.
func (s *Server) prune() {
	for name, c := range s.active {
		kicked := c.offenses >= MaxOffenses
		if kicked || !c.conn.Alive() {
			if kicked {
				s.logger.Info("client_kicked", "name", name, "conn_id", c.id, "offenses", c.offenses)
				metrics.IncKicked()
			}
			c.conn.Close()
			delete(s.active, name)
		}
	}

	alivePassive := s.passive[:0]
	for _, p := range s.passive {
		if p.conn.Alive() {
			alivePassive = append(alivePassive, p)
		} else {
			p.conn.Close()
		}
	}
	s.passive = alivePassive

	for name, ch := range s.channels {
		kept := ch.members[:0]
		for _, m := range ch.members {
			if _, ok := s.active[m]; ok {
				kept = append(kept, m)
			}
		}
		ch.members = kept
		if name != GlobalChannel && len(ch.members) == 0 {
			delete(s.channels, name)
		}
	}

	metrics.SetActiveClients(len(s.active))
	metrics.SetPassiveClients(len(s.passive))
	metrics.SetChannels(len(s.channels))
}
