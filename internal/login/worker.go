// Package login runs the admission handshake: accept raw TCP connections,
// require a login or listen frame before anything else, and hand finished
// clients to the event loop. It owns the listener and its pending-connection
// list exclusively; the only thing it shares with the rest of the server is
// the one-way admissions channel.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kstaniek/go-chat-server/internal/connio"
	"github.com/kstaniek/go-chat-server/internal/logging"
	"github.com/kstaniek/go-chat-server/internal/metrics"
	"github.com/kstaniek/go-chat-server/internal/protocol"
)

const (
	defaultTick            = 50 * time.Millisecond
	defaultMaxAge          = 200 // ~10s at defaultTick
	defaultAdmissionBuffer = 256
)

// Admission is a finished candidate handed off to the event loop. Name is
// nil for a passive listener.
type Admission struct {
	Conn *connio.Conn
	Name *string
}

type incomingConn struct {
	conn *connio.Conn
	age  int
}

// Worker accepts connections on a fixed port and runs the login handshake.
type Worker struct {
	mu         sync.RWMutex
	addr       string
	tick       time.Duration
	maxAge     int
	maxNameLen int
	logger     *slog.Logger

	admissions chan Admission
	readyCh    chan struct{}
	readyOnce  sync.Once
	errCh      chan error

	incoming []*incomingConn
}

type WorkerOption func(*Worker)

func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		tick:       defaultTick,
		maxAge:     defaultMaxAge,
		logger:     logging.L(),
		admissions: make(chan Admission, defaultAdmissionBuffer),
		readyCh:    make(chan struct{}),
		errCh:      make(chan error, 1),
	}
	for _, o := range opts {
		o(w)
	}
	if w.addr == "" {
		w.addr = ":6447"
	}
	return w
}

func WithListenAddr(a string) WorkerOption { return func(w *Worker) { w.addr = a } }
func WithTick(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.tick = d
		}
	}
}
func WithMaxAge(ticks int) WorkerOption {
	return func(w *Worker) {
		if ticks > 0 {
			w.maxAge = ticks
		}
	}
}
func WithMaxNameLen(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxNameLen = n
		}
	}
}
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}
func WithAdmissionBuffer(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.admissions = make(chan Admission, n)
		}
	}
}

// Admissions is the one-way queue the event loop drains each tick.
func (w *Worker) Admissions() <-chan Admission { return w.admissions }

// Ready closes once the listener is bound.
func (w *Worker) Ready() <-chan struct{} { return w.readyCh }

// Errors surfaces fatal listener errors; Run still returns them directly.
func (w *Worker) Errors() <-chan error { return w.errCh }

func (w *Worker) Addr() string { w.mu.RLock(); defer w.mu.RUnlock(); return w.addr }

func (w *Worker) setAddr(a string) { w.mu.Lock(); w.addr = a; w.mu.Unlock() }

func (w *Worker) setError(err error) {
	select {
	case w.errCh <- err:
	default:
	}
}

// Run binds the listener and ticks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.Addr())
	if err != nil {
		wrap := fmt.Errorf("login: listen: %w", err)
		w.setError(wrap)
		return wrap
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("login: not a TCP listener: %T", ln)
	}
	defer tcpLn.Close()

	w.setAddr(tcpLn.Addr().String())
	w.readyOnce.Do(func() { close(w.readyCh) })
	w.logger.Info("login_listen", "addr", w.Addr())

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("login_stop")
			return nil
		case <-ticker.C:
			w.tickOnce(ctx, tcpLn)
		}
	}
}

// tickOnce runs one accept + try_login pass over the incoming list.
func (w *Worker) tickOnce(ctx context.Context, ln *net.TCPListener) {
	w.acceptPending(ln)

	remaining := w.incoming[:0]
	for _, ic := range w.incoming {
		if adm := w.tryLogin(ic); adm != nil {
			metrics.IncLoginResult("admitted")
			select {
			case w.admissions <- *adm:
			case <-ctx.Done():
				ic.conn.Close()
				return
			}
			continue
		}
		if !ic.conn.Alive() {
			continue
		}
		ic.age++
		if ic.age > w.maxAge {
			ic.conn.Close()
			metrics.IncLoginResult("timeout")
			continue
		}
		remaining = append(remaining, ic)
	}
	w.incoming = remaining
	metrics.SetPendingLogins(len(w.incoming))
}

// acceptPending drains every connection the kernel already has queued,
// without blocking waiting for more to arrive.
func (w *Worker) acceptPending(ln *net.TCPListener) {
	for {
		if err := ln.SetDeadline(time.Now()); err != nil {
			return
		}
		raw, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				w.logger.Warn("login_accept_error", "error", err)
			}
			return
		}
		c, err := connio.Accept(raw)
		if err != nil {
			w.logger.Warn("login_wrap_error", "error", err)
			_ = raw.Close()
			continue
		}
		w.incoming = append(w.incoming, &incomingConn{conn: c})
	}
}

// tryLogin evaluates the single pending frame, if any, for one incoming
// connection and returns a candidate admission, or nil if none is ready yet
// (no frame, or the frame was answered with an error and the connection
// stays pending).
func (w *Worker) tryLogin(ic *incomingConn) *Admission {
	if !ic.conn.Alive() {
		return nil
	}
	fr, ok := ic.conn.Poll()
	if !ok {
		return nil
	}
	switch fr.Command {
	case "login":
		req, err := protocol.ParseRequest(fr)
		if err != nil {
			ic.conn.Send(protocol.ErrorResponse(err).Frame())
			return nil
		}
		if req.Name == "" {
			ic.conn.Send(protocol.Err("please provide a name").Frame())
			return nil
		}
		if w.maxNameLen > 0 && len(req.Name) > w.maxNameLen {
			ic.conn.Send(protocol.Err("name too long").Frame())
			return nil
		}
		name := req.Name
		return &Admission{Conn: ic.conn, Name: &name}
	case "listen":
		return &Admission{Conn: ic.conn, Name: nil}
	default:
		ic.conn.Send(protocol.Err("please login first").Frame())
		return nil
	}
}
