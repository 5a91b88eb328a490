// Package server orchestrates three long-running tasks — receive, send,
// and maintenance — each iterating the shared session registry once per
// tick, plus a dedicated accept loop (SPEC_FULL.md §4.1, §4.3: "one task
// per concern, not per connection").
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"log/slog"

	"github.com/wydcore/server/internal/dispatch"
	"github.com/wydcore/server/internal/session"
)

const (
	defaultIdleTimeout   = 5 * time.Minute
	defaultPingInterval  = 1 * time.Minute
	defaultSendQueueSize = 256
	maintenanceTick      = 1 * time.Second
)

// Server owns the listener and the shared receive/send/maintenance loops
// that service every session tracked by Registry.
type Server struct {
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher

	idleTimeout   time.Duration
	pingInterval  time.Duration
	sendQueueSize int

	listener net.Listener
}

// New builds a Server. Zero-value timeout/queue-size arguments fall back
// to SPEC_FULL.md §4.3 defaults (5 min idle timeout, 1 min ping
// interval, 256-frame send queue).
func New(registry *session.Registry, dispatcher *dispatch.Dispatcher, idleTimeout, pingInterval time.Duration, sendQueueSize int) *Server {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	return &Server{
		registry:      registry,
		dispatcher:    dispatcher,
		idleTimeout:   idleTimeout,
		pingInterval:  pingInterval,
		sendQueueSize: sendQueueSize,
	}
}

// Addr returns the listener's address, or nil before Run/Serve starts.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	s.listener = ln
	return s.Serve(ctx, ln)
}

// Serve starts the three shared session loops, then runs the accept loop
// against an already-open listener until ctx is cancelled. Accepting a
// connection only registers it with the Registry — no goroutine is spun
// up per connection; the shared loops pick it up on their next tick.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.runShared(ctx, "receive", s.receiveLoop)
	go s.runShared(ctx, "send", s.sendLoop)
	go s.runShared(ctx, "maintenance", s.maintenanceLoop)

	slog.Info("server listening", "address", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("accept failed", "error", err)
			continue
		}
		s.acceptConnection(conn)
	}
}

// runShared runs one of the shared loops for the server's lifetime,
// logging anything other than a clean ctx cancellation.
func (s *Server) runShared(ctx context.Context, name string, fn func(context.Context)) {
	fn(ctx)
	if ctx.Err() == nil {
		slog.Error("server: shared loop exited unexpectedly", "loop", name)
	}
}

// acceptConnection registers conn with the Registry. The session it
// returns is picked up by the shared receive/send/maintenance loops on
// their next tick — accept itself does no per-connection work beyond
// bookkeeping.
func (s *Server) acceptConnection(conn net.Conn) {
	sess, err := s.registry.Register(conn, s.sendQueueSize)
	if err != nil {
		slog.Warn("connection refused", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}
	sess.Touch(time.Now())
}
