package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/wydcore/server/internal/protocol"
	"github.com/wydcore/server/internal/session"
)

const receiveChunkSize = 4096

// receivePollInterval and sendPollInterval pace the shared receive/send
// loops' sweeps over every active session. Per spec §4.3 these are single
// tasks servicing all connections, not one goroutine per connection, so a
// short poll interval stands in for "woken by the runtime scheduler on
// readability" without a per-connection blocking read.
const (
	receivePollInterval = 10 * time.Millisecond
	sendPollInterval    = 10 * time.Millisecond
)

// statsLogEveryTicks paces periodic traffic-counter logging to once per
// 30 maintenance ticks (~30s at the default 1s tick) rather than every
// tick.
const statsLogEveryTicks = 30

// receiveLoop is the single shared task that services every session's
// inbound side: each tick, it sweeps the registry and, for each active
// session, reads whatever is available and drains complete frames
// (SPEC_FULL.md §4.3 "for each active session, call receive then
// repeatedly read_message until WouldBlock").
func (s *Server) receiveLoop(ctx context.Context) {
	ticker := time.NewTicker(receivePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.IterActive(s.pollReceive)
		}
	}
}

// pollReceive drains as many complete frames as are currently available
// on sess's connection without blocking, stopping at the first read that
// would otherwise block (spec's WouldBlock).
func (s *Server) pollReceive(sess *session.Session) {
	select {
	case <-sess.Closed():
		return
	default:
	}

	conn := sess.Conn()
	chunk := make([]byte, receiveChunkSize)
	for {
		conn.SetReadDeadline(time.Now())
		n, err := conn.Read(chunk)
		if n > 0 {
			sess.Touch(time.Now())
			sess.AddBytesIn(n)

			existing := sess.RecvBuf(0)
			buf := append(sess.RecvBuf(len(existing)+n), chunk[:n]...)
			sess.SetRecvBuf(buf)

			consumed := s.drainFrames(sess, buf)
			if consumed > 0 {
				remaining := append([]byte(nil), buf[consumed:]...)
				sess.SetRecvBuf(remaining)
			}
		}
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				sess.Close()
				return
			}
			slog.Warn("server: read failed, closing session", "session", sess.ID(), "error", err)
			sess.Close()
			return
		}
		if n == 0 {
			return
		}
	}
}

// isWouldBlock reports whether err is the "no data ready right now"
// outcome of a zero-deadline read — the stand-in WouldBlock signal for a
// poll-style receive loop built on net.Conn instead of a raw non-blocking
// socket.
func isWouldBlock(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// drainFrames parses as many complete frames as are present in buf,
// dispatching each, and returns the total number of bytes consumed.
func (s *Server) drainFrames(sess *session.Session, buf []byte) int {
	total := 0
	for {
		frame, n, err := protocol.Parse(buf[total:], sess.RecvRing())
		if err != nil {
			switch {
			case errors.Is(err, protocol.ErrWouldBlock):
				return total
			case errors.Is(err, protocol.ErrCorruptPacket), errors.Is(err, protocol.ErrInvalidKeyword):
				slog.Warn("server: dropping malformed frame", "session", sess.ID(), "error", err)
				total += n
				continue
			default:
				slog.Warn("server: frame parse error", "session", sess.ID(), "error", err)
				return total
			}
		}

		sess.AddPacketIn()
		if err := s.dispatcher.Process(sess, frame.Command, frame.Payload); err != nil {
			slog.Debug("server: dispatch failed", "session", sess.ID(), "command", frame.Command, "error", err)
		}
		total += n
	}
}

// sendLoop is the single shared task that services every session's
// outbound side: each tick, for every session with a non-empty queue it
// pops exactly one frame and writes it (spec §4.3 "pop one frame and call
// flush"), rather than draining the whole queue in one sweep.
func (s *Server) sendLoop(ctx context.Context) {
	ticker := time.NewTicker(sendPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.IterActive(s.pollSend)
		}
	}
}

func (s *Server) pollSend(sess *session.Session) {
	select {
	case frame, ok := <-sess.SendQueue():
		if !ok {
			return
		}
		sess.Conn().SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := sess.Conn().Write(frame); err != nil {
			slog.Debug("server: write failed, closing session", "session", sess.ID(), "error", err)
			sess.Close()
			return
		}
		sess.AddBytesOut(len(frame))
		sess.AddPacketOut()
	default:
	}
}

// maintenanceLoop is the single shared task that, every tick, enforces
// the idle timeout and keepalive schedule for every active session
// (SPEC_FULL.md seed scenario 5) and finalizes sessions any other loop
// has already marked Closing.
func (s *Server) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(maintenanceTick)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ticks++
			logSummary := ticks%statsLogEveryTicks == 0
			s.registry.IterActive(func(sess *session.Session) {
				s.maintainSession(sess, now, logSummary)
			})
		}
	}
}

// maintainSession finalizes sess if it was already closed by the
// receive/send loops, otherwise enforces its idle timeout and keepalive
// schedule.
func (s *Server) maintainSession(sess *session.Session, now time.Time, logSummary bool) {
	select {
	case <-sess.Closed():
		s.finalizeSession(sess)
		return
	default:
	}

	idle := sess.Idle(now)
	if idle >= s.idleTimeout {
		slog.Info("server: closing idle session", "session", sess.ID(), "idle", idle)
		sess.Close()
		sess.Conn().Close()
		s.finalizeSession(sess)
		return
	}
	if idle >= s.pingInterval && !sess.Pinged() {
		s.sendKeepalive(sess)
		sess.SetPinged(true)
	}
	if idle < s.pingInterval {
		sess.SetPinged(false)
	}

	if logSummary {
		sess.LogSummary()
	}
}

// finalizeSession removes a Closing session from the registry and drops
// its dispatcher-side rate-limit bookkeeping. Called from the
// maintenance loop once any loop has observed the session is done — there
// is no dedicated per-connection goroutine left to do this inline after a
// blocking I/O call returns, since none of the three loops are
// per-connection anymore.
func (s *Server) finalizeSession(sess *session.Session) {
	s.registry.Close(sess)
	s.dispatcher.ForgetSession(sess.ID())
}

func (s *Server) sendKeepalive(sess *session.Session) {
	buf := make([]byte, protocol.HeaderSize)
	n, err := protocol.Encode(buf, protocol.CmdAuthKeepAlive, 0, nil, sess.SendRing())
	if err != nil {
		slog.Warn("server: keepalive encode failed", "session", sess.ID(), "error", err)
		return
	}
	if err := sess.Enqueue(buf[:n]); err != nil {
		slog.Debug("server: keepalive enqueue failed", "session", sess.ID(), "error", err)
	}
}
