package session

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wydcore/server/internal/protocol"
)

// Default send queue depth; overridden per-session by callers that know
// their own buffering requirements.
const DefaultSendQueueSize = 256

// Session is server-side state for one accepted TCP client, owned
// exclusively by the Registry. Handlers borrow a Session for the duration
// of a single dispatch (SPEC_FULL.md §3 Session).
type Session struct {
	id   uint32
	conn net.Conn

	remoteAddr string
	localAddr  string

	state atomic.Int32

	authenticated atomic.Bool

	mu          sync.Mutex
	accountID   *int64
	characterID *int64

	connectedAt  time.Time
	lastActivity atomic.Int64 // unix nanoseconds
	pinged       atomic.Bool  // keepalive already sent for the current idle stretch

	bytesIn    atomic.Int64
	bytesOut   atomic.Int64
	packetsIn  atomic.Int64
	packetsOut atomic.Int64

	// recvBuf is touched only by the receive task for this session —
	// not guarded by mu, matching SPEC_FULL.md §5's ownership rule.
	recvBuf []byte

	sendQueue chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	sendRing *protocol.Ring
	recvRing *protocol.Ring
}

// New creates a Session wrapping conn, with id assigned by the caller
// (normally Registry.Register). sendQueueSize <= 0 uses DefaultSendQueueSize.
func New(id uint32, conn net.Conn, sendQueueSize int) *Session {
	if sendQueueSize <= 0 {
		sendQueueSize = DefaultSendQueueSize
	}

	remote, local := "", ""
	if conn != nil {
		remote = conn.RemoteAddr().String()
		local = conn.LocalAddr().String()
	}

	s := &Session{
		id:         id,
		conn:       conn,
		remoteAddr: remote,
		localAddr:  local,
		connectedAt: time.Now(),
		sendQueue:  make(chan []byte, sendQueueSize),
		closeCh:    make(chan struct{}),
		sendRing:   protocol.NewRing(),
		recvRing:   protocol.NewRing(),
	}
	s.state.Store(int32(Created))
	s.lastActivity.Store(time.Now().UnixNano())
	return s
}

// ID returns the session's opaque monotonic id.
func (s *Session) ID() uint32 { return s.id }

// Conn returns the underlying network connection.
func (s *Session) Conn() net.Conn { return s.conn }

// RemoteAddr returns the remote endpoint string.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// LocalAddr returns the local endpoint string.
func (s *Session) LocalAddr() string { return s.localAddr }

// State returns the session's lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// SetState transitions the session's lifecycle state.
func (s *Session) SetState(st State) { s.state.Store(int32(st)) }

// IsAuthenticated reports whether the session completed login.
func (s *Session) IsAuthenticated() bool { return s.authenticated.Load() }

// Authenticate marks the session authenticated and records the account id.
func (s *Session) Authenticate(accountID int64) {
	s.mu.Lock()
	s.accountID = &accountID
	s.mu.Unlock()
	s.authenticated.Store(true)
}

// AccountID returns the authenticated account id, or (0, false) if none.
func (s *Session) AccountID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountID == nil {
		return 0, false
	}
	return *s.accountID, true
}

// SetCharacterID records the selected character id for this session.
func (s *Session) SetCharacterID(id int64) {
	s.mu.Lock()
	s.characterID = &id
	s.mu.Unlock()
}

// CharacterID returns the selected character id, or (0, false) if none.
func (s *Session) CharacterID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.characterID == nil {
		return 0, false
	}
	return *s.characterID, true
}

// ConnectedAt returns when the session was created.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Touch records activity at time now. Called on accept and on every read
// that returns data; writes do not call it, so outbound keepalives do not
// postpone the idle timeout. last_activity ≤ now is an invariant at all
// observable points.
func (s *Session) Touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// LastActivity returns the timestamp of the last recorded activity.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Idle returns how long the session has been idle as of now.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// Pinged reports whether a keepalive has already been sent for the
// session's current idle stretch, and SetPinged updates that flag. The
// shared maintenance loop (one task for every session, not one goroutine
// per connection) needs this persisted on the session itself rather than
// in a loop-local variable.
func (s *Session) Pinged() bool     { return s.pinged.Load() }
func (s *Session) SetPinged(v bool) { s.pinged.Store(v) }

// AddBytesIn/AddBytesOut/AddPacketIn/AddPacketOut update per-direction
// counters; they're read back via Stats.
func (s *Session) AddBytesIn(n int)   { s.bytesIn.Add(int64(n)) }
func (s *Session) AddBytesOut(n int)  { s.bytesOut.Add(int64(n)) }
func (s *Session) AddPacketIn()       { s.packetsIn.Add(1) }
func (s *Session) AddPacketOut()      { s.packetsOut.Add(1) }

// Stats is a point-in-time snapshot of a session's traffic counters.
type Stats struct {
	BytesIn    int64
	BytesOut   int64
	PacketsIn  int64
	PacketsOut int64
}

// Stats returns a snapshot of the session's traffic counters.
func (s *Session) Stats() Stats {
	return Stats{
		BytesIn:    s.bytesIn.Load(),
		BytesOut:   s.bytesOut.Load(),
		PacketsIn:  s.packetsIn.Load(),
		PacketsOut: s.packetsOut.Load(),
	}
}

// LogSummary emits this session's traffic counters at debug level, with
// byte counts rendered via humanize.Bytes for readability in long-lived
// connection logs.
func (s *Session) LogSummary() {
	st := s.Stats()
	slog.Debug("session summary",
		"session", s.id,
		"bytesIn", humanize.Bytes(uint64(st.BytesIn)),
		"bytesOut", humanize.Bytes(uint64(st.BytesOut)),
		"packetsIn", st.PacketsIn,
		"packetsOut", st.PacketsOut,
	)
}

// SendRing returns the send-direction keyword ring.
func (s *Session) SendRing() *protocol.Ring { return s.sendRing }

// RecvRing returns the receive-direction keyword ring.
func (s *Session) RecvRing() *protocol.Ring { return s.recvRing }

// RecvBuf returns the session's receive buffer, first growing its
// capacity to at least minCap bytes if needed. Only the receive task for
// this session may call this.
func (s *Session) RecvBuf(minCap int) []byte {
	if cap(s.recvBuf) < minCap {
		grown := make([]byte, len(s.recvBuf), minCap)
		copy(grown, s.recvBuf)
		s.recvBuf = grown
	}
	return s.recvBuf
}

// SetRecvBuf replaces the receive buffer's live slice (e.g. after
// consuming a frame and shifting remaining bytes to the front).
func (s *Session) SetRecvBuf(buf []byte) { s.recvBuf = buf }

// Enqueue pushes an already-framed outbound packet onto the send queue.
// Non-blocking: returns an error (and does not close the session — the
// caller decides whether a full queue warrants disconnecting a slow
// client) if the queue is full, bounding the number of frames pending by
// the queue's capacity (SPEC_FULL.md §8 send-queue boundedness property).
func (s *Session) Enqueue(frame []byte) error {
	select {
	case s.sendQueue <- frame:
		return nil
	case <-s.closeCh:
		return fmt.Errorf("session %d: closed", s.id)
	default:
		return fmt.Errorf("session %d: send queue full", s.id)
	}
}

// SendQueue exposes the outbound channel for the send loop to drain.
func (s *Session) SendQueue() <-chan []byte { return s.sendQueue }

// Closed returns a channel closed when the session transitions to Closing.
func (s *Session) Closed() <-chan struct{} { return s.closeCh }

// Close transitions the session to Closing and unblocks any goroutine
// waiting on Closed(). Safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.SetState(Closing)
		close(s.closeCh)
	})
}
