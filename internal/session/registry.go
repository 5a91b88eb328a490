package session

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// ErrConnectionRefused is returned by Register when a remote IP is already
// at its connection cap.
var ErrConnectionRefused = fmt.Errorf("session: connection refused, per-IP cap exceeded")

// Registry tracks all live inbound sessions by opaque id, enforcing
// per-IP caps and emitting lifecycle events (SPEC_FULL.md §4.2). It is the
// exclusive owner of every Session it holds.
type Registry struct {
	mu           sync.Mutex
	sessions     map[uint32]*Session
	byIP         map[string]int
	maxPerIP     int
	nextID       atomic.Uint32
	onRegistered func(*Session)
	onClosed     func(*Session)
}

// NewRegistry creates a Registry enforcing maxPerIP simultaneous sessions
// per remote IP (0 = unlimited).
func NewRegistry(maxPerIP int) *Registry {
	return &Registry{
		sessions: make(map[uint32]*Session),
		byIP:     make(map[string]int),
		maxPerIP: maxPerIP,
	}
}

// OnRegistered sets a callback invoked (outside the registry lock) after a
// session is successfully registered.
func (r *Registry) OnRegistered(fn func(*Session)) { r.onRegistered = fn }

// OnClosed sets a callback invoked (outside the registry lock) after a
// session is removed.
func (r *Registry) OnClosed(fn func(*Session)) { r.onClosed = fn }

// Register assigns the next monotonic session id to conn, enforces the
// per-IP cap, and tracks the resulting Session. Ids are never reused
// within a run.
func (r *Registry) Register(conn net.Conn, sendQueueSize int) (*Session, error) {
	host := ""
	if conn != nil {
		if h, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			host = h
		} else {
			host = conn.RemoteAddr().String()
		}
	}

	r.mu.Lock()
	if r.maxPerIP > 0 && r.byIP[host] >= r.maxPerIP {
		r.mu.Unlock()
		return nil, ErrConnectionRefused
	}

	id := r.nextID.Add(1)
	s := New(id, conn, sendQueueSize)
	s.SetState(Connected)
	r.sessions[id] = s
	r.byIP[host]++
	r.mu.Unlock()

	if r.onRegistered != nil {
		r.onRegistered(s)
	}
	return s, nil
}

// Close marks s Closing/Closed and removes it from the registry. The
// session is retained under the lock only long enough to decrement
// bookkeeping; callers already holding a *Session reference may keep
// using it briefly (grace period) — Close does not invalidate the value.
func (r *Registry) Close(s *Session) {
	if s == nil {
		return
	}
	s.Close()

	host := ""
	if s.conn != nil {
		if h, _, err := net.SplitHostPort(s.conn.RemoteAddr().String()); err == nil {
			host = h
		} else {
			host = s.conn.RemoteAddr().String()
		}
	}

	r.mu.Lock()
	if _, ok := r.sessions[s.ID()]; ok {
		delete(r.sessions, s.ID())
		if host != "" {
			if r.byIP[host] <= 1 {
				delete(r.byIP, host)
			} else {
				r.byIP[host]--
			}
		}
	}
	r.mu.Unlock()

	s.SetState(Closed)
	if r.onClosed != nil {
		r.onClosed(s)
	}
}

// GetByID returns the session for id, or nil if not found.
func (r *Registry) GetByID(id uint32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IterActive snapshots the ids of all tracked sessions under the lock,
// then releases it before invoking fn once per session — matching
// SPEC_FULL.md §5's "iteration over active ids snapshots ids under the
// lock then releases it before doing per-session work."
func (r *Registry) IterActive(fn func(*Session)) {
	r.mu.Lock()
	ids := make([]uint32, 0, len(r.sessions))
	snap := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		ids = append(ids, id)
		snap = append(snap, s)
	}
	r.mu.Unlock()

	for _, s := range snap {
		fn(s)
	}
}

// Broadcast enqueues the same pre-encoded frame on every active session's
// send queue. Per-session enqueue failures (full queue) are ignored by the
// broadcast itself; callers that need per-session delivery guarantees
// should use GetByID + Enqueue directly.
func (r *Registry) Broadcast(frame []byte) {
	r.IterActive(func(s *Session) {
		_ = s.Enqueue(frame)
	})
}
