// Package dispatch implements the central packet dispatcher: a routing
// table from command code to handler, under auth/role/rate-limit/size
// policy, with per-command stats (SPEC_FULL.md §4.5).
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wydcore/server/internal/session"
)

// Policy errors — silently dropped per SPEC_FULL.md §7, returned by
// Process so callers can decide whether to log. Only ErrRateLimited is
// also counted, in the command's Failures stat.
var (
	ErrUnknownCommand  = errors.New("dispatch: unknown command")
	ErrNotAuthenticated = errors.New("dispatch: not authenticated")
	ErrAdminOnly       = errors.New("dispatch: admin only")
	ErrSizeOutOfBounds = errors.New("dispatch: payload size out of bounds")
	ErrValidatorRejected = errors.New("dispatch: validator rejected")
	ErrRateLimited     = errors.New("dispatch: rate limited")
)

// UnknownPacketPolicy controls what happens when a command code has no
// registered handler.
type UnknownPacketPolicy int

const (
	DropUnknown UnknownPacketPolicy = iota
	LogAndDropUnknown
)

// Handler processes one dispatched packet. It returns an error only for
// logic failures the caller should know about; policy/transport errors
// never reach a Handler — the dispatcher has already filtered them out.
type Handler func(s *session.Session, payload []byte) error

// Stats accumulates per-command dispatch bookkeeping.
type Stats struct {
	Count    atomic.Int64
	Bytes    atomic.Int64
	TimeNs   atomic.Int64
	Failures atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Count, Bytes, TimeNs, Failures int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Count:    s.Count.Load(),
		Bytes:    s.Bytes.Load(),
		TimeNs:   s.TimeNs.Load(),
		Failures: s.Failures.Load(),
	}
}

// HandlerEntry is a command code's full registration: the handler closure
// plus the policies and accumulated stats that govern it
// (SPEC_FULL.md §3 HandlerEntry).
type HandlerEntry struct {
	Handler          Handler
	RequiresAuth     bool
	AdminOnly        bool
	MinSize          int
	MaxSize          int
	PacketsPerMinute int // 0 = unlimited
	BurstSize        int
	LogEnabled       bool
	LogPayload       bool

	stats Stats
}

// Stats returns a snapshot of this entry's accumulated stats.
func (e *HandlerEntry) Stats() Snapshot { return e.stats.Snapshot() }

// Validator is a global pre-dispatch check; any failure drops the packet.
type Validator func(s *session.Session, cmd uint16, payload []byte) error

// IsAdmin reports whether an authenticated session's account is the admin
// account. Supplied by the caller — the dispatcher has no notion of
// account roles beyond this single predicate.
type IsAdmin func(accountID int64) bool

// Dispatcher is the central packet routing table.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint16]*HandlerEntry

	validatorsMu sync.RWMutex
	validators   map[int]Validator
	nextValID    int

	policy  UnknownPacketPolicy
	isAdmin IsAdmin

	globalCapPerMinute int

	rateMu    sync.Mutex
	rateState map[uint32]*rateLimitState
}

// NewDispatcher creates an empty Dispatcher. globalCapPerMinute bounds the
// total packets per minute a single session may dispatch across all
// commands (spec default 3000); 0 disables the global cap.
func NewDispatcher(policy UnknownPacketPolicy, isAdmin IsAdmin, globalCapPerMinute int) *Dispatcher {
	return &Dispatcher{
		handlers:           make(map[uint16]*HandlerEntry),
		validators:         make(map[int]Validator),
		policy:             policy,
		isAdmin:            isAdmin,
		globalCapPerMinute: globalCapPerMinute,
		rateState:          make(map[uint32]*rateLimitState),
	}
}

// Register adds a handler for cmd. Size bounds and rate limits default to
// unbounded/unlimited; use SetSizeBounds/SetRateLimit to tighten them.
func (d *Dispatcher) Register(cmd uint16, handler Handler, requiresAuth, adminOnly bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = &HandlerEntry{
		Handler:      handler,
		RequiresAuth: requiresAuth,
		AdminOnly:    adminOnly,
		MinSize:      0,
		MaxSize:      1 << 30,
	}
}

// Unregister removes cmd's handler entirely.
func (d *Dispatcher) Unregister(cmd uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, cmd)
}

// SetRateLimit sets a per-command sliding one-minute bucket: perMinute
// packets admitted normally, plus burst extra admitted beyond that before
// the command starts dropping (SPEC_FULL.md §4.5).
func (d *Dispatcher) SetRateLimit(cmd uint16, perMinute, burst int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.handlers[cmd]
	if !ok {
		return fmt.Errorf("dispatch: set rate limit: %w: %#04x", ErrUnknownCommand, cmd)
	}
	e.PacketsPerMinute = perMinute
	e.BurstSize = burst
	return nil
}

// SetSizeBounds sets the payload size window a command's packets must fall
// within.
func (d *Dispatcher) SetSizeBounds(cmd uint16, min, max int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.handlers[cmd]
	if !ok {
		return fmt.Errorf("dispatch: set size bounds: %w: %#04x", ErrUnknownCommand, cmd)
	}
	e.MinSize = min
	e.MaxSize = max
	return nil
}

// SetLogging toggles per-command dispatch logging.
func (d *Dispatcher) SetLogging(cmd uint16, enabled, logPayload bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.handlers[cmd]
	if !ok {
		return fmt.Errorf("dispatch: set logging: %w: %#04x", ErrUnknownCommand, cmd)
	}
	e.LogEnabled = enabled
	e.LogPayload = logPayload
	return nil
}

// RegisterGlobalValidator adds a validator run before every dispatch,
// returning an id usable with UnregisterGlobalValidator.
func (d *Dispatcher) RegisterGlobalValidator(fn Validator) int {
	d.validatorsMu.Lock()
	defer d.validatorsMu.Unlock()
	d.nextValID++
	id := d.nextValID
	d.validators[id] = fn
	return id
}

// UnregisterGlobalValidator removes a validator previously added by
// RegisterGlobalValidator.
func (d *Dispatcher) UnregisterGlobalValidator(id int) {
	d.validatorsMu.Lock()
	defer d.validatorsMu.Unlock()
	delete(d.validators, id)
}

// HandlerStats returns a stats snapshot for cmd, or (Snapshot{}, false) if
// unregistered.
func (d *Dispatcher) HandlerStats(cmd uint16) (Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.handlers[cmd]
	if !ok {
		return Snapshot{}, false
	}
	return e.Stats(), true
}

// Process routes one dispatched packet through the policy pipeline
// described in SPEC_FULL.md §4.5: lookup, auth, admin, size, validators,
// rate limit, invoke, stats. A dropped packet (unknown command, policy
// failure) never reaches the handler and yields a non-nil error wrapping
// one of the Err* sentinels in this package; otherwise the handler's own
// error (nil on success) is returned. Process never panics on a dropped
// packet.
func (d *Dispatcher) Process(s *session.Session, cmd uint16, payload []byte) error {
	d.mu.RLock()
	entry, ok := d.handlers[cmd]
	d.mu.RUnlock()
	if !ok {
		if d.policy == LogAndDropUnknown {
			slog.Warn("dispatch: unknown command", "session", s.ID(), "command", cmd, "bytes", len(payload))
		}
		return fmt.Errorf("%w: %#04x", ErrUnknownCommand, cmd)
	}

	if entry.RequiresAuth && !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	if entry.AdminOnly {
		accountID, ok := s.AccountID()
		if !ok || d.isAdmin == nil || !d.isAdmin(accountID) {
			return ErrAdminOnly
		}
	}

	if len(payload) < entry.MinSize || len(payload) > entry.MaxSize {
		return ErrSizeOutOfBounds
	}

	d.validatorsMu.RLock()
	for _, v := range d.validators {
		if err := v(s, cmd, payload); err != nil {
			d.validatorsMu.RUnlock()
			return fmt.Errorf("%w: %v", ErrValidatorRejected, err)
		}
	}
	d.validatorsMu.RUnlock()

	if !d.admit(s.ID(), cmd, entry, time.Now()) {
		entry.stats.Failures.Add(1)
		return ErrRateLimited
	}

	start := time.Now()
	err := entry.Handler(s, payload)
	elapsed := time.Since(start)

	entry.stats.Count.Add(1)
	entry.stats.Bytes.Add(int64(len(payload)))
	entry.stats.TimeNs.Add(elapsed.Nanoseconds())
	if err != nil {
		entry.stats.Failures.Add(1)
	}
	if entry.LogEnabled {
		attrs := []any{"session", s.ID(), "command", cmd, "bytes", len(payload), "elapsed", elapsed, "error", err}
		if entry.LogPayload {
			attrs = append(attrs, "payload", payload)
		}
		slog.Info("dispatch: handled", attrs...)
	}
	return err
}
