// Package eventbus implements the process-wide publish/subscribe bus
// (SPEC_FULL.md §4.8): typed subscriptions keyed by an event-type tag,
// priority-ordered delivery, and three delivery modes.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Priority orders handler delivery within one event, descending (Highest
// before Lowest). Monitor is the highest value, so Monitor handlers run
// before every other priority.
type Priority int

const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityMonitor
)

// Mode controls when and how a handler is invoked relative to Publish.
type Mode int

const (
	// ModeImmediate handlers run on the publishing goroutine, before
	// Publish returns, in descending priority order.
	ModeImmediate Mode = iota
	// ModeSync handlers are queued and run on the dispatch task, inline,
	// one at a time.
	ModeSync
	// ModeAsync handlers are queued and run on the dispatch task, each in
	// its own goroutine.
	ModeAsync
)

// HandlerConfig is the per-subscription policy (SPEC_FULL.md §4.8).
type HandlerConfig struct {
	Priority          Priority
	Mode              Mode
	PersistAfterError bool
}

// maxQueueSize bounds the pending Sync/Async queue. The source material
// doesn't pin an exact figure; this is a reconstruction sized generously
// for a single process's event volume.
const maxQueueSize = 4096

type subscription struct {
	id     uuid.UUID
	config HandlerConfig
	// invoke type-asserts payload against the subscription's T and calls
	// the handler only on a match; a mismatch is reported via matched=false
	// and is not an error (SPEC_FULL.md §4.8: "silently skipped").
	invoke func(payload any) (matched bool, err error)
}

type queuedEvent struct {
	eventType string
	payload   any
}

// Bus is the process-wide event bus.
type Bus struct {
	subMu    sync.RWMutex
	handlers map[string][]*subscription

	queueMu sync.Mutex
	queue   []queuedEvent
	wake    chan struct{}
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]*subscription),
		wake:     make(chan struct{}, 1),
	}
}

// Subscribe registers a typed handler for eventType, returning a handler
// id usable with Unsubscribe. Subscribe is a package-level generic
// function (Go methods cannot carry their own type parameters) — mirrors
// how typed pub/sub is expressed elsewhere in this codebase's lineage.
func Subscribe[T any](b *Bus, eventType string, fn func(T) error, config HandlerConfig) uuid.UUID {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	id := uuid.New()
	sub := &subscription{
		id:     id,
		config: config,
		invoke: func(payload any) (bool, error) {
			v, ok := payload.(T)
			if !ok {
				return false, nil
			}
			return true, fn(v)
		},
	}

	handlers := append(b.handlers[eventType], sub)
	insertByPriority(handlers)
	b.handlers[eventType] = handlers
	return id
}

// insertByPriority re-sorts handlers in place so highest priority comes
// first; equal-priority handlers keep their relative insertion order
// (stable), matching the fixed-insertion-order semantics of the legacy
// priority queue this bus descends from.
func insertByPriority(handlers []*subscription) {
	for i := len(handlers) - 1; i > 0; i-- {
		if handlers[i-1].config.Priority < handlers[i].config.Priority {
			// stable insertion sort: shift the new (last) element left past
			// any lower-priority existing entries
			hold := handlers[i]
			j := i
			for j > 0 && handlers[j-1].config.Priority < hold.config.Priority {
				handlers[j] = handlers[j-1]
				j--
			}
			handlers[j] = hold
		}
	}
}

// Unsubscribe removes a previously registered handler from eventType.
func (b *Bus) Unsubscribe(eventType string, handlerID uuid.UUID) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == handlerID {
			b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every subscriber of eventType. Immediate
// handlers run synchronously, in priority order, before Publish returns;
// its return value is the count of Immediate handlers that matched and
// were invoked. Sync and Async handlers are queued for the dispatch task
// (see RunDispatch) and are not counted here — they have not run yet.
func (b *Bus) Publish(eventType string, payload any) int {
	b.subMu.RLock()
	subs := append([]*subscription(nil), b.handlers[eventType]...)
	b.subMu.RUnlock()

	delivered := 0
	var toUnsub []uuid.UUID
	hasQueued := false

	for _, s := range subs {
		if s.config.Mode != ModeImmediate {
			hasQueued = true
			continue
		}
		matched, err := s.invoke(payload)
		if !matched {
			continue
		}
		delivered++
		if err != nil && !s.config.PersistAfterError {
			toUnsub = append(toUnsub, s.id)
		}
	}
	for _, id := range toUnsub {
		b.Unsubscribe(eventType, id)
	}

	if hasQueued {
		b.enqueue(eventType, payload)
	}

	return delivered
}

func (b *Bus) enqueue(eventType string, payload any) {
	b.queueMu.Lock()
	if len(b.queue) >= maxQueueSize {
		slog.Warn("eventbus: queue full, dropping oldest event", "eventType", b.queue[0].eventType)
		b.queue = b.queue[1:]
	}
	b.queue = append(b.queue, queuedEvent{eventType: eventType, payload: payload})
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// RunDispatch drains the Sync/Async queue until ctx is cancelled. Intended
// to run as the event bus's dedicated dispatch task.
func (b *Bus) RunDispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
			b.drainOnce()
		}
	}
}

func (b *Bus) drainOnce() {
	for {
		b.queueMu.Lock()
		if len(b.queue) == 0 {
			b.queueMu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.queueMu.Unlock()

		b.deliverQueued(ev)
	}
}

func (b *Bus) deliverQueued(ev queuedEvent) {
	b.subMu.RLock()
	subs := append([]*subscription(nil), b.handlers[ev.eventType]...)
	b.subMu.RUnlock()

	var toUnsub []uuid.UUID
	for _, s := range subs {
		switch s.config.Mode {
		case ModeSync:
			matched, err := s.invoke(ev.payload)
			if matched && err != nil && !s.config.PersistAfterError {
				toUnsub = append(toUnsub, s.id)
			}
		case ModeAsync:
			s := s
			go func() {
				matched, err := s.invoke(ev.payload)
				if matched && err != nil && !s.config.PersistAfterError {
					b.Unsubscribe(ev.eventType, s.id)
				}
			}()
		}
	}
	for _, id := range toUnsub {
		b.Unsubscribe(ev.eventType, id)
	}
}
