package dispatch

import (
	"testing"

	"github.com/wydcore/server/internal/session"
)

// TestRateLimitBurst covers SPEC_FULL.md seed scenario 2: a command
// registered with packets_per_minute=60, burst_size=10 admits exactly 70
// of 71 packets sent within one second from a single session.
func TestRateLimitBurst(t *testing.T) {
	d := NewDispatcher(DropUnknown, nil, 0)

	dispatched := 0
	d.Register(0x0101, func(s *session.Session, payload []byte) error {
		dispatched++
		return nil
	}, false, false)
	if err := d.SetRateLimit(0x0101, 60, 10); err != nil {
		t.Fatalf("SetRateLimit: %v", err)
	}

	s := session.New(1, nil, 0)

	dropped := 0
	for i := 0; i < 71; i++ {
		if err := d.Process(s, 0x0101, nil); err != nil {
			dropped++
		}
	}

	if dispatched != 70 {
		t.Fatalf("dispatched = %d, want 70", dispatched)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestUnauthenticatedDropsAuthRequiredCommand(t *testing.T) {
	d := NewDispatcher(DropUnknown, nil, 0)
	d.Register(0x0401, func(s *session.Session, payload []byte) error { return nil }, true, false)

	s := session.New(1, nil, 0)
	if err := d.Process(s, 0x0401, nil); err != ErrNotAuthenticated {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestSizeOutOfBounds(t *testing.T) {
	d := NewDispatcher(DropUnknown, nil, 0)
	d.Register(0x0401, func(s *session.Session, payload []byte) error { return nil }, false, false)
	if err := d.SetSizeBounds(0x0401, 4, 8); err != nil {
		t.Fatalf("SetSizeBounds: %v", err)
	}

	s := session.New(1, nil, 0)
	if err := d.Process(s, 0x0401, []byte{1, 2}); err != ErrSizeOutOfBounds {
		t.Fatalf("err = %v, want ErrSizeOutOfBounds", err)
	}
	if err := d.Process(s, 0x0401, make([]byte, 6)); err != nil {
		t.Fatalf("in-bounds payload rejected: %v", err)
	}
}

func TestUnknownCommandDropped(t *testing.T) {
	d := NewDispatcher(DropUnknown, nil, 0)
	s := session.New(1, nil, 0)
	if err := d.Process(s, 0xBEEF, nil); err == nil {
		t.Fatalf("want error for unknown command")
	}
}

func TestGlobalValidatorRejection(t *testing.T) {
	d := NewDispatcher(DropUnknown, nil, 0)
	d.Register(0x0401, func(s *session.Session, payload []byte) error { return nil }, false, false)

	id := d.RegisterGlobalValidator(func(s *session.Session, cmd uint16, payload []byte) error {
		return ErrValidatorRejected
	})

	s := session.New(1, nil, 0)
	if err := d.Process(s, 0x0401, nil); err == nil {
		t.Fatalf("want validator rejection")
	}

	d.UnregisterGlobalValidator(id)
	if err := d.Process(s, 0x0401, nil); err != nil {
		t.Fatalf("after unregister: %v", err)
	}
}
