package session

import (
	"net"
	"testing"
	"time"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server
}

func TestRegistryAssignsMonotonicIDs(t *testing.T) {
	reg := NewRegistry(0)
	a, err := reg.Register(pipeConn(t), 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	b, err := reg.Register(pipeConn(t), 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if b.ID() <= a.ID() {
		t.Fatalf("ids not monotonic: a=%d b=%d", a.ID(), b.ID())
	}
}

func TestRegistryPerIPCap(t *testing.T) {
	reg := NewRegistry(1)

	serverA, clientA := net.Pipe()
	defer serverA.Close()
	defer clientA.Close()

	if _, err := reg.Register(serverA, 0); err != nil {
		t.Fatalf("first register: %v", err)
	}

	// net.Pipe's addresses are both "pipe", so this simulates two
	// connections sharing one remote IP.
	serverB, clientB := net.Pipe()
	defer serverB.Close()
	defer clientB.Close()

	if _, err := reg.Register(serverB, 0); err != ErrConnectionRefused {
		t.Fatalf("second register over cap: err = %v, want ErrConnectionRefused", err)
	}
}

func TestRegistryCloseRemovesSession(t *testing.T) {
	reg := NewRegistry(0)
	s, err := reg.Register(pipeConn(t), 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.Close(s)

	if got := reg.GetByID(s.ID()); got != nil {
		t.Fatalf("GetByID after close = %v, want nil", got)
	}
	if s.State() != Closed {
		t.Fatalf("state after close = %v, want Closed", s.State())
	}
}

func TestSessionIdleAndTouch(t *testing.T) {
	s := New(1, nil, 0)
	t0 := time.Now()
	s.Touch(t0)

	if got := s.LastActivity(); !got.Equal(t0) {
		t.Fatalf("LastActivity = %v, want %v", got, t0)
	}

	later := t0.Add(6 * time.Minute)
	if idle := s.Idle(later); idle != 6*time.Minute {
		t.Fatalf("Idle = %v, want 6m", idle)
	}
}

func TestSessionEnqueueBounded(t *testing.T) {
	s := New(1, nil, 2)
	if err := s.Enqueue([]byte{1}); err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	if err := s.Enqueue([]byte{2}); err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}
	if err := s.Enqueue([]byte{3}); err == nil {
		t.Fatalf("Enqueue 3 over capacity: want error, got nil")
	}
}
