package pool

import (
	"context"
	"net"
	"testing"
	"time"
)

// fakeConn is a no-op net.Conn good enough to stand in for a dialed
// outbound connection in tests.
type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }
func (fakeConn) Read([]byte) (int, error)  { return 0, nil }
func (fakeConn) Write([]byte) (int, error) { return 0, nil }

func fakeDialer(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	return fakeConn{}, nil
}

// TestWeightedSelectionSkipsDisabledServers covers SPEC_FULL.md
// supplemented feature #3: with server A (weight 1, disabled) and server B
// (weight 1, active), every selection must land on B.
func TestWeightedSelectionSkipsDisabledServers(t *testing.T) {
	p := New(10)
	p.SetDialer(fakeDialer)

	idA := p.AddServer("a.example", 9000, 1, false)
	idB := p.AddServer("b.example", 9000, 1, false)

	p.mu.Lock()
	p.servers[idA].active.Store(false)
	p.mu.Unlock()

	for i := 0; i < 20; i++ {
		p.mu.Lock()
		picked, err := p.selectServerLocked()
		p.mu.Unlock()
		if err != nil {
			t.Fatalf("selectServerLocked: %v", err)
		}
		if picked != idB {
			t.Fatalf("picked = %d, want %d (only active server)", picked, idB)
		}
	}
}

func TestAcquireReleaseReusesIdleConnection(t *testing.T) {
	p := New(10)
	p.SetDialer(fakeDialer)
	id := p.AddServer("a.example", 9000, 1, false)

	ctx := context.Background()
	connID, err := p.Acquire(ctx, id, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := p.Stats().TotalCreated; got != 1 {
		t.Fatalf("TotalCreated = %d, want 1", got)
	}

	p.Release(connID)

	connID2, err := p.Acquire(ctx, id, 0)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if connID2 != connID {
		t.Fatalf("expected idle connection reuse, got new id %d != %d", connID2, connID)
	}
	if got := p.Stats().TotalCreated; got != 1 {
		t.Fatalf("TotalCreated after reuse = %d, want 1", got)
	}
}

func TestAcquireAtCapacityReturnsUnavailable(t *testing.T) {
	p := New(1)
	p.SetDialer(fakeDialer)
	id := p.AddServer("a.example", 9000, 1, false)

	ctx := context.Background()
	if _, err := p.Acquire(ctx, id, 0); err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	if _, err := p.Acquire(ctx, id, 0); err != ErrUnavailable {
		t.Fatalf("Acquire 2 err = %v, want ErrUnavailable", err)
	}
}

func TestRemoveRequiredServerFails(t *testing.T) {
	p := New(10)
	id := p.AddServer("a.example", 9000, 1, true)
	if err := p.RemoveServer(id); err != ErrRequiredServer {
		t.Fatalf("err = %v, want ErrRequiredServer", err)
	}
}

func TestHealthProbeDisablesAfterThreeFailures(t *testing.T) {
	p := New(10)
	p.SetDialer(func(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
		return nil, net.ErrClosed
	})
	id := p.AddServer("a.example", 9000, 1, false)

	ctx := context.Background()
	p.probeOne(ctx, p.servers[id])
	p.probeOne(ctx, p.servers[id])
	if !p.servers[id].Active() {
		p.mu.Lock()
		active := p.servers[id].Active()
		p.mu.Unlock()
		if !active {
			t.Fatalf("server disabled before third failure")
		}
	}
	p.probeOne(ctx, p.servers[id])
	if p.servers[id].Active() {
		t.Fatalf("server still active after three consecutive failures")
	}
}

func TestSweepIdleClosesStaleConnections(t *testing.T) {
	p := New(10)
	p.SetDialer(fakeDialer)
	id := p.AddServer("a.example", 9000, 1, false)

	connID, err := p.Acquire(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(connID)

	closed := p.SweepIdle(time.Now().Add(10 * time.Minute))
	if closed != 1 {
		t.Fatalf("SweepIdle closed = %d, want 1", closed)
	}
}
