package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/wydcore/server/internal/dispatch"
	"github.com/wydcore/server/internal/protocol"
	"github.com/wydcore/server/internal/session"
)

// TestServerRoundTripsOneFrame starts a real TCP server, connects a raw
// client, and verifies a single framed packet reaches the registered
// handler with its payload intact.
func TestServerRoundTripsOneFrame(t *testing.T) {
	registry := session.NewRegistry(0)
	received := make(chan []byte, 1)

	d := dispatch.NewDispatcher(dispatch.DropUnknown, nil, 0)
	d.Register(0x0201, func(s *session.Session, payload []byte) error {
		received <- append([]byte(nil), payload...)
		return nil
	}, false, false)

	srv := New(registry, d, time.Minute, 30*time.Second, 16)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		srv.Serve(ctx, ln)
		close(done)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ring := protocol.NewRing()
	buf := make([]byte, 64)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	n, err := protocol.Encode(buf, 0x0201, 0, payload, ring)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-received:
		if len(got) != len(payload) {
			t.Fatalf("payload len = %d, want %d", len(got), len(payload))
		}
		for i := range payload {
			if got[i] != payload[i] {
				t.Fatalf("payload[%d] = %d, want %d", i, got[i], payload[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched packet")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancel")
	}
}
