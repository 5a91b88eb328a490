package protocol

import (
	"bytes"
	"errors"
	"testing"
)

// TestFrameRoundTrip covers SPEC_FULL.md seed scenario 1: command 0x0201
// with an 8-byte payload at ring slot 0 encodes to a 20-byte frame with
// checksum 36, and decoding it returns the same command/payload while
// advancing the ring to slot 1.
func TestFrameRoundTrip(t *testing.T) {
	sendRing := NewRing()
	recvRing := NewRing()

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dst := make([]byte, HeaderSize+len(payload))

	n, err := Encode(dst, CmdMoveRequest, 0, payload, sendRing)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != 20 {
		t.Fatalf("frame size = %d, want 20", n)
	}
	if got := dst[2]; got != 36 {
		t.Fatalf("checksum = %d, want 36", got)
	}
	if sendRing.Position() != 1 {
		t.Fatalf("send ring position = %d, want 1", sendRing.Position())
	}

	frame, consumed, err := Parse(dst[:n], recvRing)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed = %d, want %d", consumed, n)
	}
	if frame.Command != CmdMoveRequest {
		t.Fatalf("command = %#04x, want %#04x", frame.Command, CmdMoveRequest)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload = %v, want %v", frame.Payload, payload)
	}
	if recvRing.Position() != 1 {
		t.Fatalf("recv ring position = %d, want 1", recvRing.Position())
	}
}

func TestParseWouldBlock(t *testing.T) {
	ring := NewRing()
	payload := []byte{1, 2, 3}
	dst := make([]byte, HeaderSize+len(payload))
	n, err := Encode(dst, CmdChatSay, 0, payload, ring)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, _, err = Parse(dst[:n-1], NewRing())
	if err != ErrWouldBlock {
		t.Fatalf("Parse partial frame: err = %v, want ErrWouldBlock", err)
	}
}

func TestParseCorruptChecksumResyncsToDeclaredBoundary(t *testing.T) {
	ring := NewRing()
	payload := []byte{1, 2, 3}
	dst := make([]byte, HeaderSize+len(payload))
	n, err := Encode(dst, CmdChatSay, 0, payload, ring)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dst[2] ^= 0xFF // corrupt checksum

	_, consumed, err := Parse(dst[:n], NewRing())
	if err != ErrCorruptPacket {
		t.Fatalf("err = %v, want ErrCorruptPacket", err)
	}
	if consumed != n {
		t.Fatalf("consumed = %d, want %d (must still resync to declared boundary)", consumed, n)
	}
}

func TestParseInvalidKeywordRejected(t *testing.T) {
	sendRing := NewRing()
	payload := []byte{9, 9}
	dst := make([]byte, HeaderSize+len(payload))
	n, err := Encode(dst, CmdChatSay, 0, payload, sendRing)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Advance the receive ring out of lockstep before parsing.
	recvRing := NewRing()
	recvRing.Advance()

	_, _, err = Parse(dst[:n], recvRing)
	if err != ErrInvalidKeyword {
		t.Fatalf("err = %v, want ErrInvalidKeyword", err)
	}
}

func TestPacketTooLargeBoundary(t *testing.T) {
	ring := NewRing()
	payload := make([]byte, MaxPayloadSize)
	dst := make([]byte, HeaderSize+len(payload))
	n, err := Encode(dst, CmdItemUse, 0, payload, ring)
	if err != nil {
		t.Fatalf("Encode at max size: %v", err)
	}
	if n != MaxFrameSize {
		t.Fatalf("n = %d, want %d", n, MaxFrameSize)
	}
	if _, _, err := Parse(dst[:n], NewRing()); err != nil {
		t.Fatalf("Parse at max size: %v", err)
	}

	overflow := make([]byte, MaxPayloadSize+1)
	if _, err := Encode(make([]byte, HeaderSize+len(overflow)), CmdItemUse, 0, overflow, NewRing()); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("Encode over max: err = %v, want ErrPacketTooLarge", err)
	}
}

func TestEncodeFixedKeywordDoesNotAdvanceRing(t *testing.T) {
	ring := NewRing()
	payload := []byte{1}
	dst := make([]byte, HeaderSize+len(payload))

	if _, err := EncodeFixedKeyword(dst, CmdAuthKeepAlive, 0, payload, 0x42); err != nil {
		t.Fatalf("EncodeFixedKeyword: %v", err)
	}
	if dst[3] != 0x42 {
		t.Fatalf("keyword byte = %#02x, want 0x42", dst[3])
	}
	if ring.Position() != 0 {
		t.Fatalf("ring position = %d, want 0 (unaffected by fixed-keyword frames)", ring.Position())
	}
}
