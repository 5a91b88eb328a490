package protocol

import "errors"

// Protocol-layer errors, drawn from the taxonomy in SPEC_FULL.md §7.
// WouldBlock is not an error condition; ConnectionClosed is terminal.
var (
	ErrWouldBlock       = errors.New("protocol: would block")
	ErrCorruptPacket    = errors.New("protocol: corrupt packet")
	ErrPacketTooLarge   = errors.New("protocol: packet too large")
	ErrInvalidKeyword   = errors.New("protocol: invalid keyword")
	ErrUnknownCommand   = errors.New("protocol: unknown command")
	ErrConnectionClosed = errors.New("protocol: connection closed")
)
