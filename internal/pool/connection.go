package pool

import (
	"net"
	"time"
)

// OutboundConnection is one live or idle connection the pool owns
// (SPEC_FULL.md §3 OutboundConnection).
type OutboundConnection struct {
	ID           int
	ServerID     int
	InUse        bool
	LastActivity time.Time

	conn net.Conn
}
