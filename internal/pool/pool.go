// Package pool implements the outbound Connection Pool: a multiplexer to
// peer servers with weighted selection, health probing, and cooldowns
// (SPEC_FULL.md §4.4).
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Errors surfaced to callers — resource errors per SPEC_FULL.md §7.
var (
	ErrUnavailable    = errors.New("pool: unavailable")
	ErrRequiredServer = errors.New("pool: cannot remove a required server")
	ErrNoHealthyServer = errors.New("pool: no healthy server")
	ErrUnknownServer  = errors.New("pool: unknown server")
)

const (
	defaultMaxConnections = 50
	idleTimeout           = 5 * time.Minute
	healthProbeInterval   = 10 * time.Second
	healthProbeTimeout    = 2 * time.Second
	disableDuration       = 30 * time.Second
	disableAfterFailures  = 3
)

// Dialer opens an outbound connection; swappable for tests.
type Dialer func(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error)

// EventPublisher is the narrow slice of the event bus the pool needs:
// surfacing an alert when a required server goes unhealthy without being
// excluded from selection (SPEC_FULL.md §4.4). Mirrors combat.EventPublisher.
type EventPublisher interface {
	Publish(eventType string, payload any) int
}

// RequiredServerUnhealthy is published when a required PeerServer's
// consecutive health-probe failures cross disableAfterFailures. Unlike a
// non-required server it is not disabled — this event is the only signal
// an operator gets.
type RequiredServerUnhealthy struct {
	ServerID            int
	Host                string
	Port                int
	ConsecutiveFailures int32
}

func defaultDialer(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}

// Pool multiplexes outbound connections to peer servers.
type Pool struct {
	mu             sync.Mutex
	servers        map[int]*PeerServer
	connections    map[int]*OutboundConnection
	idleByServer   map[int][]int // serverID -> idle connection ids
	nextServerID   int
	nextConnID     int
	maxConnections int
	dial           Dialer
	rng            *rand.Rand
	publisher      EventPublisher

	waiters []chan struct{}

	totalCreated atomic.Int64
	inUse        atomic.Int64
	waiting      atomic.Int64
	waitSampleNs atomic.Int64
	waitSamples  atomic.Int64
}

// New creates a Pool allowing up to maxConnections live outbound
// connections across all servers (0 = defaultMaxConnections).
func New(maxConnections int) *Pool {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	return &Pool{
		servers:        make(map[int]*PeerServer),
		connections:    make(map[int]*OutboundConnection),
		idleByServer:   make(map[int][]int),
		maxConnections: maxConnections,
		dial:           defaultDialer,
		rng:            rand.New(rand.NewPCG(0x5a17, 0xc0ffee)),
	}
}

// SetDialer overrides how new outbound connections are opened. For tests.
func (p *Pool) SetDialer(d Dialer) { p.dial = d }

// SetPublisher wires an event bus into the pool so a required server's
// health-probe failures surface as RequiredServerUnhealthy events instead
// of disabling the server. Nil (the default) means failures on required
// servers are tracked but never reported anywhere.
func (p *Pool) SetPublisher(publisher EventPublisher) { p.publisher = publisher }

// SeedRandom makes the weighted server selection deterministic. For tests.
func (p *Pool) SeedRandom(seed1, seed2 uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rand.New(rand.NewPCG(seed1, seed2))
}

// AddServer registers a peer server and returns its assigned id. Weight is
// clamped to a minimum of 1.
func (p *Pool) AddServer(host string, port int, weight int, required bool) int {
	if weight < 1 {
		weight = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextServerID++
	id := p.nextServerID
	p.servers[id] = &PeerServer{
		ID:       id,
		Host:     host,
		Port:     port,
		Weight:   weight,
		Required: required,
	}
	p.servers[id].active.Store(true)
	return id
}

// RemoveServer removes a non-required server. A required peer is never
// removed (SPEC_FULL.md §3 PeerServer invariant).
func (p *Pool) RemoveServer(serverID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	srv, ok := p.servers[serverID]
	if !ok {
		return fmt.Errorf("pool: remove server %d: %w", serverID, ErrUnknownServer)
	}
	if srv.Required {
		return ErrRequiredServer
	}

	for connID, c := range p.connections {
		if c.ServerID == serverID {
			if c.conn != nil {
				c.conn.Close()
			}
			delete(p.connections, connID)
		}
	}
	delete(p.idleByServer, serverID)
	delete(p.servers, serverID)
	return nil
}

// Stats is a point-in-time snapshot of pool activity
// (SPEC_FULL.md supplemented feature #1).
type Stats struct {
	TotalCreated    int64
	InUse           int64
	Waiting         int64
	AvgWaitMillis   float64
}

// Stats returns a snapshot of the pool's activity counters.
func (p *Pool) Stats() Stats {
	samples := p.waitSamples.Load()
	var avg float64
	if samples > 0 {
		avg = float64(p.waitSampleNs.Load()) / float64(samples) / float64(time.Millisecond)
	}
	return Stats{
		TotalCreated:  p.totalCreated.Load(),
		InUse:         p.inUse.Load(),
		Waiting:       p.waiting.Load(),
		AvgWaitMillis: avg,
	}
}

// LogSummary emits the pool's activity counters at info level, with
// connection counts rendered via humanize.Comma so large pools stay
// readable in logs.
func (p *Pool) LogSummary() {
	s := p.Stats()
	slog.Info("pool summary",
		"totalCreated", humanize.Comma(s.TotalCreated),
		"inUse", humanize.Comma(s.InUse),
		"waiting", humanize.Comma(s.Waiting),
		"avgWaitMs", s.AvgWaitMillis,
	)
}

// Acquire returns an idle connection to preferredServerID if given and
// active, otherwise picks a server via weighted random selection among
// active servers. If no idle connection exists it opens one (up to
// maxConnections); at capacity it waits up to waitTimeout for a release
// before returning ErrUnavailable. waitTimeout == 0 returns immediately
// with no wait.
func (p *Pool) Acquire(ctx context.Context, preferredServerID int, waitTimeout time.Duration) (int, error) {
	for {
		connID, ok, err := p.tryAcquire(ctx, preferredServerID)
		if err != nil {
			return 0, err
		}
		if ok {
			return connID, nil
		}

		if waitTimeout <= 0 {
			return 0, ErrUnavailable
		}

		wake := make(chan struct{}, 1)
		p.mu.Lock()
		p.waiters = append(p.waiters, wake)
		p.mu.Unlock()
		p.waiting.Add(1)

		waitStart := time.Now()
		timer := time.NewTimer(waitTimeout)
		select {
		case <-wake:
			timer.Stop()
			p.waiting.Add(-1)
			p.recordWait(time.Since(waitStart))
			waitTimeout -= time.Since(waitStart)
			continue
		case <-timer.C:
			p.waiting.Add(-1)
			return 0, ErrUnavailable
		case <-ctx.Done():
			timer.Stop()
			p.waiting.Add(-1)
			return 0, ctx.Err()
		}
	}
}

func (p *Pool) recordWait(d time.Duration) {
	p.waitSampleNs.Add(d.Nanoseconds())
	p.waitSamples.Add(1)
}

// tryAcquire attempts one non-blocking acquisition. ok=false with a nil
// error means "no connection available right now, caller should wait."
func (p *Pool) tryAcquire(ctx context.Context, preferredServerID int) (int, bool, error) {
	p.mu.Lock()

	serverID := preferredServerID
	if serverID == 0 || !p.serverActiveLocked(serverID) {
		id, err := p.selectServerLocked()
		if err != nil {
			p.mu.Unlock()
			return 0, false, err
		}
		serverID = id
	}

	if idle := p.idleByServer[serverID]; len(idle) > 0 {
		connID := idle[len(idle)-1]
		p.idleByServer[serverID] = idle[:len(idle)-1]
		c := p.connections[connID]
		c.InUse = true
		c.LastActivity = time.Now()
		p.mu.Unlock()
		p.inUse.Add(1)
		return connID, true, nil
	}

	if len(p.connections) >= p.maxConnections {
		p.mu.Unlock()
		return 0, false, nil
	}
	srv := p.servers[serverID]
	p.mu.Unlock()

	conn, err := p.dial(ctx, srv.Host, srv.Port, 5*time.Second)
	if err != nil {
		return 0, false, fmt.Errorf("pool: dial server %d: %w", serverID, err)
	}

	p.mu.Lock()
	p.nextConnID++
	connID := p.nextConnID
	p.connections[connID] = &OutboundConnection{
		ID:           connID,
		ServerID:     serverID,
		conn:         conn,
		InUse:        true,
		LastActivity: time.Now(),
	}
	p.mu.Unlock()
	p.totalCreated.Add(1)
	p.inUse.Add(1)
	return connID, true, nil
}

func (p *Pool) serverActiveLocked(serverID int) bool {
	srv, ok := p.servers[serverID]
	return ok && srv.active.Load()
}

// Release returns connID to the idle queue and wakes one waiter.
func (p *Pool) Release(connID int) {
	p.mu.Lock()
	c, ok := p.connections[connID]
	if !ok {
		p.mu.Unlock()
		return
	}
	c.InUse = false
	c.LastActivity = time.Now()
	p.idleByServer[c.ServerID] = append(p.idleByServer[c.ServerID], connID)

	var wake chan struct{}
	if len(p.waiters) > 0 {
		wake = p.waiters[0]
		p.waiters = p.waiters[1:]
	}
	p.mu.Unlock()

	p.inUse.Add(-1)
	if wake != nil {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// Conn returns the net.Conn backing connID, or nil if unknown.
func (p *Pool) Conn(connID int) net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.connections[connID]
	if !ok {
		return nil
	}
	return c.conn
}

// ExecuteWith acquires a connection, runs op against its connection id,
// releases it, and retries up to retries additional times if op returns
// false (transient failure). Acquire failures (pool exhaustion) are
// transient by design; retries mask them too.
func (p *Pool) ExecuteWith(ctx context.Context, op func(connID int) bool, preferredServerID int, waitTimeout time.Duration, retries int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		connID, err := p.Acquire(ctx, preferredServerID, waitTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		ok := op(connID)
		p.Release(connID)
		if ok {
			return true, nil
		}
	}
	return false, lastErr
}

// ExecuteOnMultiple acquires connections on up to targetCount distinct
// active servers and runs op concurrently against each, returning the
// number of successes.
func (p *Pool) ExecuteOnMultiple(ctx context.Context, op func(connID int) bool, targetCount int) (int, error) {
	serverIDs := p.activeServerIDs()
	if len(serverIDs) > targetCount {
		serverIDs = serverIDs[:targetCount]
	}
	if len(serverIDs) == 0 {
		return 0, ErrNoHealthyServer
	}

	var successes atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, sid := range serverIDs {
		sid := sid
		g.Go(func() error {
			connID, err := p.Acquire(gctx, sid, 0)
			if err != nil {
				return nil // one server's unavailability doesn't fail the whole fan-out
			}
			defer p.Release(connID)
			if op(connID) {
				successes.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(successes.Load()), nil
}

func (p *Pool) activeServerIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.servers))
	for id, s := range p.servers {
		if s.active.Load() {
			ids = append(ids, id)
		}
	}
	return ids
}
