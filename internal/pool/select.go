package pool

import (
	"context"
	"time"
)

// statsLogEveryProbes paces pool summary logging to once per 6 health
// probe rounds (~1 minute at the default 10s probe interval).
const statsLogEveryProbes = 6

// selectServerLocked picks an active server by weighted random selection,
// mirroring the original selectServer: disabled servers are excluded from
// the candidate set entirely rather than merely down-weighted
// (SPEC_FULL.md supplemented feature).  Caller must hold p.mu.
func (p *Pool) selectServerLocked() (int, error) {
	totalWeight := 0
	for _, s := range p.servers {
		if s.active.Load() {
			totalWeight += s.Weight
		}
	}
	if totalWeight == 0 {
		return 0, ErrNoHealthyServer
	}

	pick := p.rng.IntN(totalWeight)
	for _, s := range orderedServerIDs(p.servers) {
		srv := p.servers[s]
		if !srv.active.Load() {
			continue
		}
		if pick < srv.Weight {
			return srv.ID, nil
		}
		pick -= srv.Weight
	}
	// Unreachable given totalWeight was computed from the same set, but
	// fall back to ErrNoHealthyServer rather than panic.
	return 0, ErrNoHealthyServer
}

// orderedServerIDs returns server ids in ascending order so weighted
// selection is deterministic for a given rng sequence, independent of Go's
// randomized map iteration.
func orderedServerIDs(servers map[int]*PeerServer) []int {
	ids := make([]int, 0, len(servers))
	for id := range servers {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// RunHealthProbe blocks, probing every registered server on
// healthProbeInterval, until ctx is cancelled. A server failing
// disableAfterFailures consecutive probes is disabled for disableDuration;
// a probe succeeding (or the cooldown elapsing and a follow-up probe
// succeeding) reactivates it. Each round also runs SweepIdle.
func (p *Pool) RunHealthProbe(ctx context.Context) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
			p.SweepIdle(time.Now())
			ticks++
			if ticks%statsLogEveryProbes == 0 {
				p.LogSummary()
			}
		}
	}
}

func (p *Pool) probeAll(ctx context.Context) {
	p.mu.Lock()
	servers := make([]*PeerServer, 0, len(p.servers))
	for _, s := range p.servers {
		servers = append(servers, s)
	}
	p.mu.Unlock()

	for _, srv := range servers {
		p.probeOne(ctx, srv)
	}
}

func (p *Pool) probeOne(ctx context.Context, srv *PeerServer) {
	// A disabled server whose cooldown has elapsed is reactivated before
	// its probe. Disabled servers are probed every round like any other,
	// so a success reactivates one even before its cooldown ends.
	if !srv.active.Load() && time.Now().UnixNano() >= srv.reactivateAtUnixNs.Load() {
		srv.active.Store(true)
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	conn, err := p.dial(probeCtx, srv.Host, srv.Port, healthProbeTimeout)
	if err != nil {
		p.recordProbeFailure(srv)
		return
	}
	conn.Close()
	p.recordProbeSuccess(srv)
}

// recordProbeFailure tracks a failed probe. A non-required server is
// disabled for disableDuration once it crosses disableAfterFailures
// consecutive failures. A required server is never disabled
// (SPEC_FULL.md §3 PeerServer invariant) — instead it surfaces a
// RequiredServerUnhealthy event over the pool's EventPublisher, if one is
// configured.
func (p *Pool) recordProbeFailure(srv *PeerServer) {
	n := srv.consecutiveFailures.Add(1)
	if n < disableAfterFailures {
		return
	}
	if srv.Required {
		if p.publisher != nil {
			p.publisher.Publish("pool.required_server_unhealthy", RequiredServerUnhealthy{
				ServerID:            srv.ID,
				Host:                srv.Host,
				Port:                srv.Port,
				ConsecutiveFailures: n,
			})
		}
		return
	}
	srv.active.Store(false)
	srv.reactivateAtUnixNs.Store(time.Now().Add(disableDuration).UnixNano())
}

func (p *Pool) recordProbeSuccess(srv *PeerServer) {
	srv.consecutiveFailures.Store(0)
	srv.active.Store(true)
}

// SweepIdle closes and discards idle connections that have exceeded
// idleTimeout (SPEC_FULL.md supplemented feature), returning how many it
// closed. RunHealthProbe calls it once per probe round.
func (p *Pool) SweepIdle(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	closed := 0
	for serverID, idle := range p.idleByServer {
		kept := idle[:0]
		for _, connID := range idle {
			c := p.connections[connID]
			if c != nil && now.Sub(c.LastActivity) >= idleTimeout {
				if c.conn != nil {
					c.conn.Close()
				}
				delete(p.connections, connID)
				closed++
				continue
			}
			kept = append(kept, connID)
		}
		p.idleByServer[serverID] = kept
	}
	return closed
}
