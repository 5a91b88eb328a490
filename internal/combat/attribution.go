package combat

import (
	"sync"
	"time"
)

const maxLedgerEntries = 32

// damageEntry is one attacker's contribution to a target's ledger.
type damageEntry struct {
	attackerID EntityId
	damage     float64
	timestamp  time.Time
}

// DamageRecordLedger is the per-target damage attribution ledger
// (SPEC_FULL.md §3 DamageRecord, §5 shared-resource policy): a single map
// behind one lock, append-only within a window, pruned by age only when a
// caller invokes Cleanup. No loop in this module calls Cleanup, so a
// target's entries are otherwise bounded only by the 32-entry cap and
// cleared by ProcessDeath.
type DamageRecordLedger struct {
	mu      sync.Mutex
	entries map[EntityId][]damageEntry
}

// NewDamageRecordLedger creates an empty ledger.
func NewDamageRecordLedger() *DamageRecordLedger {
	return &DamageRecordLedger{entries: make(map[EntityId][]damageEntry)}
}

// RecordDamage appends one hit to target's ledger, evicting the oldest
// entry if the per-target cap of 32 is exceeded.
func (l *DamageRecordLedger) RecordDamage(target, attacker EntityId, damage float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.entries[target]
	entries = append(entries, damageEntry{attackerID: attacker, damage: damage, timestamp: now})
	if len(entries) > maxLedgerEntries {
		entries = entries[len(entries)-maxLedgerEntries:]
	}
	l.entries[target] = entries
}

// ExperienceReceiver returns the attacker with the largest summed damage
// against target in the current ledger window; ties are broken by most
// recent hit. Returns (0, false) if the ledger has no entries for target.
func (l *DamageRecordLedger) ExperienceReceiver(target EntityId) (EntityId, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return topContributor(l.entries[target])
}

func topContributor(entries []damageEntry) (EntityId, bool) {
	if len(entries) == 0 {
		return 0, false
	}

	totals := make(map[EntityId]float64, len(entries))
	lastHit := make(map[EntityId]time.Time, len(entries))
	for _, e := range entries {
		totals[e.attackerID] += e.damage
		if e.timestamp.After(lastHit[e.attackerID]) {
			lastHit[e.attackerID] = e.timestamp
		}
	}

	var winner EntityId
	var winnerTotal float64
	var winnerLast time.Time
	first := true
	for attacker, total := range totals {
		last := lastHit[attacker]
		switch {
		case first:
			winner, winnerTotal, winnerLast = attacker, total, last
			first = false
		case total > winnerTotal:
			winner, winnerTotal, winnerLast = attacker, total, last
		case total == winnerTotal && last.After(winnerLast):
			winner, winnerTotal, winnerLast = attacker, total, last
		}
	}
	return winner, true
}

// ProcessDeath resolves kill attribution for target: killerHint wins if
// given, else the ledger's top contributor; publishes EntityDied and
// evicts target's ledger. Safe to call with a nil killerHint.
func (e *Engine) ProcessDeath(target EntityId, killerHint *EntityId) {
	var awardee EntityId
	if killerHint != nil {
		awardee = *killerHint
	} else if winner, ok := e.ledger.ExperienceReceiver(target); ok {
		awardee = winner
	}

	e.ledger.evict(target)

	if e.publisher != nil {
		e.publisher.Publish("EntityDied", EntityDied{TargetID: target, AwardeeID: awardee})
	}
}

func (l *DamageRecordLedger) evict(target EntityId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, target)
}

// Cleanup prunes entries older than maxAge across all targets' ledgers.
// The server's maintenance loop does not call it.
func (l *DamageRecordLedger) Cleanup(now time.Time, maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for target, entries := range l.entries {
		kept := entries[:0]
		for _, e := range entries {
			if now.Sub(e.timestamp) <= maxAge {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(l.entries, target)
		} else {
			l.entries[target] = kept
		}
	}
}

// EntityDied is published when ProcessDeath resolves a kill.
type EntityDied struct {
	TargetID  EntityId
	AwardeeID EntityId
}
