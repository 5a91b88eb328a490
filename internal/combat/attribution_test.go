package combat

import (
	"testing"
	"time"
)

// TestExperienceReceiverTieBrokenByMostRecent covers SPEC_FULL.md seed
// scenario 4: target T receives 300 from A, 500 from B, 500 from C (C
// hit last); process_death awards C and clears the ledger.
func TestExperienceReceiverTieBrokenByMostRecent(t *testing.T) {
	ledger := NewDamageRecordLedger()
	target := EntityId(100)
	a, b, c := EntityId(1), EntityId(2), EntityId(3)

	now := time.Now()
	ledger.RecordDamage(target, a, 300, now)
	ledger.RecordDamage(target, b, 500, now.Add(time.Second))
	ledger.RecordDamage(target, c, 500, now.Add(2*time.Second))

	winner, ok := ledger.ExperienceReceiver(target)
	if !ok {
		t.Fatalf("expected a winner")
	}
	if winner != c {
		t.Fatalf("winner = %d, want %d (most recent of tied totals)", winner, c)
	}
}

type fakePublisher struct {
	events []any
}

func (p *fakePublisher) Publish(eventType string, payload any) int {
	p.events = append(p.events, payload)
	return 1
}

func TestProcessDeathUsesKillerHintAndClearsLedger(t *testing.T) {
	ledger := NewDamageRecordLedger()
	target := EntityId(100)
	attacker := EntityId(1)
	ledger.RecordDamage(target, attacker, 50, time.Now())

	pub := &fakePublisher{}
	e := &Engine{ledger: ledger, publisher: pub}

	hint := EntityId(999)
	e.ProcessDeath(target, &hint)

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
	died := pub.events[0].(EntityDied)
	if died.AwardeeID != hint {
		t.Fatalf("awardee = %d, want killer hint %d", died.AwardeeID, hint)
	}
	if _, ok := ledger.ExperienceReceiver(target); ok {
		t.Fatalf("ledger for target should be cleared after death")
	}
}

func TestLedgerCapsAtThirtyTwoEntries(t *testing.T) {
	ledger := NewDamageRecordLedger()
	target := EntityId(1)
	now := time.Now()
	for i := 0; i < 40; i++ {
		ledger.RecordDamage(target, EntityId(i), 1, now.Add(time.Duration(i)*time.Millisecond))
	}
	ledger.mu.Lock()
	n := len(ledger.entries[target])
	ledger.mu.Unlock()
	if n != maxLedgerEntries {
		t.Fatalf("ledger length = %d, want %d", n, maxLedgerEntries)
	}
}
