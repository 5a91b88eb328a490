package combat

import (
	"math/rand"
	"testing"
)

func TestCalculateDamagePhysicalFloorsAtOne(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	attacker := Attributes{STR: 0, PhysAtkMin: 1, PhysAtkMax: 1, CritChance: 0}
	target := Attributes{PhysDef: 100000, DamageReduction: 0, Absorb: 0}

	result := CalculateDamage(rng, 1, 2, attacker, target, DamagePhysical, nil, 0)
	if result.Damage != 1 {
		t.Fatalf("Damage = %v, want 1 (floored)", result.Damage)
	}
}

func TestCalculateDamageTrueIgnoresDefense(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	attacker := Attributes{PhysAtkMin: 50, PhysAtkMax: 50}
	target := Attributes{PhysDef: 99999, MagDef: 99999, DamageReduction: 80, Absorb: 80}

	result := CalculateDamage(rng, 1, 2, attacker, target, DamageTrue, nil, 0)
	if result.Damage != 50 {
		t.Fatalf("true damage = %v, want 50 (bypasses defense/mitigation)", result.Damage)
	}
}

func TestCalculateDamagePercentageUsesTargetMaxHP(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	skill := &Skill{DamagePercent: 10}
	target := Attributes{MaxHP: 2000}

	result := CalculateDamage(rng, 1, 2, Attributes{}, target, DamagePercentage, skill, 1)
	if result.Damage != 200 {
		t.Fatalf("percentage damage = %v, want 200", result.Damage)
	}
}

func TestHealReportsNegativeDamage(t *testing.T) {
	skill := Skill{HealBase: 100, HealPerLevel: 10}
	caster := Attributes{INT: 50}

	result := Heal(1, 2, caster, skill, 3)
	want := -((100.0 + 10.0*3) * 1.5)
	if result.Damage != want {
		t.Fatalf("heal damage = %v, want %v", result.Damage, want)
	}
}

func TestHitTestClampsToRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	attacker := Attributes{AttackRating: 1000}
	target := Attributes{Evasion: 0}
	hits := 0
	for i := 0; i < 1000; i++ {
		if HitTest(rng, attacker, target, nil) {
			hits++
		}
	}
	if hits < 940 {
		t.Fatalf("hits = %d/1000, want >= 940 (clamped to 95%% hit chance)", hits)
	}
}
