package combat

import "math/rand"

// DamageType selects which formula shape calculate_damage applies.
type DamageType int

const (
	DamagePhysical DamageType = iota
	DamageRanged
	DamageMagic
	DamageTrue
	DamagePercentage
)

// Caps applied to attacker/target attributes before they enter a formula.
// The source material does not pin these down precisely; these values
// are this engine's own reconstruction, chosen to keep crit/mitigation
// stacking from trivializing combat at high stat values.
const (
	MaxCriticalChance = 100
	MaxDamageReduction = 80
	MaxAbsorb           = 80
	MaxMagicResist       = 70
)

// rollDamage resolves a hit's raw, unmitigated damage (step 1 of the
// physical/magic formula): either a uniform roll in [min, max], or the
// skill's level-scaled base when a skill drives the attack.
func rollDamage(rng *rand.Rand, min, max int, skill *Skill, skillLevel int) float64 {
	if skill != nil {
		return skill.DamageBase + skill.DamagePerLevel*float64(skillLevel)
	}
	if max <= min {
		return float64(min)
	}
	return float64(min + rng.Intn(max-min+1))
}

// rollCrit performs the critical hit roll: uniform 1-100 <= crit chance,
// the chance capped at MaxCriticalChance.
func rollCrit(rng *rand.Rand, critChance int) bool {
	if critChance > MaxCriticalChance {
		critChance = MaxCriticalChance
	}
	return rng.Intn(100)+1 <= critChance
}

func clampPercent(v, max int) float64 {
	if v > max {
		v = max
	}
	if v < 0 {
		v = 0
	}
	return float64(v) / 100.0
}

// physicalOrMagic computes steps 2-7 of the SPEC_FULL.md §4.6 physical and
// magic damage formulas, which share the same shape: an attack stat
// multiplier, a defense factor, a critical multiplier, percentage damage
// reduction, and absorption, floored to 1.
func physicalOrMagic(base float64, attackStat, defenseStat int, attacker, target Attributes, rng *rand.Rand, resist int) (damage float64, crit, resisted bool, absorbedHP float64) {
	b := base * (1 + 0.01*float64(attackStat))
	b = b * 50 / (50 + float64(defenseStat))

	if resist > 0 {
		resisted = true
		b *= 1 - clampPercent(resist, MaxMagicResist)
	}

	if rollCrit(rng, attacker.CritChance) {
		crit = true
		critDamage := attacker.CritDamage
		if critDamage == 0 {
			critDamage = 150
		}
		b = b * float64(critDamage) / 100.0
	}

	b = b * (1 - clampPercent(target.DamageReduction, MaxDamageReduction))

	absorbed := b * clampPercent(target.Absorb, MaxAbsorb)
	b -= absorbed

	if b > 0 && b < 1 {
		b = 1
	}
	return b, crit, resisted, absorbed
}

// CalculateDamage resolves one damage instance per SPEC_FULL.md §4.6.
// It does not perform the hit test (see HitTest) or record attribution
// (see DamageRecord) — both are separate, composable steps that
// ProcessAttack and ProcessSkill chain together.
func CalculateDamage(rng *rand.Rand, attackerID, targetID EntityId, attacker, target Attributes, damageType DamageType, skill *Skill, skillLevel int) BattleResult {
	result := BattleResult{
		AttackerID: attackerID,
		TargetID:   targetID,
		DamageType: damageType,
	}
	if skill != nil {
		result.SkillID = skill.ID
	}

	switch damageType {
	case DamagePhysical, DamageRanged:
		base := rollDamage(rng, attacker.PhysAtkMin, attacker.PhysAtkMax, skill, skillLevel)
		dmg, crit, _, absorbed := physicalOrMagic(base, attacker.STR, target.PhysDef, attacker, target, rng, 0)
		dmg = floorToOne(dmg)
		result.Damage = dmg
		result.Critical = crit
		result.AbsorbedHP = absorbed

	case DamageMagic:
		base := rollDamage(rng, attacker.PhysAtkMin, attacker.PhysAtkMax, skill, skillLevel)
		resist := 0
		if skill != nil {
			resist = target.Resist[skill.Element]
		}
		dmg, crit, resisted, absorbed := physicalOrMagic(base, attacker.INT, target.MagDef, attacker, target, rng, resist)
		dmg = floorToOne(dmg)
		result.Damage = dmg
		result.Critical = crit
		result.Resisted = resisted
		result.AbsorbedHP = absorbed

	case DamageTrue:
		base := rollDamage(rng, attacker.PhysAtkMin, attacker.PhysAtkMax, skill, skillLevel)
		result.Damage = floorToOne(base)

	case DamagePercentage:
		percent := 0.0
		if skill != nil {
			percent = skill.DamagePercent
		}
		result.Damage = float64(target.MaxHP) * percent / 100.0
	}

	if target.Reflect > 0 && result.Damage > 0 {
		result.Reflected = true
		result.ReflectedAmount = result.Damage * clampPercent(target.Reflect, 100)
	}

	return result
}

func floorToOne(d float64) float64 {
	if d > 0 && d < 1 {
		return 1
	}
	return d
}

// Heal resolves a healing skill per SPEC_FULL.md §4.6: no crits,
// defenses, or reflection apply, and the result is reported as a
// negative Damage.
func Heal(casterID, targetID EntityId, caster Attributes, skill Skill, skillLevel int) BattleResult {
	h := (skill.HealBase + skill.HealPerLevel*float64(skillLevel)) * (1 + 0.01*float64(caster.INT))
	return BattleResult{
		AttackerID: casterID,
		TargetID:   targetID,
		DamageType: DamagePercentage, // heals are reported via negative Damage, not a distinct type
		SkillID:    skill.ID,
		Damage:     -h,
	}
}

// HitTest resolves whether an attack lands. hit_chance is attack_rating -
// evasion, or skill.success_rate when a skill drives the attack; clamped
// to [5, 95].
func HitTest(rng *rand.Rand, attacker, target Attributes, skill *Skill) bool {
	var hitChance float64
	if skill != nil {
		hitChance = skill.SuccessRate
	} else {
		hitChance = float64(attacker.AttackRating - target.Evasion)
	}
	if hitChance < 5 {
		hitChance = 5
	}
	if hitChance > 95 {
		hitChance = 95
	}
	roll := rng.Intn(100) + 1
	return float64(roll) <= hitChance
}
