package combat

import (
	"fmt"
	"math/rand"
	"time"
)

// ControlEffect is a crowd-control effect attached to a BattleResult on a
// successful control roll (SPEC_FULL.md §4.6 effect application).
type ControlEffect struct {
	Type     AffectType
	Value    int
	Duration int // milliseconds
}

// BattleResult is the outcome of one attack or skill application against
// one target (SPEC_FULL.md §3 BattleResult). Damage is negative for
// heals.
type BattleResult struct {
	AttackerID EntityId
	TargetID   EntityId
	Damage     float64
	DamageType DamageType
	SkillID    int32

	Hit       bool
	Critical  bool
	Missed    bool
	Blocked   bool
	Resisted  bool
	Reflected bool
	Absorbed  bool
	Immune    bool

	AbsorbedHP      float64
	ReflectedAmount float64

	Effects   []ControlEffect
	Timestamp time.Time
}

// Engine resolves combat between entities identified by EntityId, reading
// attribute snapshots through AttributeProvider and writing only to its
// own DamageRecord ledger and the supplied EventPublisher. It never holds
// a reference to a world object.
type Engine struct {
	attrs     AttributeProvider
	effects   EffectSink
	publisher EventPublisher
	skills    SkillProvider
	ledger    *DamageRecordLedger
	rng       *rand.Rand
}

// EventPublisher is the narrow slice of the event bus the engine needs:
// publishing EntityDied notifications on kill.
type EventPublisher interface {
	Publish(eventType string, payload any) int
}

// NewEngine builds a battle engine. skills may be nil, in which case
// ProcessAttack rejects any non-zero skill id. rng may be nil, in which
// case a process-default source is used (not reproducible — pass an
// explicit *rand.Rand in tests).
func NewEngine(attrs AttributeProvider, effects EffectSink, publisher EventPublisher, skills SkillProvider, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		attrs:     attrs,
		effects:   effects,
		publisher: publisher,
		skills:    skills,
		ledger:    NewDamageRecordLedger(),
		rng:       rng,
	}
}

// Ledger exposes the engine's DamageRecord ledger, e.g. for Cleanup
// calls.
func (e *Engine) Ledger() *DamageRecordLedger { return e.ledger }

// ProcessAttack resolves a single basic attack (skillID == 0) or a single
// skill use against one target (skillID != 0, resolved against the
// engine's SkillProvider at level 1): hit test, damage calculation,
// attribution, and control-effect application, in that order. A heal
// skill routed through here goes through the same no-crit/no-defense
// Heal path ProcessSkill uses.
func (e *Engine) ProcessAttack(attackerID, targetID EntityId, skillID int32) (BattleResult, error) {
	if skillID == 0 {
		return e.processOne(attackerID, targetID, nil, 0)
	}
	if e.skills == nil {
		return BattleResult{}, fmt.Errorf("combat: no skill table configured for skill %d", skillID)
	}
	skill, ok := e.skills.GetSkill(skillID)
	if !ok {
		return BattleResult{}, fmt.Errorf("combat: unknown skill %d", skillID)
	}
	const attackSkillLevel = 1
	if skill.HealBase != 0 || skill.HealPerLevel != 0 {
		attacker, ok := e.attrs.GetAttributes(attackerID)
		if !ok {
			return BattleResult{}, fmt.Errorf("combat: unknown attacker %d", attackerID)
		}
		return Heal(attackerID, targetID, attacker, skill, attackSkillLevel), nil
	}
	return e.processOne(attackerID, targetID, &skill, attackSkillLevel)
}

// ProcessSkill resolves a skill cast against one or more targets,
// returning one BattleResult per target in the order given.
func (e *Engine) ProcessSkill(casterID EntityId, targetIDs []EntityId, skill Skill, skillLevel int) ([]BattleResult, error) {
	results := make([]BattleResult, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		var result BattleResult
		var err error
		if skill.HealBase != 0 || skill.HealPerLevel != 0 {
			attacker, ok := e.attrs.GetAttributes(casterID)
			if !ok {
				err = fmt.Errorf("combat: unknown caster %d", casterID)
			} else {
				result = Heal(casterID, targetID, attacker, skill, skillLevel)
			}
		} else {
			result, err = e.processOne(casterID, targetID, &skill, skillLevel)
		}
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) processOne(attackerID, targetID EntityId, skill *Skill, skillLevel int) (BattleResult, error) {
	attacker, ok := e.attrs.GetAttributes(attackerID)
	if !ok {
		return BattleResult{}, fmt.Errorf("combat: unknown attacker %d", attackerID)
	}
	target, ok := e.attrs.GetAttributes(targetID)
	if !ok {
		return BattleResult{}, fmt.Errorf("combat: unknown target %d", targetID)
	}

	if !target.Alive {
		return BattleResult{AttackerID: attackerID, TargetID: targetID, Immune: true}, nil
	}

	now := time.Now()

	if !HitTest(e.rng, attacker, target, skill) {
		return BattleResult{
			AttackerID: attackerID,
			TargetID:   targetID,
			Missed:     true,
			Timestamp:  now,
		}, nil
	}

	damageType := DamagePhysical
	if skill != nil {
		damageType = skill.DamageType
	}

	result := CalculateDamage(e.rng, attackerID, targetID, attacker, target, damageType, skill, skillLevel)
	result.Hit = true
	result.Timestamp = now
	if result.AbsorbedHP > 0 {
		result.Absorbed = true
	}

	if result.Damage > 0 {
		e.ledger.RecordDamage(targetID, attackerID, result.Damage, now)
	}

	if skill != nil && skill.ControlType != ControlNone {
		chance := skill.ControlSuccessRate + skill.ControlPerLevel*float64(skillLevel)
		if chance > 100 {
			chance = 100
		}
		roll := e.rng.Intn(100) + 1
		if float64(roll) <= chance {
			effect := ControlEffect{
				Type:     skill.ControlType.affectType(),
				Value:    skill.ControlValue,
				Duration: ControlDuration(skill.ControlType, skill.ControlValue),
			}
			result.Effects = append(result.Effects, effect)
			if e.effects != nil {
				_ = e.effects.ApplyEffect(targetID, effect)
			}
		}
	}

	if !target.Alive {
		return result, nil
	}
	if result.Damage > 0 && target.CurrentHP > 0 && float64(target.CurrentHP) <= result.Damage {
		killerHint := attackerID
		e.ProcessDeath(targetID, &killerHint)
	}

	return result, nil
}

// ApplyEffect attaches a status effect to target directly, bypassing the
// control roll done by ProcessAttack/ProcessSkill — used by world logic
// for buffs and debuffs that don't originate from a combat hit.
func (e *Engine) ApplyEffect(target EntityId, affectType AffectType, value, duration int) error {
	if e.effects == nil {
		return fmt.Errorf("combat: no effect sink configured")
	}
	return e.effects.ApplyEffect(target, ControlEffect{Type: affectType, Value: value, Duration: duration})
}

// RemoveEffect removes a previously applied status effect from target.
func (e *Engine) RemoveEffect(target EntityId, affectType AffectType) error {
	if e.effects == nil {
		return fmt.Errorf("combat: no effect sink configured")
	}
	return e.effects.RemoveEffect(target, affectType)
}
