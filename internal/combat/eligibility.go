package combat

// PvPAllowed is supplied by the caller: the engine has no notion of zone
// rules, duels, or arena state, only the yes/no answer for this pair.
type PvPAllowed func(attacker, target EntityId) bool

// CanAttack reports whether attacker may target target with a basic
// attack: target alive, attacker not stunned, not same faction unless
// PvP is allowed, and within range (range itself is the caller's
// responsibility — rangeOK carries that verdict in).
func CanAttack(attrs AttributeProvider, attacker, target EntityId, pvpAllowed PvPAllowed, rangeOK bool) bool {
	targetAttrs, ok := attrs.GetAttributes(target)
	if !ok || !targetAttrs.Alive {
		return false
	}
	attackerAttrs, ok := attrs.GetAttributes(attacker)
	if !ok || attackerAttrs.Stunned {
		return false
	}
	if !rangeOK {
		return false
	}
	if attackerAttrs.Faction == targetAttrs.Faction {
		if pvpAllowed == nil || !pvpAllowed(attacker, target) {
			return false
		}
	}
	return true
}

// CanUseSkill additionally requires sufficient MP/HP, the skill known at
// or above its required level, and no active global cooldown. Target
// eligibility itself is delegated to CanTargetWithSkill, which matches
// skill.TargetType against the caster/target relationship — not to
// CanAttack, whose same-faction-unless-PvP rule is specific to basic
// attacks and would otherwise reject the common case of an ally-targeted
// heal or buff.
func CanUseSkill(attrs AttributeProvider, caster, target EntityId, skill Skill, knownLevel int, globalCooldownActive bool, pvpAllowed PvPAllowed, rangeOK bool) bool {
	if globalCooldownActive {
		return false
	}
	if knownLevel < skill.MinLevel {
		return false
	}
	casterAttrs, ok := attrs.GetAttributes(caster)
	if !ok || casterAttrs.Stunned {
		return false
	}
	if casterAttrs.CurrentMP < skill.RequiredMP || casterAttrs.CurrentHP < skill.RequiredHP {
		return false
	}
	if skill.TargetType == TargetSelf {
		return caster == target
	}
	targetAttrs, ok := attrs.GetAttributes(target)
	if !ok || !targetAttrs.Alive {
		return false
	}
	if !rangeOK {
		return false
	}
	return CanTargetWithSkill(attrs, caster, target, skill.TargetType)
}

// CanTargetWithSkill matches skill.TargetType against the relationship
// between caster and target as reported by AttributeProvider.GetRelation.
func CanTargetWithSkill(attrs AttributeProvider, caster, target EntityId, targetType TargetType) bool {
	if targetType == TargetAll {
		return true
	}
	relation := attrs.GetRelation(caster, target)
	switch targetType {
	case TargetSelf:
		return relation == RelationSelf
	case TargetAlly, TargetAreaAlly:
		return relation == RelationAlly || relation == RelationSelf
	case TargetEnemy, TargetAreaEnemy:
		return relation == RelationEnemy
	default:
		return false
	}
}
