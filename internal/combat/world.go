package combat

import "sync"

// MapWorld is a minimal in-memory AttributeProvider/EffectSink: a
// map keyed by EntityId, guarded by a mutex. It is not a world
// simulation — world/guild/party/NPC AI are explicitly out of scope
// here — it is the smallest thing that lets the combat engine run
// against real EntityId values before a real world layer exists to
// plug in its own AttributeProvider/EffectSink implementation.
type MapWorld struct {
	mu      sync.RWMutex
	attrs   map[EntityId]Attributes
	effects map[EntityId][]ControlEffect
}

// NewMapWorld creates an empty in-memory world adapter.
func NewMapWorld() *MapWorld {
	return &MapWorld{
		attrs:   make(map[EntityId]Attributes),
		effects: make(map[EntityId][]ControlEffect),
	}
}

// Set installs or replaces the attribute snapshot for id.
func (w *MapWorld) Set(id EntityId, attrs Attributes) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attrs[id] = attrs
}

// Remove deletes an entity's attributes and any pending effects.
func (w *MapWorld) Remove(id EntityId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attrs, id)
	delete(w.effects, id)
}

// GetAttributes implements AttributeProvider.
func (w *MapWorld) GetAttributes(id EntityId) (Attributes, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.attrs[id]
	return a, ok
}

// GetRelation implements AttributeProvider. Lacking a real faction/party
// graph, two entities are RelationSelf if equal, RelationEnemy if their
// Faction fields differ, and RelationAlly otherwise.
func (w *MapWorld) GetRelation(a, b EntityId) Relation {
	if a == b {
		return RelationSelf
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	fa, aok := w.attrs[a]
	fb, bok := w.attrs[b]
	if !aok || !bok || fa.Faction != fb.Faction {
		return RelationEnemy
	}
	return RelationAlly
}

// ApplyEffect implements EffectSink by appending to the target's pending
// effect list.
func (w *MapWorld) ApplyEffect(target EntityId, effect ControlEffect) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.effects[target] = append(w.effects[target], effect)
	return nil
}

// RemoveEffect implements EffectSink by dropping every pending effect of
// the given kind on target.
func (w *MapWorld) RemoveEffect(target EntityId, affectType AffectType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.effects[target][:0]
	for _, e := range w.effects[target] {
		if e.Type != affectType {
			kept = append(kept, e)
		}
	}
	w.effects[target] = kept
	return nil
}
