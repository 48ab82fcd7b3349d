package wm

import (
	"chunker/internal/symtab"
)

// InstID addresses an instantiation in an Arena. Zero is "no instantiation".
type InstID uint32

// Not is a required inequality between two matched identifiers.
type Not struct {
	S1 *symtab.Symbol
	S2 *symtab.Symbol
}

// Instantiation records one rule firing.
type Instantiation struct {
	Index InstID
	Rule  *Production

	Conditions  ConditionList
	Preferences []PrefID
	Nots        []Not

	MatchGoal      *symtab.Symbol
	MatchGoalLevel int

	// InMatchSet is cleared by the matcher when the instantiation retracts.
	InMatchSet bool
	// OkayToVariablize is false for instantiations of justifications built
	// without generalization.
	OkayToVariablize bool
	// BacktraceNumber marks the last chunk build that traced this firing.
	BacktraceNumber uint64

	refs int
}

// RuleName returns the name of the fired rule.
func (i *Instantiation) RuleName() string {
	if i.Rule == nil {
		return "<unnamed>"
	}
	return i.Rule.Name
}

// Refs returns how many live preferences point at i.
func (i *Instantiation) Refs() int { return i.refs }

// Arena stores instantiations and preferences behind stable indices. Slots are
// never reused, so a stale index resolves to nil instead of another object.
type Arena struct {
	insts []*Instantiation
	prefs []*Preference
	live  int
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{
		insts: make([]*Instantiation, 1, 64),
		prefs: make([]*Preference, 1, 256),
	}
}

// NewInstantiation allocates an instantiation that is in the match set.
func (a *Arena) NewInstantiation(rule *Production, matchGoal *symtab.Symbol, level int) *Instantiation {
	inst := &Instantiation{
		Index:            InstID(len(a.insts)),
		Rule:             rule,
		MatchGoal:        matchGoal,
		MatchGoalLevel:   level,
		InMatchSet:       true,
		OkayToVariablize: true,
	}
	a.insts = append(a.insts, inst)
	a.live++
	return inst
}

// Inst resolves id, returning nil for zero or released slots.
func (a *Arena) Inst(id InstID) *Instantiation {
	if id == 0 || int(id) >= len(a.insts) {
		return nil
	}
	return a.insts[id]
}

// Pref resolves id, returning nil for zero or removed slots.
func (a *Arena) Pref(id PrefID) *Preference {
	if id == 0 || int(id) >= len(a.prefs) {
		return nil
	}
	return a.prefs[id]
}

// NewPreference allocates a preference generated by inst.
func (a *Arena) NewPreference(inst *Instantiation, kind PrefKind, id, attr, value, referent *symtab.Symbol) *Preference {
	p := &Preference{
		Index:    PrefID(len(a.prefs)),
		Kind:     kind,
		ID:       id,
		Attr:     attr,
		Value:    value,
		Referent: referent,
		Inst:     inst.Index,
	}
	a.prefs = append(a.prefs, p)
	inst.Preferences = append(inst.Preferences, p.Index)
	inst.refs++
	return p
}

// LinkClone inserts clone into orig's clone chain, right after orig.
func (a *Arena) LinkClone(orig, clone *Preference) {
	clone.PrevClone = orig.Index
	clone.NextClone = orig.NextClone
	if next := a.Pref(orig.NextClone); next != nil {
		next.PrevClone = clone.Index
	}
	orig.NextClone = clone.Index
}

// Clones returns every preference in p's clone chain, head first.
func (a *Arena) Clones(p *Preference) []*Preference {
	head := p
	for prev := a.Pref(head.PrevClone); prev != nil; prev = a.Pref(head.PrevClone) {
		head = prev
	}
	var out []*Preference
	for c := head; c != nil; c = a.Pref(c.NextClone) {
		out = append(out, c)
	}
	return out
}

// RemovePreference unlinks p from its clone chain, drops its reference on its
// instantiation and releases the instantiation if nothing else holds it.
func (a *Arena) RemovePreference(id PrefID) {
	p := a.Pref(id)
	if p == nil {
		return
	}
	if prev := a.Pref(p.PrevClone); prev != nil {
		prev.NextClone = p.NextClone
	}
	if next := a.Pref(p.NextClone); next != nil {
		next.PrevClone = p.PrevClone
	}
	a.prefs[id] = nil
	if inst := a.Inst(p.Inst); inst != nil {
		inst.refs--
		a.MaybeRelease(inst.Index)
	}
}

// Retract takes inst out of the match set and releases it if unreferenced.
func (a *Arena) Retract(id InstID) bool {
	inst := a.Inst(id)
	if inst == nil {
		return false
	}
	inst.InMatchSet = false
	return a.MaybeRelease(id)
}

// MaybeRelease frees inst when it is neither matched nor referenced by a
// preference. It reports whether the slot was released.
func (a *Arena) MaybeRelease(id InstID) bool {
	inst := a.Inst(id)
	if inst == nil || inst.InMatchSet || inst.refs > 0 {
		return false
	}
	a.insts[id] = nil
	a.live--
	return true
}

// Live returns the number of unreleased instantiations.
func (a *Arena) Live() int { return a.live }
