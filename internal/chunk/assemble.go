package chunk

import (
	"fmt"

	"chunker/internal/logging"
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// assemble reorders the rule's conditions, rebuilds the instantiated list in
// the same order, and creates the instantiation of the new rule with clones of
// the results.
func (b *build) assemble() error {
	instantiated := make(map[*wm.Condition]*wm.Condition, len(b.conds))
	for _, cc := range b.conds {
		instantiated[cc.Variablized] = cc.Instantiated
	}

	if err := b.l.rules.Reorder(&b.lhs); err != nil {
		// Nothing was inserted; excising releases the rule's variables.
		b.l.rules.Excise(&wm.Production{Name: b.name, Type: b.prodType, LHS: b.lhs, RHS: b.rhs})
		return fmt.Errorf("%w %s: %v", ErrReorder, b.name, err)
	}

	b.instLHS = wm.ConditionList{}
	for c := b.lhs.Head; c != nil; c = c.Next {
		ic, ok := instantiated[c]
		if !ok {
			return fmt.Errorf("%w: reordered condition %s has no instantiated copy", ErrInvariant, c)
		}
		b.instLHS.Append(ic)
	}

	b.prod = &wm.Production{Name: b.name, Type: b.prodType, LHS: b.lhs, RHS: b.rhs}

	goal, level := findMatchGoal(b.instLHS)
	inst := b.l.mem.NewInstantiation(b.prod, goal, level)
	inst.Conditions = b.instLHS
	inst.Nots = append([]wm.Not(nil), b.nots...)
	inst.OkayToVariablize = b.variablize
	for _, p := range b.results {
		clone := b.l.mem.AddPreference(inst, p.Kind, p.ID, p.Attr, p.Value, p.Referent)
		b.l.mem.LinkClone(p, clone)
	}
	b.newInst = inst
	return nil
}

// findMatchGoal returns the deepest goal matched by a condition, with its
// level.
func findMatchGoal(conds wm.ConditionList) (*symtab.Symbol, int) {
	var goal *symtab.Symbol
	level := 0
	for c := conds.Head; c != nil; c = c.Next {
		if c.Kind != wm.PositiveCondition {
			continue
		}
		id := c.IDSymbol()
		if c.BT.WME != nil {
			id = c.BT.WME.ID
		}
		if id != nil && id.IsaGoal && (goal == nil || id.Level > level) {
			goal, level = id, id.Level
		}
	}
	return goal, level
}

// insert hands the rule to production memory and settles the build.
func (b *build) insert() {
	res := b.l.rules.Insert(b.prod, b.newInst, true)
	switch res {
	case wm.InsertAccepted:
		b.state = Inserted
		b.outcome = Accepted
		b.c.created = append(b.c.created, b.newInst)
		rulesLearned.WithLabelValues(b.l.agent, b.prodType.String()).Inc()
		if b.l.recorder != nil {
			b.l.recorder.RecordChunk(b.name, b.lhs, b.rhs, b.instLHS)
		}
		logging.Rules("learned %s %s from %s", b.prodType, b.name, b.inst.RuleName())
		logging.RulesDebug("%s", b.prod)
	case wm.InsertDuplicate:
		b.reject(Duplicate, fmt.Errorf("%w: %s", ErrDuplicate, b.name))
	default:
		b.reject(RefractedMismatch, fmt.Errorf("%w: %s", ErrRefracted, b.name))
	}
}

// reject throws away a rule production memory did not keep, together with the
// instantiation built for it.
func (b *build) reject(o Outcome, err error) {
	b.log.Debug("%v", err)
	b.l.rules.Excise(b.prod)
	inst := b.newInst
	for _, pid := range append([]wm.PrefID(nil), inst.Preferences...) {
		b.l.mem.RemovePreference(pid)
	}
	inst.InMatchSet = false
	b.l.mem.MaybeRelease(inst.Index)
	b.newInst = nil
	b.fail(o, err)
}
