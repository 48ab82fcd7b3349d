package chunk

import (
	"fmt"

	"chunker/internal/logging"
	"chunker/internal/wm"
)

// backtrace walks from every result to a fixpoint: locals are traced through
// the firings that created them, potentials connected to the grounds are
// promoted, and remaining potentials created in the subgoal are traced in turn.
func (b *build) backtrace() error {
	for _, p := range b.results {
		inst := b.l.mem.Inst(p.Inst)
		if inst == nil {
			continue
		}
		logging.BacktraceDebug("for result %s", p)
		b.backtraceThrough(inst, nil)
	}

	passes := 0
	for {
		passes++
		b.traceLocals()
		b.traceGroundedPotentials()
		if !b.traceUngroundedPotentials() {
			break
		}
	}
	logging.BacktraceDebug("fixpoint after %d passes: %d grounds, %d potentials left", passes, len(b.grounds), len(b.potentials))

	// An impasse identifier can never be a ground. A result that depends on
	// one has no grounds for that branch, and the whole chunk is dropped.
	for _, c := range b.potentials {
		if id := c.IDSymbol(); id != nil && id.IsaImpasse {
			return fmt.Errorf("%w: result depends on impasse %s through %s", ErrNoGrounds, id, c)
		}
	}
	return nil
}

// backtraceThrough classifies the conditions of one firing. traceCond is the
// condition being explained, nil for a result.
func (b *build) backtraceThrough(inst *wm.Instantiation, traceCond *wm.Condition) {
	if inst.BacktraceNumber == b.number {
		logging.BacktraceDebug("(already backtraced through %s)", inst.RuleName())
		return
	}
	inst.BacktraceNumber = b.number
	b.traced++
	if !inst.OkayToVariablize {
		b.reliable = false
	}

	// Mark the closure of the higher goals tested in id fields.
	tc := b.l.syms.NewTC()
	for again := true; again; {
		again = false
		for c := inst.Conditions.Head; c != nil; c = c.Next {
			if c.Kind != wm.PositiveCondition {
				continue
			}
			id := c.IDSymbol()
			if id == nil {
				continue
			}
			switch {
			case id.TC == tc:
			case id.IsaGoal && c.BT.Level <= b.groundsLevel:
				id.TC = tc
			default:
				continue
			}
			if v := c.Value.EqualityReferent(); v.IsIdentifier() && !v.IsaImpasse && v.TC != tc {
				v.TC = tc
				again = true
			}
		}
	}

	var grounds, potentials, locals, negated []*wm.Condition
	for c := inst.Conditions.Head; c != nil; c = c.Next {
		if c.Kind != wm.PositiveCondition {
			b.negated.AddCondition(c)
			negated = append(negated, c)
			continue
		}
		id := c.IDSymbol()
		switch {
		case id != nil && id.TC == tc:
			b.addToGrounds(c)
			grounds = append(grounds, c)
		case c.BT.Level <= b.groundsLevel:
			b.addToPotentials(c)
			potentials = append(potentials, c)
		default:
			b.addToLocals(c)
			locals = append(locals, c)
		}
	}

	if len(inst.Nots) > 0 {
		b.instsWithNots = append(b.instsWithNots, inst)
	}

	logging.BacktraceDebug("%s: %d grounds, %d potentials, %d locals, %d negated",
		inst.RuleName(), len(grounds), len(potentials), len(locals), len(negated))
	if b.l.recorder != nil {
		b.l.recorder.RecordBacktrace(inst.RuleName(), traceCond, grounds, potentials, locals, negated)
	}
}

// traceLocals empties the locals list. Locals created by a firing in the
// subgoal are traced through it; augmentations of the local goal are dropped,
// except that ^quiescence t makes the build a justification; anything else
// becomes a potential.
func (b *build) traceLocals() {
	for len(b.locals) > 0 {
		c := b.locals[0]
		b.locals = b.locals[1:]

		if b.traceThroughCreator(c) {
			continue
		}

		if id := c.IDSymbol(); id != nil && id.IsaGoal {
			if c.Attr.EqualityReferent() == b.l.quiescence &&
				c.Value.EqualityReferent() == b.l.t && !c.Acceptable {
				b.reliable = false
				b.quiescence = true
			}
			continue
		}
		b.addToPotentials(c)
	}
}

// traceThroughCreator backtraces through the firing in the subgoal that
// created c's WME and through any prohibit preferences consulted for it. It
// reports false when no such firing exists.
func (b *build) traceThroughCreator(c *wm.Condition) bool {
	level := b.groundsLevel + 1
	pref := cloneForLevel(b.l.mem, c.BT.Trace, level)
	if pref == nil {
		return false
	}
	if inst := b.l.mem.Inst(pref.Inst); inst != nil {
		b.backtraceThrough(inst, c)
	}
	for _, pid := range c.BT.Prohibits {
		if p := cloneForLevel(b.l.mem, pid, level); p != nil {
			if inst := b.l.mem.Inst(p.Inst); inst != nil {
				logging.BacktraceDebug("through prohibit preference %s", p)
				b.backtraceThrough(inst, c)
			}
		}
	}
	return true
}

// traceGroundedPotentials promotes potentials connected to the grounds. It
// reports whether any potential moved.
func (b *build) traceGroundedPotentials() bool {
	tc := b.l.syms.NewTC()
	for _, g := range b.grounds {
		addCondToTC(g, tc, nil)
	}

	changed := false
	for again := true; again; {
		again = false
		kept := b.potentials[:0]
		for _, p := range b.potentials {
			if !condInTC(p, tc) {
				kept = append(kept, p)
				continue
			}
			if b.addToGrounds(p) {
				changed = true
				again = true
				addCondToTC(p, tc, nil)
			}
		}
		b.potentials = kept
	}
	return changed
}

// traceUngroundedPotentials traces the remaining potentials that were created
// in the subgoal. It reports false when there were none.
func (b *build) traceUngroundedPotentials() bool {
	level := b.groundsLevel + 1
	var toTrace []*wm.Condition
	kept := b.potentials[:0]
	for _, p := range b.potentials {
		if cloneForLevel(b.l.mem, p.BT.Trace, level) != nil {
			toTrace = append(toTrace, p)
		} else {
			kept = append(kept, p)
		}
	}
	b.potentials = kept
	if len(toTrace) == 0 {
		return false
	}
	for _, p := range toTrace {
		b.traceThroughCreator(p)
	}
	return true
}

func (b *build) mark(c *wm.Condition) *wmeMark {
	var key any = c
	if c.BT.WME != nil {
		key = c.BT.WME
	}
	m, ok := b.marks[key]
	if !ok {
		m = &wmeMark{}
		b.marks[key] = m
	}
	return m
}

func (b *build) addToGrounds(c *wm.Condition) bool {
	m := b.mark(c)
	if m.grounds {
		return false
	}
	m.grounds = true
	b.grounds = append(b.grounds, c)
	return true
}

func (b *build) addToPotentials(c *wm.Condition) {
	m := b.mark(c)
	if !m.potentials {
		m.potentials = true
		m.btPref = c.BT.Trace
		b.potentials = append(b.potentials, c)
	} else if m.btPref != c.BT.Trace {
		b.potentials = append(b.potentials, c)
	}
}

func (b *build) addToLocals(c *wm.Condition) {
	m := b.mark(c)
	if !m.locals {
		m.locals = true
		m.btPref = c.BT.Trace
		b.locals = append(b.locals, c)
	} else if m.btPref != c.BT.Trace {
		b.locals = append(b.locals, c)
	}
}
