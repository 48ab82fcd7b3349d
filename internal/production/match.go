package production

import (
	"fmt"

	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// bindings maps a rule's variables to the symbols they matched.
type bindings map[*symtab.Symbol]*symtab.Symbol

// matches checks that lhs matches the instantiated conditions inst, which
// must be in the same order. Equalities bind first so inequalities and
// relational tests can refer to variables bound by any condition.
func matches(lhs, inst wm.ConditionList) error {
	if lhs.Len() != inst.Len() {
		return fmt.Errorf("rule has %d conditions, instantiation %d", lhs.Len(), inst.Len())
	}
	b := make(bindings)

	for r, i := lhs.Head, inst.Head; r != nil; r, i = r.Next, i.Next {
		if r.Kind != i.Kind {
			return fmt.Errorf("condition kinds differ at %s", r)
		}
		if r.Kind != wm.PositiveCondition {
			continue
		}
		if r.Acceptable != i.Acceptable {
			return fmt.Errorf("acceptable flag differs at %s", r)
		}
		ok := b.bind(r.ID, i.ID.EqualityReferent()) &&
			b.bind(r.Attr, i.Attr.EqualityReferent()) &&
			b.bind(r.Value, i.Value.EqualityReferent())
		if !ok {
			return fmt.Errorf("%s does not match %s", r, i)
		}
	}

	for r, i := lhs.Head, inst.Head; r != nil; r, i = r.Next, i.Next {
		var ok bool
		switch r.Kind {
		case wm.PositiveCondition:
			ok = b.satisfies(r.ID, i.ID.EqualityReferent()) &&
				b.satisfies(r.Attr, i.Attr.EqualityReferent()) &&
				b.satisfies(r.Value, i.Value.EqualityReferent())
		default:
			ok = b.agreeCond(r, i)
		}
		if !ok {
			return fmt.Errorf("%s does not match %s", r, i)
		}
	}
	return nil
}

// bind records the equality tests of t against v.
func (b bindings) bind(t *wm.Test, v *symtab.Symbol) bool {
	if t.IsBlank() {
		return true
	}
	switch t.Kind {
	case wm.EqualityTest:
		if !t.Referent.IsVariable() {
			return t.Referent == v
		}
		if old, ok := b[t.Referent]; ok {
			return old == v
		}
		b[t.Referent] = v
	case wm.ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			if !b.bind(sub, v) {
				return false
			}
		}
	}
	return true
}

func (b bindings) resolve(s *symtab.Symbol) *symtab.Symbol {
	if s.IsVariable() {
		return b[s]
	}
	return s
}

// satisfies evaluates t against v once every variable is bound.
func (b bindings) satisfies(t *wm.Test, v *symtab.Symbol) bool {
	if t.IsBlank() {
		return true
	}
	if v == nil {
		return false
	}
	switch t.Kind {
	case wm.EqualityTest:
		return b.resolve(t.Referent) == v
	case wm.NotEqualTest:
		return b.resolve(t.Referent) != v
	case wm.SameTypeTest:
		r := b.resolve(t.Referent)
		return r != nil && r.Kind == v.Kind
	case wm.LessTest, wm.GreaterTest, wm.LessOrEqualTest, wm.GreaterOrEqualTest:
		return compare(t.Kind, v, b.resolve(t.Referent))
	case wm.DisjunctionTest:
		for _, d := range t.Disjuncts {
			if d == v {
				return true
			}
		}
		return false
	case wm.ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			if !b.satisfies(sub, v) {
				return false
			}
		}
		return true
	case wm.GoalIDTest:
		return v.IsaGoal
	case wm.ImpasseIDTest:
		return v.IsaImpasse
	}
	return false
}

func numeric(s *symtab.Symbol) (float64, bool) {
	if s == nil {
		return 0, false
	}
	switch s.Kind {
	case symtab.IntKind:
		return float64(s.Int), true
	case symtab.FloatKind:
		return s.Float, true
	}
	return 0, false
}

func compare(kind wm.TestKind, v, ref *symtab.Symbol) bool {
	x, ok1 := numeric(v)
	y, ok2 := numeric(ref)
	if !ok1 || !ok2 {
		return false
	}
	switch kind {
	case wm.LessTest:
		return x < y
	case wm.GreaterTest:
		return x > y
	case wm.LessOrEqualTest:
		return x <= y
	default:
		return x >= y
	}
}

// agreeCond compares a negated rule condition with its instantiated form, the
// same tests with bound symbols in place of variables.
func (b bindings) agreeCond(r, i *wm.Condition) bool {
	if r.Kind != i.Kind {
		return false
	}
	if r.Kind == wm.ConjunctiveNegationCondition {
		if r.NCC.Len() != i.NCC.Len() {
			return false
		}
		for rn, in := r.NCC.Head, i.NCC.Head; rn != nil; rn, in = rn.Next, in.Next {
			if !b.agreeCond(rn, in) {
				return false
			}
		}
		return true
	}
	return r.Acceptable == i.Acceptable &&
		b.agree(r.ID, i.ID) && b.agree(r.Attr, i.Attr) && b.agree(r.Value, i.Value)
}

func (b bindings) agree(rt, it *wm.Test) bool {
	if rt.IsBlank() || it.IsBlank() {
		return rt.IsBlank() && it.IsBlank()
	}
	if rt.Kind != it.Kind {
		return false
	}
	switch rt.Kind {
	case wm.GoalIDTest, wm.ImpasseIDTest:
		return true
	case wm.DisjunctionTest:
		return rt.Equal(it)
	case wm.ConjunctiveTest:
		if len(rt.Conjuncts) != len(it.Conjuncts) {
			return false
		}
		for k := range rt.Conjuncts {
			if !b.agree(rt.Conjuncts[k], it.Conjuncts[k]) {
				return false
			}
		}
		return true
	}
	if !rt.Referent.IsVariable() {
		return rt.Referent == it.Referent
	}
	if old, ok := b[rt.Referent]; ok {
		return old == it.Referent
	}
	b[rt.Referent] = it.Referent
	return true
}
