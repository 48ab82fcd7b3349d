package production

import (
	"errors"
	"fmt"

	"chunker/internal/logging"
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// ErrNotConnected is returned by Reorder when a condition's identifier can
// never be bound from a state test, or when a non-equality test compares
// against a variable that no positive condition binds.
var ErrNotConnected = errors.New("condition not connected to a state")

// Reorder puts lhs into match order by relinking its nodes. Conditions on
// goals come first; then, repeatedly, the positive condition whose identifier
// is bound and which binds the fewest new variables, ties broken by the
// current order. A negation is placed as soon as every variable it tests is
// bound.
func (m *Memory) Reorder(lhs *wm.ConditionList) error {
	pending := lhs.Slice()
	bound := make(map[*symtab.Symbol]bool)
	var out []*wm.Condition

	take := func(k int) {
		c := pending[k]
		pending = append(pending[:k], pending[k+1:]...)
		out = append(out, c)
		if c.Kind == wm.PositiveCondition {
			c.Tests(func(slot **wm.Test) { bindEqualities(*slot, bound) })
		}
	}

	for len(pending) > 0 {
		if len(out) > 0 {
			if k := readyNegation(pending, bound); k >= 0 {
				take(k)
				continue
			}
		}
		best, bestCost := -1, 0
		for k, c := range pending {
			if c.Kind != wm.PositiveCondition || !rootable(c, bound) {
				continue
			}
			if cost := newVariables(c, bound); best < 0 || cost < bestCost {
				best, bestCost = k, cost
			}
		}
		if best < 0 {
			if k := readyNegation(pending, bound); k >= 0 {
				take(k)
				continue
			}
			return fmt.Errorf("%w: %s", ErrNotConnected, pending[0])
		}
		take(best)
	}

	for _, c := range out {
		if v := unboundReferent(c, bound); v != nil {
			return fmt.Errorf("%w: %s compares against unbound %s", ErrNotConnected, c, v)
		}
	}

	*lhs = wm.ConditionList{}
	for _, c := range out {
		lhs.Append(c)
	}
	logging.RulesDebug("reordered %d conditions", len(out))
	return nil
}

// rootable reports whether c can be matched now: its identifier is a
// constant, already bound, or tested to be a goal.
func rootable(c *wm.Condition, bound map[*symtab.Symbol]bool) bool {
	id := c.IDSymbol()
	if id == nil {
		return false
	}
	return !id.IsVariable() || bound[id] || c.ID.Includes(wm.GoalIDTest)
}

func readyNegation(pending []*wm.Condition, bound map[*symtab.Symbol]bool) int {
	for k, c := range pending {
		if c.Kind == wm.PositiveCondition {
			continue
		}
		ready := true
		condSymbols(c, func(slot **symtab.Symbol) {
			if (*slot).IsVariable() && !bound[*slot] && !boundInside(c, *slot) {
				ready = false
			}
		})
		if ready {
			return k
		}
	}
	return -1
}

// boundInside reports whether a conjunctive negation binds v itself.
func boundInside(c *wm.Condition, v *symtab.Symbol) bool {
	if c.Kind != wm.ConjunctiveNegationCondition {
		return false
	}
	for n := c.NCC.Head; n != nil; n = n.Next {
		if n.Kind == wm.PositiveCondition && (n.ID.IncludesEquality(v) || n.Attr.IncludesEquality(v) || n.Value.IncludesEquality(v)) {
			return true
		}
	}
	return false
}

// unboundReferent returns the first variable a non-equality test of the
// positive condition c refers to without anything binding it. Negations are
// checked when they are placed.
func unboundReferent(c *wm.Condition, bound map[*symtab.Symbol]bool) *symtab.Symbol {
	if c.Kind != wm.PositiveCondition {
		return nil
	}
	var found *symtab.Symbol
	c.Tests(func(slot **wm.Test) {
		relationalReferents(*slot, func(v *symtab.Symbol) {
			if found == nil && !bound[v] {
				found = v
			}
		})
	})
	return found
}

func relationalReferents(t *wm.Test, fn func(*symtab.Symbol)) {
	if t == nil {
		return
	}
	switch t.Kind {
	case wm.EqualityTest, wm.GoalIDTest, wm.ImpasseIDTest, wm.DisjunctionTest:
	case wm.ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			relationalReferents(sub, fn)
		}
	default:
		if t.Referent.IsVariable() {
			fn(t.Referent)
		}
	}
}

func newVariables(c *wm.Condition, bound map[*symtab.Symbol]bool) int {
	seen := make(map[*symtab.Symbol]bool)
	c.Tests(func(slot **wm.Test) {
		(*slot).Symbols(true, func(s **symtab.Symbol) {
			if (*s).IsVariable() && !bound[*s] {
				seen[*s] = true
			}
		})
	})
	return len(seen)
}

func bindEqualities(t *wm.Test, bound map[*symtab.Symbol]bool) {
	if v := t.EqualityReferent(); v.IsVariable() {
		bound[v] = true
	}
}
