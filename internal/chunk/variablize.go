package chunk

import (
	"fmt"

	"chunker/internal/logging"
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// variablizer replaces identifiers with variables, one variable per identifier
// for the whole rule. Constants are left alone.
type variablizer struct {
	tc  symtab.TC
	gen *symtab.VariableGenerator
}

func newVariablizer(syms *symtab.Table) *variablizer {
	return &variablizer{
		tc:  syms.NewTC(),
		gen: syms.NewVariableGenerator(nil),
	}
}

// symbol rewrites the identifier in slot. Every use of a variable in the rule
// holds one reference to it.
func (v *variablizer) symbol(slot **symtab.Symbol) {
	s := *slot
	if !s.IsIdentifier() {
		return
	}
	if s.TC == v.tc {
		*slot = s.Variablization
		symtab.AddRef(s.Variablization)
		return
	}
	s.TC = v.tc
	s.Variablization = v.gen.Next(s.NameLetter())
	logging.VariablizeDebug("%s -> %s", s, s.Variablization)
	*slot = s.Variablization
}

func (v *variablizer) test(t *wm.Test) {
	t.Symbols(true, v.symbol)
}

func (v *variablizer) condition(c *wm.Condition) {
	if c.Kind == wm.ConjunctiveNegationCondition {
		for n := c.NCC.Head; n != nil; n = n.Next {
			v.condition(n)
		}
		return
	}
	c.Tests(func(slot **wm.Test) { v.test(*slot) })
}

// variablizeAll builds the rule's left- and right-hand sides from the chunk
// conditions and results. Justifications keep their identifiers.
func (b *build) variablizeAll() error {
	var v *variablizer
	if b.variablize {
		v = newVariablizer(b.l.syms)
	}

	for _, cc := range b.conds {
		if v != nil {
			v.condition(cc.Variablized)
		}
		b.lhs.Append(cc.Variablized)
	}
	if err := b.insertNots(v); err != nil {
		return err
	}

	b.rhs = make([]*wm.Action, 0, len(b.results))
	for _, p := range b.results {
		a := &wm.Action{Kind: p.Kind, ID: p.ID, Attr: p.Attr, Value: p.Value}
		if p.Kind.IsBinary() {
			a.Referent = p.Referent
		}
		if v != nil {
			v.symbol(&a.ID)
			v.symbol(&a.Attr)
			v.symbol(&a.Value)
			if a.Referent != nil {
				v.symbol(&a.Referent)
			}
		}
		b.rhs = append(b.rhs, a)
	}

	b.addGoalOrImpasseTests()
	return nil
}

// insertNots attaches each kept inequality to the first positive condition
// that binds its first identifier, looking at id, then attribute, then value.
func (b *build) insertNots(v *variablizer) error {
	for _, n := range b.nots {
		s1, s2 := n.S1, n.S2
		if v != nil {
			if s1.TC != v.tc || s2.TC != v.tc {
				return fmt.Errorf("%w: %s <> %s", ErrUnboundNot, n.S1, n.S2)
			}
			s1, s2 = s1.Variablization, s2.Variablization
		}

		added := false
		for _, cc := range b.conds {
			c := cc.Variablized
			if c.Kind != wm.PositiveCondition {
				continue
			}
			var slot **wm.Test
			switch {
			case c.ID.IncludesEquality(s1):
				slot = &c.ID
			case c.Attr.IncludesEquality(s1):
				slot = &c.Attr
			case c.Value.IncludesEquality(s1):
				slot = &c.Value
			default:
				continue
			}
			if v != nil {
				symtab.AddRef(s2)
			}
			*slot = wm.AddTest(*slot, wm.NotEqual(s2))
			added = true
			break
		}
		if !added {
			return fmt.Errorf("%w: %s <> %s", ErrUnboundNot, n.S1, n.S2)
		}
	}
	return nil
}

// addGoalOrImpasseTests marks the first test of each goal or impasse
// identifier so the rule only matches goals and impasses there.
func (b *build) addGoalOrImpasseTests() {
	tc := b.l.syms.NewTC()
	for _, cc := range b.conds {
		if cc.Instantiated.Kind != wm.PositiveCondition {
			continue
		}
		id := cc.Instantiated.IDSymbol()
		if id == nil || id.TC == tc || !(id.IsaGoal || id.IsaImpasse) {
			continue
		}
		id.TC = tc
		if id.IsaGoal {
			cc.Variablized.ID = wm.AddTest(cc.Variablized.ID, wm.GoalTest())
		} else {
			cc.Variablized.ID = wm.AddTest(cc.Variablized.ID, wm.ImpasseTest())
		}
	}
}
