package chunk

import (
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// Transitive-closure helpers. A symbol is in closure tc when its TC field
// equals tc; only identifiers and variables can be marked.

func markable(s *symtab.Symbol) bool {
	return s != nil && (s.Kind == symtab.IdentifierKind || s.Kind == symtab.VariableKind)
}

func symbolInTC(s *symtab.Symbol, tc symtab.TC) bool {
	return markable(s) && s.TC == tc
}

func addSymbolToTC(s *symtab.Symbol, tc symtab.TC, marked *[]*symtab.Symbol) {
	if !markable(s) || s.TC == tc {
		return
	}
	s.TC = tc
	if marked != nil {
		*marked = append(*marked, s)
	}
}

func testInTC(t *wm.Test, tc symtab.TC) bool {
	if t.IsBlank() {
		return false
	}
	switch t.Kind {
	case wm.EqualityTest:
		return symbolInTC(t.Referent, tc)
	case wm.ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			if testInTC(sub, tc) {
				return true
			}
		}
	}
	return false
}

func addTestToTC(t *wm.Test, tc symtab.TC, marked *[]*symtab.Symbol) {
	if t.IsBlank() {
		return
	}
	switch t.Kind {
	case wm.EqualityTest:
		addSymbolToTC(t.Referent, tc, marked)
	case wm.ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			addTestToTC(sub, tc, marked)
		}
	}
}

// addCondToTC adds the id and value of a positive condition to tc.
func addCondToTC(c *wm.Condition, tc symtab.TC, marked *[]*symtab.Symbol) {
	if c.Kind != wm.PositiveCondition {
		return
	}
	addTestToTC(c.ID, tc, marked)
	addTestToTC(c.Value, tc, marked)
}

// condInTC reports whether c is connected to tc. A conjunctive negation is
// connected when every nested condition becomes connected while the closure is
// grown through the nested positives; symbols marked during that check are
// unmarked before returning.
func condInTC(c *wm.Condition, tc symtab.TC) bool {
	if c.Kind != wm.ConjunctiveNegationCondition {
		return testInTC(c.ID, tc)
	}

	var marked []*symtab.Symbol
	in := make(map[*wm.Condition]bool)
	for {
		changed := false
		for n := c.NCC.Head; n != nil; n = n.Next {
			if in[n] || !condInTC(n, tc) {
				continue
			}
			addCondToTC(n, tc, &marked)
			in[n] = true
			changed = true
		}
		if !changed {
			break
		}
	}

	result := true
	for n := c.NCC.Head; n != nil; n = n.Next {
		if !in[n] {
			result = false
			break
		}
	}
	for _, s := range marked {
		s.TC = 0
	}
	return result
}
