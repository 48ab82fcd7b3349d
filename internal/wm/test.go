package wm

import (
	"strings"

	"chunker/internal/symtab"

	"github.com/cespare/xxhash/v2"
)

// TestKind discriminates the test variants a condition field can carry.
type TestKind uint8

const (
	// EqualityTest with a nil Referent is the blank test.
	EqualityTest TestKind = iota
	NotEqualTest
	LessTest
	GreaterTest
	LessOrEqualTest
	GreaterOrEqualTest
	SameTypeTest
	DisjunctionTest
	ConjunctiveTest
	GoalIDTest
	ImpasseIDTest
)

var relationalOps = map[TestKind]string{
	NotEqualTest:       "<>",
	LessTest:           "<",
	GreaterTest:        ">",
	LessOrEqualTest:    "<=",
	GreaterOrEqualTest: ">=",
	SameTypeTest:       "<=>",
}

// Test is one field test of a condition. A nil *Test is the blank test.
type Test struct {
	Kind      TestKind
	Referent  *symtab.Symbol
	Disjuncts []*symtab.Symbol
	Conjuncts []*Test
}

// Equality returns an equality test for s.
func Equality(s *symtab.Symbol) *Test {
	return &Test{Kind: EqualityTest, Referent: s}
}

// NotEqual returns a "<> s" test.
func NotEqual(s *symtab.Symbol) *Test {
	return &Test{Kind: NotEqualTest, Referent: s}
}

// Relational returns a relational test of the given kind against s.
func Relational(kind TestKind, s *symtab.Symbol) *Test {
	return &Test{Kind: kind, Referent: s}
}

// Disjunction returns a "<< a b c >>" test.
func Disjunction(syms ...*symtab.Symbol) *Test {
	return &Test{Kind: DisjunctionTest, Disjuncts: append([]*symtab.Symbol(nil), syms...)}
}

// Conjunction returns a "{ a b }" test.
func Conjunction(tests ...*Test) *Test {
	return &Test{Kind: ConjunctiveTest, Conjuncts: append([]*Test(nil), tests...)}
}

// GoalTest returns the test requiring a goal identifier.
func GoalTest() *Test { return &Test{Kind: GoalIDTest} }

// ImpasseTest returns the test requiring an impasse identifier.
func ImpasseTest() *Test { return &Test{Kind: ImpasseIDTest} }

// IsBlank reports whether t tests nothing.
func (t *Test) IsBlank() bool {
	return t == nil || (t.Kind == EqualityTest && t.Referent == nil)
}

// Copy returns a deep copy of t.
func (t *Test) Copy() *Test {
	if t == nil {
		return nil
	}
	c := &Test{Kind: t.Kind, Referent: t.Referent}
	if t.Disjuncts != nil {
		c.Disjuncts = append([]*symtab.Symbol(nil), t.Disjuncts...)
	}
	if t.Conjuncts != nil {
		c.Conjuncts = make([]*Test, len(t.Conjuncts))
		for i, sub := range t.Conjuncts {
			c.Conjuncts[i] = sub.Copy()
		}
	}
	return c
}

// Equal reports structural equality.
func (t *Test) Equal(o *Test) bool {
	if t.IsBlank() || o.IsBlank() {
		return t.IsBlank() && o.IsBlank()
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case GoalIDTest, ImpasseIDTest:
		return true
	case DisjunctionTest:
		if len(t.Disjuncts) != len(o.Disjuncts) {
			return false
		}
		for i := range t.Disjuncts {
			if t.Disjuncts[i] != o.Disjuncts[i] {
				return false
			}
		}
		return true
	case ConjunctiveTest:
		if len(t.Conjuncts) != len(o.Conjuncts) {
			return false
		}
		for i := range t.Conjuncts {
			if !t.Conjuncts[i].Equal(o.Conjuncts[i]) {
				return false
			}
		}
		return true
	default:
		return t.Referent == o.Referent
	}
}

// EqualityReferent returns the symbol an equality test (or the first equality
// conjunct) binds, or nil.
func (t *Test) EqualityReferent() *symtab.Symbol {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case EqualityTest:
		return t.Referent
	case ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			if sub != nil && sub.Kind == EqualityTest && sub.Referent != nil {
				return sub.Referent
			}
		}
	}
	return nil
}

// IncludesEquality reports whether t contains an equality test for s.
func (t *Test) IncludesEquality(s *symtab.Symbol) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case EqualityTest:
		return t.Referent == s && s != nil
	case ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			if sub.IncludesEquality(s) {
				return true
			}
		}
	}
	return false
}

// Includes reports whether t contains a test of the given kind.
func (t *Test) Includes(kind TestKind) bool {
	if t == nil {
		return false
	}
	if t.Kind == kind {
		return true
	}
	if t.Kind == ConjunctiveTest {
		for _, sub := range t.Conjuncts {
			if sub.Includes(kind) {
				return true
			}
		}
	}
	return false
}

// Symbols calls fn with every symbol slot referenced by t. Goal, impasse and
// disjunction tests hold constants only and are skipped when skipConstantTests
// is set.
func (t *Test) Symbols(skipConstantTests bool, fn func(slot **symtab.Symbol)) {
	if t == nil {
		return
	}
	switch t.Kind {
	case GoalIDTest, ImpasseIDTest:
	case DisjunctionTest:
		if skipConstantTests {
			return
		}
		for i := range t.Disjuncts {
			fn(&t.Disjuncts[i])
		}
	case ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			sub.Symbols(skipConstantTests, fn)
		}
	default:
		if t.Referent != nil {
			fn(&t.Referent)
		}
	}
}

// AddTest conjoins add onto dst and returns the combined test.
func AddTest(dst, add *Test) *Test {
	if add.IsBlank() {
		return dst
	}
	if dst.IsBlank() {
		return add
	}
	if dst.Kind == ConjunctiveTest {
		dst.Conjuncts = append(dst.Conjuncts, add)
		return dst
	}
	return Conjunction(dst, add)
}

func (t *Test) hash(d *xxhash.Digest) {
	if t.IsBlank() {
		_, _ = d.Write([]byte{0xff})
		return
	}
	_, _ = d.Write([]byte{byte(t.Kind)})
	switch t.Kind {
	case DisjunctionTest:
		for _, s := range t.Disjuncts {
			hashSymbol(d, s)
		}
	case ConjunctiveTest:
		for _, sub := range t.Conjuncts {
			sub.hash(d)
		}
	case GoalIDTest, ImpasseIDTest:
	default:
		hashSymbol(d, t.Referent)
	}
}

func hashSymbol(d *xxhash.Digest, s *symtab.Symbol) {
	_, _ = d.Write([]byte{byte(s.Kind)})
	_, _ = d.WriteString(s.String())
}

// String renders t the way rules print it.
func (t *Test) String() string {
	if t.IsBlank() {
		return "*"
	}
	switch t.Kind {
	case EqualityTest:
		return t.Referent.String()
	case DisjunctionTest:
		parts := make([]string, len(t.Disjuncts))
		for i, s := range t.Disjuncts {
			parts[i] = s.String()
		}
		return "<< " + strings.Join(parts, " ") + " >>"
	case ConjunctiveTest:
		var parts []string
		for _, sub := range t.Conjuncts {
			if sub.Kind == GoalIDTest || sub.Kind == ImpasseIDTest {
				continue
			}
			parts = append(parts, sub.String())
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return "{ " + strings.Join(parts, " ") + " }"
	case GoalIDTest:
		return "state"
	case ImpasseIDTest:
		return "impasse"
	default:
		return relationalOps[t.Kind] + " " + t.Referent.String()
	}
}
