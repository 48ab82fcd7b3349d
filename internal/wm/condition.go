package wm

import (
	"fmt"
	"strings"

	"chunker/internal/symtab"

	"github.com/cespare/xxhash/v2"
)

// ConditionKind discriminates positive, negated and conjunctive-negation
// conditions.
type ConditionKind uint8

const (
	PositiveCondition ConditionKind = iota
	NegativeCondition
	ConjunctiveNegationCondition
)

// Backtrace is what the matcher recorded about the WME a positive condition of
// an instantiation matched.
type Backtrace struct {
	WME *WME
	// Level is the goal-stack level of the matched WME.
	Level int
	// Trace is the preference that created the WME; zero for input WMEs.
	Trace PrefID
	// Prohibits are prohibit preferences the decision procedure consulted when
	// the WME was selected.
	Prohibits []PrefID
}

// Condition is one node of a rule's or instantiation's left-hand side.
type Condition struct {
	Kind       ConditionKind
	ID         *Test
	Attr       *Test
	Value      *Test
	Acceptable bool
	// NCC holds the nested conditions of a conjunctive negation.
	NCC ConditionList

	Next *Condition
	Prev *Condition

	BT Backtrace
}

// Positive returns an unlinked positive condition.
func Positive(id, attr, value *Test) *Condition {
	return &Condition{Kind: PositiveCondition, ID: id, Attr: attr, Value: value}
}

// Negative returns an unlinked negated condition.
func Negative(id, attr, value *Test) *Condition {
	return &Condition{Kind: NegativeCondition, ID: id, Attr: attr, Value: value}
}

// ConjunctiveNegation returns an unlinked "-{ ... }" condition over conds.
func ConjunctiveNegation(conds ...*Condition) *Condition {
	return &Condition{Kind: ConjunctiveNegationCondition, NCC: ListOf(conds...)}
}

// Copy returns an unlinked deep copy of c. Backtrace data is carried along.
func (c *Condition) Copy() *Condition {
	n := &Condition{
		Kind:       c.Kind,
		ID:         c.ID.Copy(),
		Attr:       c.Attr.Copy(),
		Value:      c.Value.Copy(),
		Acceptable: c.Acceptable,
		BT:         c.BT,
	}
	if c.BT.Prohibits != nil {
		n.BT.Prohibits = append([]PrefID(nil), c.BT.Prohibits...)
	}
	if c.Kind == ConjunctiveNegationCondition {
		n.NCC = c.NCC.Copy()
	}
	return n
}

// Equal reports structural equality, ignoring links and backtrace data.
func (c *Condition) Equal(o *Condition) bool {
	if c.Kind != o.Kind {
		return false
	}
	if c.Kind == ConjunctiveNegationCondition {
		return c.NCC.Equal(o.NCC)
	}
	return c.Acceptable == o.Acceptable &&
		c.ID.Equal(o.ID) && c.Attr.Equal(o.Attr) && c.Value.Equal(o.Value)
}

// Hash returns a structural hash consistent with Equal.
func (c *Condition) Hash() uint64 {
	d := xxhash.New()
	c.hash(d)
	return d.Sum64()
}

func (c *Condition) hash(d *xxhash.Digest) {
	_, _ = d.Write([]byte{byte(c.Kind)})
	if c.Kind == ConjunctiveNegationCondition {
		for n := c.NCC.Head; n != nil; n = n.Next {
			n.hash(d)
		}
		return
	}
	if c.Acceptable {
		_, _ = d.Write([]byte{1})
	}
	c.ID.hash(d)
	c.Attr.hash(d)
	c.Value.hash(d)
}

// Tests calls fn with each field test slot of c (not descending into NCCs).
func (c *Condition) Tests(fn func(slot **Test)) {
	if c.Kind == ConjunctiveNegationCondition {
		return
	}
	fn(&c.ID)
	fn(&c.Attr)
	fn(&c.Value)
}

// IDSymbol returns the symbol the id field is bound to, if any.
func (c *Condition) IDSymbol() *symtab.Symbol { return c.ID.EqualityReferent() }

// String renders c the way rules print it.
func (c *Condition) String() string {
	switch c.Kind {
	case ConjunctiveNegationCondition:
		parts := make([]string, 0, c.NCC.Len())
		for n := c.NCC.Head; n != nil; n = n.Next {
			parts = append(parts, n.String())
		}
		return "-{ " + strings.Join(parts, " ") + " }"
	case NegativeCondition:
		return "-" + c.body()
	default:
		return c.body()
	}
}

func (c *Condition) body() string {
	var sb strings.Builder
	sb.WriteString("(")
	switch {
	case c.ID.Includes(GoalIDTest):
		sb.WriteString("state ")
	case c.ID.Includes(ImpasseIDTest):
		sb.WriteString("impasse ")
	}
	sb.WriteString(c.ID.String())
	fmt.Fprintf(&sb, " ^%s %s", c.Attr.String(), c.Value.String())
	if c.Acceptable {
		sb.WriteString(" +")
	}
	sb.WriteString(")")
	return sb.String()
}

// ConditionList is a doubly linked sequence of conditions.
type ConditionList struct {
	Head *Condition
	Tail *Condition
}

// ListOf links conds, in order, into a new list.
func ListOf(conds ...*Condition) ConditionList {
	var l ConditionList
	for _, c := range conds {
		l.Append(c)
	}
	return l
}

// Append links c at the end of the list.
func (l *ConditionList) Append(c *Condition) {
	c.Next = nil
	c.Prev = l.Tail
	if l.Tail != nil {
		l.Tail.Next = c
	} else {
		l.Head = c
	}
	l.Tail = c
}

// Remove unlinks c from the list.
func (l *ConditionList) Remove(c *Condition) {
	if c.Prev != nil {
		c.Prev.Next = c.Next
	} else {
		l.Head = c.Next
	}
	if c.Next != nil {
		c.Next.Prev = c.Prev
	} else {
		l.Tail = c.Prev
	}
	c.Next, c.Prev = nil, nil
}

// Len counts the conditions.
func (l ConditionList) Len() int {
	n := 0
	for c := l.Head; c != nil; c = c.Next {
		n++
	}
	return n
}

// Slice returns the conditions in order.
func (l ConditionList) Slice() []*Condition {
	out := make([]*Condition, 0, 8)
	for c := l.Head; c != nil; c = c.Next {
		out = append(out, c)
	}
	return out
}

// Copy deep-copies every condition into a new list.
func (l ConditionList) Copy() ConditionList {
	var out ConditionList
	for c := l.Head; c != nil; c = c.Next {
		out.Append(c.Copy())
	}
	return out
}

// Equal compares two lists element-wise.
func (l ConditionList) Equal(o ConditionList) bool {
	a, b := l.Head, o.Head
	for a != nil && b != nil {
		if !a.Equal(b) {
			return false
		}
		a, b = a.Next, b.Next
	}
	return a == nil && b == nil
}

// String renders one condition per line.
func (l ConditionList) String() string {
	var sb strings.Builder
	for c := l.Head; c != nil; c = c.Next {
		sb.WriteString(c.String())
		if c.Next != nil {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
