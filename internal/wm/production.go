package wm

import (
	"fmt"
	"strings"

	"chunker/internal/symtab"
)

// ProductionType says where a rule came from.
type ProductionType uint8

const (
	UserProduction ProductionType = iota
	ChunkProduction
	JustificationProduction
)

func (t ProductionType) String() string {
	switch t {
	case ChunkProduction:
		return "chunk"
	case JustificationProduction:
		return "justification"
	default:
		return "user"
	}
}

// Action is a right-hand-side make-preference action.
type Action struct {
	Kind     PrefKind
	ID       *symtab.Symbol
	Attr     *symtab.Symbol
	Value    *symtab.Symbol
	Referent *symtab.Symbol
}

// Copy returns a copy of a.
func (a *Action) Copy() *Action {
	c := *a
	return &c
}

// Equal reports whether two actions are identical.
func (a *Action) Equal(o *Action) bool {
	return a.Kind == o.Kind && a.ID == o.ID && a.Attr == o.Attr && a.Value == o.Value && a.Referent == o.Referent
}

func (a *Action) String() string {
	if a.Kind.IsBinary() {
		return fmt.Sprintf("(%s ^%s %s %s %s)", a.ID, a.Attr, a.Value, a.Kind.Symbol(), a.Referent)
	}
	return fmt.Sprintf("(%s ^%s %s %s)", a.ID, a.Attr, a.Value, a.Kind.Symbol())
}

// CopyActions deep-copies a list of actions.
func CopyActions(actions []*Action) []*Action {
	out := make([]*Action, len(actions))
	for i, a := range actions {
		out[i] = a.Copy()
	}
	return out
}

// Production is a rule.
type Production struct {
	Name string
	Type ProductionType
	LHS  ConditionList
	RHS  []*Action
}

// String renders p in sp {...} form.
func (p *Production) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "sp {%s\n", p.Name)
	if p.Type != UserProduction {
		fmt.Fprintf(&sb, "   :%s\n", p.Type)
	}
	for c := p.LHS.Head; c != nil; c = c.Next {
		fmt.Fprintf(&sb, "   %s\n", c)
	}
	sb.WriteString("   -->\n")
	for _, a := range p.RHS {
		fmt.Fprintf(&sb, "   %s\n", a)
	}
	sb.WriteString("}")
	return sb.String()
}

// InsertResult is what production memory reports when a new rule is added.
type InsertResult uint8

const (
	// InsertAccepted means the rule was added and its instantiation matched.
	InsertAccepted InsertResult = iota
	// InsertDuplicate means a structurally identical rule already exists.
	InsertDuplicate
	// InsertRefractedMismatch means the rule does not match the instantiation
	// it was built from.
	InsertRefractedMismatch
)

func (r InsertResult) String() string {
	switch r {
	case InsertDuplicate:
		return "duplicate"
	case InsertRefractedMismatch:
		return "refracted-mismatch"
	default:
		return "accepted"
	}
}
