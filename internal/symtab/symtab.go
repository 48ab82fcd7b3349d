// Package symtab provides the interned, reference-counted terms shared by the
// working-memory model and the chunker: identifiers, constants and variables.
//
// The table is agent-local and not safe for concurrent use. Transitive-closure
// numbers come from a single monotonically increasing counter so a mark left on
// an identifier by an earlier traversal never matches a later one.
package symtab

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the symbol variants.
type Kind uint8

const (
	IdentifierKind Kind = iota
	StringKind
	IntKind
	FloatKind
	VariableKind
)

func (k Kind) String() string {
	switch k {
	case IdentifierKind:
		return "identifier"
	case StringKind:
		return "string"
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case VariableKind:
		return "variable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TC is a transitive-closure number. Zero never marks anything.
type TC uint64

// ImpasseType names the kind of impasse a goal was created for.
type ImpasseType uint8

const (
	ImpasseNone ImpasseType = iota
	ImpasseConstraintFailure
	ImpasseConflict
	ImpasseTie
	ImpasseNoChange
)

// Goal holds the goal-stack data of a goal identifier.
type Goal struct {
	Higher  *Symbol
	Impasse ImpasseType
	// ImpasseAttr is the attribute of the impasse (^operator or ^state) for
	// no-change impasses.
	ImpasseAttr string
	// AllowBottomUpChunks is cleared on superior goals once a subgoal returns
	// results.
	AllowBottomUpChunks bool
}

// Symbol is an interned term.
type Symbol struct {
	Kind Kind

	// Name holds the text of string constants and variables.
	Name  string
	Int   int64
	Float float64

	// Identifier fields.
	Letter     byte
	Number     uint64
	Level      int
	IsaGoal    bool
	IsaImpasse bool
	Goal       *Goal

	// Per-traversal scratch used by the chunker.
	TC             TC
	Variablization *Symbol

	refs  int
	table *Table
}

// IsIdentifier reports whether s is an identifier.
func (s *Symbol) IsIdentifier() bool { return s != nil && s.Kind == IdentifierKind }

// IsVariable reports whether s is a variable.
func (s *Symbol) IsVariable() bool { return s != nil && s.Kind == VariableKind }

// Refs returns the current reference count.
func (s *Symbol) Refs() int { return s.refs }

// NameLetter returns the lowercase letter used to prefix variables generated
// for this identifier.
func (s *Symbol) NameLetter() byte {
	if s.Letter >= 'A' && s.Letter <= 'Z' {
		return s.Letter - 'A' + 'a'
	}
	if s.Letter >= 'a' && s.Letter <= 'z' {
		return s.Letter
	}
	return 'x'
}

func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	switch s.Kind {
	case IdentifierKind:
		return fmt.Sprintf("%c%d", s.Letter, s.Number)
	case StringKind:
		if needsQuoting(s.Name) {
			return "|" + s.Name + "|"
		}
		return s.Name
	case IntKind:
		return strconv.FormatInt(s.Int, 10)
	case FloatKind:
		return strconv.FormatFloat(s.Float, 'g', -1, 64)
	case VariableKind:
		return s.Name
	}
	return "?"
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return strings.ContainsAny(s, " \t\n|<>()^")
}

type floatKey uint64

// Table interns constants and variables and mints identifiers.
type Table struct {
	strings   map[string]*Symbol
	ints      map[int64]*Symbol
	floats    map[floatKey]*Symbol
	variables map[string]*Symbol
	ids       map[string]*Symbol
	idCounter map[byte]uint64
	tc        TC
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{
		strings:   make(map[string]*Symbol),
		ints:      make(map[int64]*Symbol),
		floats:    make(map[floatKey]*Symbol),
		variables: make(map[string]*Symbol),
		ids:       make(map[string]*Symbol),
		idCounter: make(map[byte]uint64),
	}
}

// NewTC returns a fresh transitive-closure number.
func (t *Table) NewTC() TC {
	t.tc++
	return t.tc
}

// NewIdentifier mints a new identifier with the given name letter at the given
// goal-stack level. The returned symbol holds one reference.
func (t *Table) NewIdentifier(letter byte, level int) *Symbol {
	if letter >= 'a' && letter <= 'z' {
		letter = letter - 'a' + 'A'
	}
	if letter < 'A' || letter > 'Z' {
		letter = 'I'
	}
	t.idCounter[letter]++
	s := &Symbol{
		Kind:   IdentifierKind,
		Letter: letter,
		Number: t.idCounter[letter],
		Level:  level,
		refs:   1,
		table:  t,
	}
	t.ids[s.String()] = s
	return s
}

// NewGoal mints a goal identifier below higher (nil for the top state).
func (t *Table) NewGoal(level int, higher *Symbol, impasse ImpasseType, impasseAttr string) *Symbol {
	s := t.NewIdentifier('S', level)
	s.IsaGoal = true
	s.Goal = &Goal{
		Higher:              higher,
		Impasse:             impasse,
		ImpasseAttr:         impasseAttr,
		AllowBottomUpChunks: true,
	}
	return s
}

// FindIdentifier returns the identifier with the given printed name, if any.
func (t *Table) FindIdentifier(name string) (*Symbol, bool) {
	s, ok := t.ids[strings.ToUpper(name)]
	return s, ok
}

// String interns a string constant and adds a reference to it.
func (t *Table) String(v string) *Symbol {
	if s, ok := t.strings[v]; ok {
		s.refs++
		return s
	}
	s := &Symbol{Kind: StringKind, Name: v, refs: 1, table: t}
	t.strings[v] = s
	return s
}

// Int interns an integer constant and adds a reference to it.
func (t *Table) Int(v int64) *Symbol {
	if s, ok := t.ints[v]; ok {
		s.refs++
		return s
	}
	s := &Symbol{Kind: IntKind, Int: v, refs: 1, table: t}
	t.ints[v] = s
	return s
}

// Float interns a float constant and adds a reference to it.
func (t *Table) Float(v float64) *Symbol {
	k := floatKey(math.Float64bits(v))
	if s, ok := t.floats[k]; ok {
		s.refs++
		return s
	}
	s := &Symbol{Kind: FloatKind, Float: v, refs: 1, table: t}
	t.floats[k] = s
	return s
}

// Variable interns a variable and adds a reference to it. Names are written
// with their angle brackets, e.g. "<s1>".
func (t *Table) Variable(name string) *Symbol {
	if s, ok := t.variables[name]; ok {
		s.refs++
		return s
	}
	s := &Symbol{Kind: VariableKind, Name: name, refs: 1, table: t}
	t.variables[name] = s
	return s
}

// FindVariable looks up a variable without adding a reference.
func (t *Table) FindVariable(name string) (*Symbol, bool) {
	s, ok := t.variables[name]
	return s, ok
}

// AddRef adds a reference to s.
func AddRef(s *Symbol) {
	if s != nil {
		s.refs++
	}
}

// Release drops a reference to s. Constants and variables whose count reaches
// zero leave the intern table.
func Release(s *Symbol) {
	if s == nil || s.refs == 0 {
		return
	}
	s.refs--
	if s.refs > 0 || s.table == nil {
		return
	}
	t := s.table
	switch s.Kind {
	case StringKind:
		delete(t.strings, s.Name)
	case IntKind:
		delete(t.ints, s.Int)
	case FloatKind:
		delete(t.floats, floatKey(math.Float64bits(s.Float)))
	case VariableKind:
		delete(t.variables, s.Name)
	case IdentifierKind:
		delete(t.ids, s.String())
	}
}

// Len returns the number of live interned symbols.
func (t *Table) Len() int {
	return len(t.strings) + len(t.ints) + len(t.floats) + len(t.variables) + len(t.ids)
}
