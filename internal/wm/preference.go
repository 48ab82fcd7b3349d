package wm

import (
	"fmt"

	"chunker/internal/symtab"
)

// WME is a working-memory element. WMEs are owned by the working-memory layer;
// the chunker only reads them.
type WME struct {
	ID         *symtab.Symbol
	Attr       *symtab.Symbol
	Value      *symtab.Symbol
	Acceptable bool
	Timetag    uint64
	// Preference is the preference supporting the WME, zero for input WMEs.
	Preference PrefID
}

func (w *WME) String() string {
	acc := ""
	if w.Acceptable {
		acc = " +"
	}
	return fmt.Sprintf("(%d: %s ^%s %s%s)", w.Timetag, w.ID, w.Attr, w.Value, acc)
}

// PrefKind is the kind of a preference.
type PrefKind uint8

const (
	AcceptablePref PrefKind = iota
	RequirePref
	RejectPref
	ProhibitPref
	ReconsiderPref
	UnaryIndifferentPref
	BestPref
	WorstPref
	BetterPref
	WorsePref
	BinaryIndifferentPref
	NumericIndifferentPref
)

var prefKindNames = map[PrefKind]string{
	AcceptablePref:         "acceptable",
	RequirePref:            "require",
	RejectPref:             "reject",
	ProhibitPref:           "prohibit",
	ReconsiderPref:         "reconsider",
	UnaryIndifferentPref:   "indifferent",
	BestPref:               "best",
	WorstPref:              "worst",
	BetterPref:             "better",
	WorsePref:              "worse",
	BinaryIndifferentPref:  "binary-indifferent",
	NumericIndifferentPref: "numeric-indifferent",
}

var prefKindSymbols = map[PrefKind]string{
	AcceptablePref:         "+",
	RequirePref:            "!",
	RejectPref:             "-",
	ProhibitPref:           "~",
	ReconsiderPref:         "@",
	UnaryIndifferentPref:   "=",
	BestPref:               ">",
	WorstPref:              "<",
	BetterPref:             ">",
	WorsePref:              "<",
	BinaryIndifferentPref:  "=",
	NumericIndifferentPref: "=",
}

func (k PrefKind) String() string {
	if s, ok := prefKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("pref(%d)", uint8(k))
}

// ParsePrefKind maps a kind name back to its PrefKind.
func ParsePrefKind(name string) (PrefKind, error) {
	for k, n := range prefKindNames {
		if n == name {
			return k, nil
		}
	}
	if name == "" {
		return AcceptablePref, nil
	}
	return 0, fmt.Errorf("unknown preference kind %q", name)
}

// Symbol returns the printed preference marker.
func (k PrefKind) Symbol() string { return prefKindSymbols[k] }

// IsBinary reports whether preferences of this kind carry a referent.
func (k PrefKind) IsBinary() bool {
	return k == BetterPref || k == WorsePref || k == BinaryIndifferentPref || k == NumericIndifferentPref
}

// PrefID addresses a preference in an Arena. Zero is "no preference".
type PrefID uint32

// Preference is a candidate assignment asserted by an instantiation.
type Preference struct {
	Index    PrefID
	Kind     PrefKind
	ID       *symtab.Symbol
	Attr     *symtab.Symbol
	Value    *symtab.Symbol
	Referent *symtab.Symbol

	Inst InstID

	NextClone PrefID
	PrevClone PrefID
}

// SameAs reports whether p and o assert the same thing.
func (p *Preference) SameAs(o *Preference) bool {
	if p.Kind != o.Kind || p.ID != o.ID || p.Attr != o.Attr || p.Value != o.Value {
		return false
	}
	if p.Kind.IsBinary() {
		return p.Referent == o.Referent
	}
	return true
}

func (p *Preference) String() string {
	if p.Kind.IsBinary() {
		return fmt.Sprintf("(%s ^%s %s %s %s)", p.ID, p.Attr, p.Value, p.Kind.Symbol(), p.Referent)
	}
	return fmt.Sprintf("(%s ^%s %s %s)", p.ID, p.Attr, p.Value, p.Kind.Symbol())
}
