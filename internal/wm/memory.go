package wm

import (
	"chunker/internal/symtab"
)

// Memory is the read model the chunker consumes: the symbol table, the arena of
// instantiations and preferences, the WMEs, and an index of preferences by
// identifier used to follow result substructure.
type Memory struct {
	*Arena
	Symbols *symtab.Table

	wmes     []*WME
	wmesByID map[*symtab.Symbol][]*WME
	byID     map[*symtab.Symbol][]PrefID
	timetag  uint64
}

// NewMemory returns an empty memory over syms.
func NewMemory(syms *symtab.Table) *Memory {
	return &Memory{
		Arena:    NewArena(),
		Symbols:  syms,
		wmesByID: make(map[*symtab.Symbol][]*WME),
		byID:     make(map[*symtab.Symbol][]PrefID),
	}
}

// AddWME creates a WME supported by pref (zero for input).
func (m *Memory) AddWME(id, attr, value *symtab.Symbol, acceptable bool, pref PrefID) *WME {
	m.timetag++
	w := &WME{
		ID:         id,
		Attr:       attr,
		Value:      value,
		Acceptable: acceptable,
		Timetag:    m.timetag,
		Preference: pref,
	}
	m.wmes = append(m.wmes, w)
	m.wmesByID[id] = append(m.wmesByID[id], w)
	return w
}

// AddPreference creates a preference generated by inst and indexes it by its
// identifier.
func (m *Memory) AddPreference(inst *Instantiation, kind PrefKind, id, attr, value, referent *symtab.Symbol) *Preference {
	p := m.NewPreference(inst, kind, id, attr, value, referent)
	m.byID[id] = append(m.byID[id], p.Index)
	return p
}

// PreferencesFor returns the live preferences asserted on id.
func (m *Memory) PreferencesFor(id *symtab.Symbol) []*Preference {
	ids := m.byID[id]
	out := make([]*Preference, 0, len(ids))
	for _, pid := range ids {
		if p := m.Pref(pid); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// WMEs returns all WMEs in creation order.
func (m *Memory) WMEs() []*WME { return m.wmes }

// WMEsFor returns the WMEs whose identifier is id.
func (m *Memory) WMEsFor(id *symtab.Symbol) []*WME { return m.wmesByID[id] }

// MatchedCondition builds the positive instantiated condition recording a match
// of w at the given goal level.
func MatchedCondition(w *WME, level int) *Condition {
	c := Positive(Equality(w.ID), Equality(w.Attr), Equality(w.Value))
	c.Acceptable = w.Acceptable
	c.BT = Backtrace{WME: w, Level: level, Trace: w.Preference}
	return c
}
