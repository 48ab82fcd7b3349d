package chunk

import (
	"chunker/internal/logging"
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// resultCollector gathers the preferences a build returns: everything the
// instantiation asserted on identifiers above its match goal, plus the
// substructure those preferences point at.
type resultCollector struct {
	b     *build
	level int
	tc    symtab.TC
}

func (b *build) collectResults() {
	r := &resultCollector{b: b, level: b.inst.MatchGoalLevel, tc: b.l.syms.NewTC()}
	for _, pid := range b.inst.Preferences {
		p := b.l.mem.Pref(pid)
		if p == nil {
			continue
		}
		if p.ID.Level < r.level && p.ID.TC != r.tc {
			r.add(p)
		}
	}
}

func (r *resultCollector) add(p *wm.Preference) {
	for _, q := range r.b.results {
		if q.SameAs(p) {
			return
		}
	}

	// A preference asserted at another level is replaced by its clone at the
	// match goal's level. Without such a clone it is not a result.
	if inst := r.b.l.mem.Inst(p.Inst); inst == nil || inst.MatchGoalLevel != r.level {
		clone := cloneForLevel(r.b.l.mem, p.Index, r.level)
		if clone == nil {
			logging.ChunkDebug("preference %s has no clone at level %d, not a result", p, r.level)
			return
		}
		p = clone
	}

	r.b.results = append(r.b.results, p)
	r.follow(p.Value)
	if p.Kind.IsBinary() {
		r.follow(p.Referent)
	}
}

// follow adds the preferences on a returned identifier's substructure.
func (r *resultCollector) follow(s *symtab.Symbol) {
	if !s.IsIdentifier() || s.Level < r.level || s.TC == r.tc {
		return
	}
	s.TC = r.tc

	mem := r.b.l.mem
	for _, w := range mem.WMEsFor(s) {
		r.follow(w.Value)
	}
	for _, p := range mem.PreferencesFor(s) {
		r.add(p)
	}
	for _, pid := range r.b.inst.Preferences {
		if p := mem.Pref(pid); p != nil && p.ID == s {
			r.add(p)
		}
	}
}

// cloneForLevel returns the member of id's clone chain asserted by an
// instantiation at the given level.
func cloneForLevel(mem *wm.Memory, id wm.PrefID, level int) *wm.Preference {
	p := mem.Pref(id)
	if p == nil {
		return nil
	}
	if inst := mem.Inst(p.Inst); inst != nil && inst.MatchGoalLevel == level {
		return p
	}
	for _, c := range mem.Clones(p) {
		if inst := mem.Inst(c.Inst); inst != nil && inst.MatchGoalLevel == level {
			return c
		}
	}
	return nil
}
