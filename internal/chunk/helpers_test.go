package chunk

import (
	"fmt"
	"testing"

	"chunker/internal/config"
	"chunker/internal/production"
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// fixture is a three-level goal stack: S1 on top, S2 an operator no-change
// below it, S3 a tie below S2.
type fixture struct {
	t     *testing.T
	tab   *symtab.Table
	mem   *wm.Memory
	rules *production.Memory
	rec   *recorder

	s1, s2, s3 *symtab.Symbol
}

func newFixture(t *testing.T) *fixture {
	tab := symtab.New()
	f := &fixture{
		t:     t,
		tab:   tab,
		mem:   wm.NewMemory(tab),
		rules: production.NewMemory(),
		rec:   &recorder{},
	}
	f.s1 = tab.NewGoal(1, nil, symtab.ImpasseNone, "")
	f.s2 = tab.NewGoal(2, f.s1, symtab.ImpasseNoChange, "operator")
	f.s3 = tab.NewGoal(3, f.s2, symtab.ImpasseTie, "")
	return f
}

func (f *fixture) learner(mutate ...func(*config.LearningConfig)) *Learner {
	cfg := config.DefaultLearningConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return New(f.tab, f.mem, f.rules, cfg, WithRecorder(f.rec), WithAgent(f.t.Name()))
}

func (f *fixture) sym(v interface{}) *symtab.Symbol {
	switch x := v.(type) {
	case *symtab.Symbol:
		return x
	case string:
		return f.tab.String(x)
	case int:
		return f.tab.Int(int64(x))
	}
	panic(fmt.Sprintf("unsupported symbol value %T", v))
}

// wme adds (id ^attr value) supported by pref.
func (f *fixture) wme(id *symtab.Symbol, attr string, value interface{}, pref *wm.Preference) *wm.WME {
	var pid wm.PrefID
	if pref != nil {
		pid = pref.Index
	}
	return f.mem.AddWME(id, f.sym(attr), f.sym(value), false, pid)
}

// match is the instantiated condition for a match of w.
func (f *fixture) match(w *wm.WME) *wm.Condition {
	return wm.MatchedCondition(w, w.ID.Level)
}

// fire records a firing of rule in goal.
func (f *fixture) fire(rule string, goal *symtab.Symbol, conds ...*wm.Condition) *wm.Instantiation {
	inst := f.mem.NewInstantiation(&wm.Production{Name: rule}, goal, goal.Level)
	inst.Conditions = wm.ListOf(conds...)
	return inst
}

func (f *fixture) prefer(inst *wm.Instantiation, id *symtab.Symbol, attr string, value interface{}) *wm.Preference {
	return f.mem.AddPreference(inst, wm.AcceptablePref, id, f.sym(attr), f.sym(value), nil)
}

// recorder captures what builds report to the explanation facility.
type recorder struct {
	backtraces []string
	results    int
	chunks     []string
	discards   int
}

func (r *recorder) RecordBacktrace(rule string, traceCond *wm.Condition, grounds, potentials, locals, negated []*wm.Condition) {
	if traceCond == nil {
		r.results++
	}
	r.backtraces = append(r.backtraces, rule)
}

func (r *recorder) RecordChunk(name string, lhs wm.ConditionList, rhs []*wm.Action, grounds wm.ConditionList) {
	r.chunks = append(r.chunks, name)
}

func (r *recorder) Discard() { r.discards++ }

// stubMatcher wraps production memory with overridable behavior.
type stubMatcher struct {
	*production.Memory
	reorderErr  error
	panicInsert bool
}

func (s *stubMatcher) Reorder(lhs *wm.ConditionList) error {
	if s.reorderErr != nil {
		return s.reorderErr
	}
	return s.Memory.Reorder(lhs)
}

func (s *stubMatcher) Insert(p *wm.Production, inst *wm.Instantiation, logName bool) wm.InsertResult {
	if s.panicInsert {
		panic("insert exploded")
	}
	return s.Memory.Insert(p, inst, logName)
}
