// Package scenario loads a YAML description of a goal stack, its working
// memory and a history of rule firings, and turns it into a ready agent whose
// seed firings can be chunked.
//
// Example:
//
//	name: blocks
//	goals:
//	  - name: S1
//	  - name: S2
//	    superstate: S1
//	    impasse: no-change
//	    attribute: operator
//	wmes:
//	  size: [S1, size, 3]
//	firings:
//	  - rule: elaborate
//	    goal: S2
//	    match: [size]
//	    make:
//	      - {wme: big, pref: [S2, big, "yes"]}
//	  - rule: return
//	    goal: S2
//	    match: [big]
//	    make:
//	      - pref: [S1, answer, 42]
//	chunk: [return]
package scenario

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"chunker/internal/chunk"
	"chunker/internal/config"
	"chunker/internal/logging"
	"chunker/internal/production"
	"chunker/internal/symtab"
	"chunker/internal/wm"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Scenario is the parsed file.
type Scenario struct {
	Name     string `yaml:"name"`
	Decision uint64 `yaml:"decision"`

	// Learning overrides fields of the configured learning policy.
	Learning yaml.Node `yaml:"learning"`

	Goals       []Goal              `yaml:"goals"`
	Identifiers []Identifier        `yaml:"identifiers"`
	WMEs        map[string][]any    `yaml:"wmes"`
	Firings     []Firing            `yaml:"firings"`
	Chunk       []string            `yaml:"chunk"`
	DontLearn   []string            `yaml:"dont_learn"`
	ForceLearn  []string            `yaml:"force_learn"`
	Expect      map[string][]string `yaml:"expect"` // seed rule -> outcomes, for tests and the CLI's --check
}

// Goal is one state of the goal stack. Goals are listed top first.
type Goal struct {
	Name       string `yaml:"name"`
	Superstate string `yaml:"superstate"`
	Impasse    string `yaml:"impasse"`   // tie, conflict, constraint-failure, no-change
	Attribute  string `yaml:"attribute"` // operator or state
}

// Identifier is a non-goal identifier.
type Identifier struct {
	Name    string `yaml:"name"`
	Level   int    `yaml:"level"`
	Impasse bool   `yaml:"impasse"`
}

// Firing is one rule instantiation.
type Firing struct {
	Rule    string      `yaml:"rule"`
	Goal    string      `yaml:"goal"`
	Match   []string    `yaml:"match"`   // WME names, in condition order
	Negated [][]any     `yaml:"negated"` // (id attr value) triples that did not match
	Nots    [][2]string `yaml:"nots"`
	Make    []Make      `yaml:"make"`
	// NoVariablize marks the firing's rule as one whose results may not be
	// generalized.
	NoVariablize bool `yaml:"no_variablize"`
}

// Make is one preference a firing asserted.
type Make struct {
	Kind string `yaml:"kind"` // acceptable when empty
	Pref []any  `yaml:"pref"` // id attr value [referent]
	// WME names the working-memory element the preference supports. Empty
	// when the preference never made it into working memory.
	WME string `yaml:"wme"`
}

// Agent is a loaded scenario.
type Agent struct {
	ID       uuid.UUID
	Name     string
	Decision uint64

	Syms    *symtab.Table
	Memory  *wm.Memory
	Rules   *production.Memory
	Learner *chunk.Learner

	// Seeds are the firings to chunk, in file order.
	Seeds  []*wm.Instantiation
	Expect map[string][]string
}

// Load reads and parses the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse parses a scenario.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario has no name")
	}
	if len(s.Goals) == 0 {
		return nil, fmt.Errorf("scenario %s has no goals", s.Name)
	}
	if len(s.Chunk) == 0 {
		return nil, fmt.Errorf("scenario %s has nothing to chunk", s.Name)
	}
	if s.Decision == 0 {
		s.Decision = 1
	}
	return &s, nil
}

// LearningConfig applies the scenario's overrides to base.
func (s *Scenario) LearningConfig(base config.LearningConfig) (config.LearningConfig, error) {
	cfg := base
	if s.Learning.Kind != 0 {
		if err := s.Learning.Decode(&cfg); err != nil {
			return base, fmt.Errorf("scenario %s: learning: %w", s.Name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return cfg, nil
}

// Build creates the agent: symbols, working memory, the recorded firings and
// a learner over a fresh production memory.
func (s *Scenario) Build(base config.LearningConfig, opts ...chunk.Option) (*Agent, error) {
	cfg, err := s.LearningConfig(base)
	if err != nil {
		return nil, err
	}

	b := &builder{
		s:       s,
		syms:    symtab.New(),
		names:   make(map[string]*symtab.Symbol),
		wmes:    make(map[string]*wm.WME),
		firings: make(map[string]*wm.Instantiation),
	}
	b.mem = wm.NewMemory(b.syms)
	rules := production.NewMemory()

	if err := b.goals(); err != nil {
		return nil, err
	}
	if err := b.identifiers(); err != nil {
		return nil, err
	}
	if err := b.topWMEs(); err != nil {
		return nil, err
	}
	for i := range s.Firings {
		if err := b.fire(&s.Firings[i]); err != nil {
			return nil, err
		}
		// Recorded rules go into production memory as user rules so that
		// learned rules are listed beside them.
		if _, ok := rules.Find(s.Firings[i].Rule); !ok {
			if err := rules.Add(&wm.Production{Name: s.Firings[i].Rule, Type: wm.UserProduction}); err != nil {
				return nil, err
			}
		}
	}

	opts = append([]chunk.Option{chunk.WithAgent(s.Name)}, opts...)
	a := &Agent{
		ID:       uuid.New(),
		Name:     s.Name,
		Decision: s.Decision,
		Syms:     b.syms,
		Memory:   b.mem,
		Rules:    rules,
		Learner:  chunk.New(b.syms, b.mem, rules, cfg, opts...),
		Expect:   s.Expect,
	}

	for _, name := range s.Chunk {
		inst, ok := b.firings[name]
		if !ok {
			return nil, fmt.Errorf("scenario %s: chunk: no firing of %s", s.Name, name)
		}
		a.Seeds = append(a.Seeds, inst)
	}
	for _, g := range s.DontLearn {
		sym, err := b.goal(g)
		if err != nil {
			return nil, err
		}
		a.Learner.DontLearn(sym)
	}
	for _, g := range s.ForceLearn {
		sym, err := b.goal(g)
		if err != nil {
			return nil, err
		}
		a.Learner.ForceLearn(sym)
	}

	logging.KernelDebug("scenario %s loaded: %d wmes, %d firings, %d seeds", s.Name, len(b.wmes), len(s.Firings), len(a.Seeds))
	return a, nil
}

// Run chunks every seed in one decision cycle and returns the reports.
func (a *Agent) Run() []chunk.BuildReport {
	c := a.Learner.BeginCycle(a.Decision)
	var reports []chunk.BuildReport
	for _, seed := range a.Seeds {
		reports = append(reports, c.Chunk(seed)...)
	}
	return reports
}

// Check compares the outcomes of each seed's builds with the expectations.
func (a *Agent) Check(reports []chunk.BuildReport) error {
	got := make(map[string][]string)
	for _, r := range reports {
		got[r.Source] = append(got[r.Source], r.Outcome.String())
	}
	for rule, want := range a.Expect {
		have := got[rule]
		if fmt.Sprint(have) != fmt.Sprint(want) {
			return fmt.Errorf("%s: %s: expected %v, got %v", a.Name, rule, want, have)
		}
	}
	return nil
}

type builder struct {
	s       *Scenario
	syms    *symtab.Table
	mem     *wm.Memory
	names   map[string]*symtab.Symbol
	wmes    map[string]*wm.WME
	firings map[string]*wm.Instantiation
}

func (b *builder) errorf(format string, args ...any) error {
	return fmt.Errorf("scenario %s: %s", b.s.Name, fmt.Sprintf(format, args...))
}

func (b *builder) goals() error {
	for i, g := range b.s.Goals {
		var higher *symtab.Symbol
		if g.Superstate != "" {
			var ok bool
			if higher, ok = b.names[g.Superstate]; !ok || !higher.IsaGoal {
				return b.errorf("goal %s: unknown superstate %s", g.Name, g.Superstate)
			}
		}
		impasse, err := parseImpasse(g.Impasse)
		if err != nil {
			return b.errorf("goal %s: %v", g.Name, err)
		}
		if _, dup := b.names[g.Name]; dup || g.Name == "" {
			return b.errorf("goal %d: missing or duplicate name %q", i+1, g.Name)
		}
		b.names[g.Name] = b.syms.NewGoal(i+1, higher, impasse, g.Attribute)
	}
	return nil
}

func (b *builder) identifiers() error {
	for _, id := range b.s.Identifiers {
		if _, dup := b.names[id.Name]; dup || id.Name == "" {
			return b.errorf("missing or duplicate identifier name %q", id.Name)
		}
		if id.Level < 1 {
			return b.errorf("identifier %s: level must be >= 1", id.Name)
		}
		sym := b.syms.NewIdentifier(id.Name[0], id.Level)
		sym.IsaImpasse = id.Impasse
		b.names[id.Name] = sym
	}
	return nil
}

func (b *builder) goal(name string) (*symtab.Symbol, error) {
	sym, ok := b.names[name]
	if !ok || !sym.IsaGoal {
		return nil, b.errorf("unknown goal %s", name)
	}
	return sym, nil
}

// topWMEs adds the WMEs no recorded firing supports, in name order.
func (b *builder) topWMEs() error {
	names := make([]string, 0, len(b.s.WMEs))
	for name := range b.s.WMEs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id, attr, value, _, err := b.triple(b.s.WMEs[name], false)
		if err != nil {
			return b.errorf("wme %s: %v", name, err)
		}
		if err := b.addWME(name, id, attr, value, nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addWME(name string, id, attr, value *symtab.Symbol, pref *wm.Preference) error {
	if _, dup := b.wmes[name]; dup {
		return b.errorf("duplicate wme name %s", name)
	}
	if !id.IsIdentifier() {
		return b.errorf("wme %s: id %s is not an identifier", name, id)
	}
	var pid wm.PrefID
	if pref != nil {
		pid = pref.Index
	}
	b.wmes[name] = b.mem.AddWME(id, attr, value, false, pid)
	return nil
}

func (b *builder) fire(f *Firing) error {
	goal, ok := b.names[f.Goal]
	if !ok || !goal.IsaGoal {
		return b.errorf("firing %s: unknown goal %s", f.Rule, f.Goal)
	}

	inst := b.mem.NewInstantiation(&wm.Production{Name: f.Rule, Type: wm.UserProduction}, goal, goal.Level)
	inst.OkayToVariablize = !f.NoVariablize

	var conds []*wm.Condition
	for _, name := range f.Match {
		w, ok := b.wmes[name]
		if !ok {
			return b.errorf("firing %s: unknown wme %s", f.Rule, name)
		}
		conds = append(conds, wm.MatchedCondition(w, w.ID.Level))
	}
	for _, t := range f.Negated {
		id, attr, value, _, err := b.triple(t, false)
		if err != nil {
			return b.errorf("firing %s: negated: %v", f.Rule, err)
		}
		conds = append(conds, wm.Negative(wm.Equality(id), wm.Equality(attr), wm.Equality(value)))
	}
	inst.Conditions = wm.ListOf(conds...)

	for _, n := range f.Nots {
		s1, ok1 := b.names[n[0]]
		s2, ok2 := b.names[n[1]]
		if !ok1 || !ok2 {
			return b.errorf("firing %s: not %v names an unknown identifier", f.Rule, n)
		}
		inst.Nots = append(inst.Nots, wm.Not{S1: s1, S2: s2})
	}

	for _, m := range f.Make {
		kind, err := parsePrefKind(m.Kind)
		if err != nil {
			return b.errorf("firing %s: %v", f.Rule, err)
		}
		id, attr, value, referent, err := b.triple(m.Pref, kind.IsBinary())
		if err != nil {
			return b.errorf("firing %s: pref: %v", f.Rule, err)
		}
		p := b.mem.AddPreference(inst, kind, id, attr, value, referent)
		if m.WME != "" {
			if err := b.addWME(m.WME, id, attr, value, p); err != nil {
				return err
			}
		}
	}

	// A later firing of the same rule shadows the earlier one for chunk:.
	b.firings[f.Rule] = inst
	return nil
}

// triple resolves [id attr value] or, for binary preferences,
// [id attr value referent].
func (b *builder) triple(raw []any, binary bool) (id, attr, value, referent *symtab.Symbol, err error) {
	want := 3
	if binary {
		want = 4
	}
	if len(raw) != want {
		return nil, nil, nil, nil, fmt.Errorf("expected %d elements, got %d", want, len(raw))
	}
	syms := make([]*symtab.Symbol, len(raw))
	for i, v := range raw {
		if syms[i], err = b.symbol(v); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	if binary {
		referent = syms[3]
	}
	return syms[0], syms[1], syms[2], referent, nil
}

// symbol interns a YAML scalar. Names of goals and identifiers resolve to
// those identifiers; everything else is a constant.
func (b *builder) symbol(v any) (*symtab.Symbol, error) {
	switch x := v.(type) {
	case string:
		if sym, ok := b.names[x]; ok {
			return sym, nil
		}
		return b.syms.String(x), nil
	case int:
		return b.syms.Int(int64(x)), nil
	case int64:
		return b.syms.Int(x), nil
	case float64:
		return b.syms.Float(x), nil
	case bool:
		return b.syms.String(strconv.FormatBool(x)), nil
	}
	return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
}

func parseImpasse(s string) (symtab.ImpasseType, error) {
	switch s {
	case "", "none":
		return symtab.ImpasseNone, nil
	case "constraint-failure":
		return symtab.ImpasseConstraintFailure, nil
	case "conflict":
		return symtab.ImpasseConflict, nil
	case "tie":
		return symtab.ImpasseTie, nil
	case "no-change":
		return symtab.ImpasseNoChange, nil
	}
	return symtab.ImpasseNone, fmt.Errorf("unknown impasse %q", s)
}

func parsePrefKind(s string) (wm.PrefKind, error) {
	if s == "" {
		return wm.AcceptablePref, nil
	}
	for k := wm.AcceptablePref; k <= wm.NumericIndifferentPref; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown preference kind %q", s)
}
