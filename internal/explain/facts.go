package explain

import (
	"fmt"

	"chunker/internal/mangle"
)

// factSchema describes filed chunks as Datalog. why_included names the
// firing that tested each ground; caused links a firing to the one that
// matched the WME it created.
const factSchema = `
Decl chunk(Name) bound [/string].
Decl chunk_ground(Name, Index, Cond) bound [/string, /number, /string].
Decl backtrace_step(Name, Step, Rule, TraceCond) bound [/string, /number, /string, /string].
Decl step_cond(Name, Step, Kind, Cond) bound [/string, /number, /string, /string].
Decl why_included(Name, Cond, Rule) bound [/string, /string, /string].
Decl caused(Name, Rule, Next) bound [/string, /string, /string].

why_included(Name, Cond, Rule) :-
  chunk_ground(Name, _, Cond),
  step_cond(Name, Step, "ground", Cond),
  backtrace_step(Name, Step, Rule, _).
why_included(Name, Cond, Rule) :-
  chunk_ground(Name, _, Cond),
  step_cond(Name, Step, "potential", Cond),
  backtrace_step(Name, Step, Rule, _).

caused(Name, Rule, Next) :-
  backtrace_step(Name, _, Rule, Trace),
  step_cond(Name, Other, "local", Trace),
  backtrace_step(Name, Other, Next, _).
caused(Name, Rule, Next) :-
  backtrace_step(Name, _, Rule, Trace),
  step_cond(Name, Other, "potential", Trace),
  backtrace_step(Name, Other, Next, _).
`

// Inclusion names the firing that tested a ground.
type Inclusion struct {
	Cond string
	Rule string
}

// Cause says that Rule created a WME that Next matched.
type Cause struct {
	Rule string
	Next string
}

// Facts is a Datalog projection of filed chunks.
type Facts struct {
	engine *mangle.Engine
}

// NewFacts returns an empty projection.
func NewFacts() (*Facts, error) {
	e := mangle.NewEngine(mangle.DefaultConfig())
	if err := e.LoadSchemaString(factSchema); err != nil {
		return nil, fmt.Errorf("loading explanation schema: %w", err)
	}
	return &Facts{engine: e}, nil
}

// Load adds c to the projection. Steps are numbered oldest first.
func (f *Facts) Load(c *Chunk) error {
	facts := []mangle.Fact{{Predicate: "chunk", Args: []interface{}{c.Name}}}
	for i, g := range c.Grounds {
		facts = append(facts, mangle.Fact{Predicate: "chunk_ground", Args: []interface{}{c.Name, i + 1, g}})
	}
	n := len(c.Backtraces)
	for i, rec := range c.Backtraces {
		step := n - i
		facts = append(facts, mangle.Fact{Predicate: "backtrace_step", Args: []interface{}{c.Name, step, rec.Rule, rec.TraceCond}})
		for _, kind := range []struct {
			name  string
			conds []string
		}{
			{"ground", rec.Grounds},
			{"potential", rec.Potentials},
			{"local", rec.Locals},
			{"negated", rec.Negated},
		} {
			for _, cond := range kind.conds {
				facts = append(facts, mangle.Fact{Predicate: "step_cond", Args: []interface{}{c.Name, step, kind.name, cond}})
			}
		}
	}
	return f.engine.AddFacts(facts)
}

// WhyIncluded returns, for every ground of the named chunk, the firings that
// tested it.
func (f *Facts) WhyIncluded(name string) ([]Inclusion, error) {
	facts, err := f.engine.QueryFacts("why_included", name)
	if err != nil {
		return nil, err
	}
	out := make([]Inclusion, 0, len(facts))
	for _, fact := range facts {
		out = append(out, Inclusion{Cond: str(fact.Args[1]), Rule: str(fact.Args[2])})
	}
	return out, nil
}

// Caused returns the firing-to-firing links of the named chunk.
func (f *Facts) Caused(name string) ([]Cause, error) {
	facts, err := f.engine.QueryFacts("caused", name)
	if err != nil {
		return nil, err
	}
	out := make([]Cause, 0, len(facts))
	for _, fact := range facts {
		out = append(out, Cause{Rule: str(fact.Args[1]), Next: str(fact.Args[2])})
	}
	return out, nil
}

// Stats reports the projection's fact counts.
func (f *Facts) Stats() mangle.Stats { return f.engine.GetStats() }

// Reset drops every projected chunk.
func (f *Facts) Reset() { f.engine.Clear() }

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
