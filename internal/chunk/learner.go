// Package chunk turns the trace of a subgoal's rule firings into new rules.
//
// A build starts from one instantiation whose preferences reach above its match
// goal. The backtracer walks the firings that produced those results and sorts
// every matched condition into grounds, potentials and locals until nothing
// moves. The grounds become the new rule's left-hand side, identifiers are
// replaced by variables, and production memory decides whether the rule is new.
//
// A Learner belongs to one agent and is not safe for concurrent use. Each
// decision cycle opens a Cycle, which owns the per-cycle chunk counter.
package chunk

import (
	"chunker/internal/config"
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// Matcher is the production-memory service a build hands its rule to.
type Matcher interface {
	// Reorder puts lhs into match order, relinking the same condition nodes.
	Reorder(lhs *wm.ConditionList) error
	// Insert adds p, checking it against inst, the instantiation built with it.
	Insert(p *wm.Production, inst *wm.Instantiation, logName bool) wm.InsertResult
	// Excise removes p.
	Excise(p *wm.Production)
	// Find looks a rule up by name.
	Find(name string) (*wm.Production, bool)
}

// Recorder observes builds for the explanation facility. Every call receives
// conditions it must copy if it keeps them.
type Recorder interface {
	RecordBacktrace(rule string, traceCond *wm.Condition, grounds, potentials, locals, negated []*wm.Condition)
	RecordChunk(name string, lhs wm.ConditionList, rhs []*wm.Action, grounds wm.ConditionList)
	Discard()
}

// Option configures a Learner.
type Option func(*Learner)

// WithRecorder attaches an explanation recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Learner) { l.recorder = r }
}

// WithAgent labels the learner's metrics and log lines.
func WithAgent(name string) Option {
	return func(l *Learner) { l.agent = name }
}

// Learner is the per-agent chunking state.
type Learner struct {
	syms     *symtab.Table
	mem      *wm.Memory
	rules    Matcher
	recorder Recorder
	cfg      config.LearningConfig
	agent    string

	chunkCount         uint64
	justificationCount uint64
	backtraceNumber    uint64

	dontLearn  map[*symtab.Symbol]bool
	forceLearn map[*symtab.Symbol]bool

	quiescence *symtab.Symbol
	t          *symtab.Symbol
}

// New returns a Learner over an agent's symbols, memory and production memory.
// cfg is copied.
func New(syms *symtab.Table, mem *wm.Memory, rules Matcher, cfg config.LearningConfig, opts ...Option) *Learner {
	l := &Learner{
		syms:       syms,
		mem:        mem,
		rules:      rules,
		cfg:        cfg,
		agent:      "default",
		dontLearn:  make(map[*symtab.Symbol]bool),
		forceLearn: make(map[*symtab.Symbol]bool),
		quiescence: syms.String("quiescence"),
		t:          syms.String("t"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the learning policy in force.
func (l *Learner) Config() config.LearningConfig { return l.cfg }

// DontLearn adds goal to the don't-learn list consulted in "except" mode.
func (l *Learner) DontLearn(goal *symtab.Symbol) { l.dontLearn[goal] = true }

// RemoveDontLearn takes goal off the don't-learn list.
func (l *Learner) RemoveDontLearn(goal *symtab.Symbol) { delete(l.dontLearn, goal) }

// ForceLearn adds goal to the force-learn list consulted in "only" mode.
func (l *Learner) ForceLearn(goal *symtab.Symbol) { l.forceLearn[goal] = true }

// RemoveForceLearn takes goal off the force-learn list.
func (l *Learner) RemoveForceLearn(goal *symtab.Symbol) { delete(l.forceLearn, goal) }

// ChunkCount returns the number of chunk names handed out.
func (l *Learner) ChunkCount() uint64 { return l.chunkCount }

// JustificationCount returns the number of justification names handed out.
func (l *Learner) JustificationCount() uint64 { return l.justificationCount }

// shouldVariablize applies the learning mode to the build's match goal. In
// "only" mode the force-learn list alone decides; the bottom-up restriction
// applies to "on" and "except".
func (l *Learner) shouldVariablize(goal *symtab.Symbol) bool {
	switch l.cfg.Mode {
	case config.LearningOff:
		return false
	case config.LearningOnly:
		return l.forceLearn[goal]
	case config.LearningExcept:
		if l.dontLearn[goal] {
			return false
		}
	}
	if l.cfg.AllGoals {
		return true
	}
	return goal.Goal != nil && goal.Goal.AllowBottomUpChunks
}

// BeginCycle opens the chunking session for one decision cycle.
func (l *Learner) BeginCycle(decision uint64) *Cycle {
	return &Cycle{l: l, decision: decision}
}
