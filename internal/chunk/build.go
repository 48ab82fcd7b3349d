package chunk

import (
	"errors"
	"fmt"
	"time"

	"chunker/internal/logging"
	"chunker/internal/symtab"
	"chunker/internal/wm"

	"github.com/google/uuid"
)

// wmeMark records what one build has already done with a matched WME.
type wmeMark struct {
	grounds    bool
	potentials bool
	locals     bool
	// btPref is the preference the WME was last traced through; a WME reached
	// again through a different preference is traced again.
	btPref wm.PrefID
}

// build is the state of one chunk build. It lives for a single call to
// Cycle.run.
type build struct {
	l     *Learner
	c     *Cycle
	id    uuid.UUID
	inst  *wm.Instantiation
	log   *logging.Logger
	start time.Time

	results      []*wm.Preference
	groundsLevel int
	number       uint64

	// reliable drops to false when a traced firing may not be generalized or
	// the subgoal tested ^quiescence t.
	reliable   bool
	quiescence bool
	variablize bool

	grounds       []*wm.Condition
	potentials    []*wm.Condition
	locals        []*wm.Condition
	negated       CondSet
	instsWithNots []*wm.Instantiation
	marks         map[any]*wmeMark
	traced        int

	conds     []*ChunkCond
	groundsTC symtab.TC
	nots      []wm.Not
	discarded int

	name     string
	prodType wm.ProductionType
	lhs      wm.ConditionList
	instLHS  wm.ConditionList
	rhs      []*wm.Action
	prod     *wm.Production
	newInst  *wm.Instantiation

	state    BuildState
	outcome  Outcome
	err      error
	finished bool
}

func newBuild(c *Cycle, inst *wm.Instantiation) *build {
	return &build{
		l:        c.l,
		c:        c,
		id:       uuid.New(),
		inst:     inst,
		log:      logging.Get(logging.CategoryChunk).With("agent", c.l.agent),
		start:    time.Now(),
		reliable: true,
		marks:    make(map[any]*wmeMark),
	}
}

func (b *build) warn(format string, args ...interface{}) {
	if b.l.cfg.Warnings {
		b.log.Warn(format, args...)
		return
	}
	b.log.Debug(format, args...)
}

// fail ends the build with a non-accepting outcome.
func (b *build) fail(o Outcome, err error) {
	b.outcome = o
	b.err = err
	b.state = Rejected
	if b.l.recorder != nil {
		b.l.recorder.Discard()
	}
}

// run drives the build to a terminal outcome.
func (b *build) run() {
	if b.inst.MatchGoal == nil || b.inst.MatchGoal.Goal == nil {
		b.outcome, b.state = NoResults, Rejected
		return
	}
	if b.c.maxChunksReached {
		b.fail(MaxChunks, ErrMaxChunks)
		return
	}

	b.collectResults()
	if len(b.results) == 0 {
		b.outcome, b.state = NoResults, Rejected
		return
	}
	logging.AuditWithBuild(b.id.String()).BuildStart(b.inst.RuleName())

	// Superior goals can no longer learn bottom-up once a subgoal returns.
	for g := b.inst.MatchGoal.Goal.Higher; g != nil && g.Goal != nil && g.Goal.AllowBottomUpChunks; g = g.Goal.Higher {
		g.Goal.AllowBottomUpChunks = false
	}

	b.groundsLevel = b.inst.MatchGoalLevel - 1
	b.l.backtraceNumber++
	b.number = b.l.backtraceNumber

	if err := b.backtrace(); err != nil {
		b.warn("%v, ignoring it", err)
		b.fail(NoGrounds, err)
		return
	}

	b.buildChunkConds()
	if len(b.conds) == 0 {
		b.warn("chunk has no grounds, ignoring it")
		b.fail(NoGrounds, ErrNoGrounds)
		return
	}

	if b.c.chunks >= b.l.cfg.MaxChunks {
		b.warn("reached max-chunks (%d) in decision %d, learning suspended for this cycle", b.l.cfg.MaxChunks, b.c.decision)
		b.c.maxChunksReached = true
		b.fail(MaxChunks, ErrMaxChunks)
		return
	}

	b.variablize = b.reliable && b.l.shouldVariablize(b.inst.MatchGoal)
	b.collectNots()
	b.name, b.prodType = b.generateName()

	if err := b.variablizeAll(); err != nil {
		b.log.Error("%s: %v", b.name, err)
		b.fail(InvariantViolation, err)
		return
	}
	b.state = Variablized

	if err := b.assemble(); err != nil {
		b.log.Error("%s: %v", b.name, err)
		if errors.Is(err, ErrInvariant) {
			b.fail(InvariantViolation, err)
		} else {
			b.fail(ReorderFailure, err)
		}
		return
	}
	b.state = Reordered

	b.insert()
}

// finish records metrics and the audit event and returns the report.
func (b *build) finish() BuildReport {
	if !b.finished {
		b.finished = true
		agent := b.l.agent
		buildsTotal.WithLabelValues(agent, b.outcome.String()).Inc()
		if b.outcome != NoResults {
			buildDuration.WithLabelValues(agent).Observe(time.Since(b.start).Seconds())
			instantiationsTraced.WithLabelValues(agent).Observe(float64(b.traced))
			logging.AuditWithBuild(b.id.String()).BuildEnd(b.name, b.outcome.String(), b.outcome == Accepted)
		}
		if len(b.conds) > 0 {
			groundsPerBuild.WithLabelValues(agent).Observe(float64(len(b.conds)))
		}
		if b.outcome != NoResults {
			b.log.Debug("build %s of %s finished: %s", b.id, b.inst.RuleName(), b.outcome)
		}
	}
	return BuildReport{
		ID:            b.id,
		Source:        b.inst.RuleName(),
		Outcome:       b.outcome,
		State:         b.state,
		Err:           b.err,
		Name:          b.name,
		Type:          b.prodType,
		Production:    b.prod,
		Instantiation: b.newInst,
		Results:       len(b.results),
		Grounds:       len(b.conds),
		Nots:          len(b.nots),
		Traced:        b.traced,
		Discarded:     b.discarded,
		Quiescence:    b.quiescence,
	}
}

func (b *build) String() string {
	return fmt.Sprintf("build %s (%s)", b.id, b.inst.RuleName())
}
