package chunk

import (
	"fmt"

	"chunker/internal/wm"

	"github.com/google/uuid"
)

// Cycle is the chunking session for one decision cycle of one agent.
type Cycle struct {
	l        *Learner
	decision uint64

	chunks           int
	maxChunksReached bool
	created          []*wm.Instantiation
}

// Decision returns the decision-cycle number the session was opened for.
func (c *Cycle) Decision() uint64 { return c.decision }

// ChunksBuilt returns how many chunks (not justifications) were named this cycle.
func (c *Cycle) ChunksBuilt() int { return c.chunks }

// MaxChunksReached reports whether learning stopped for the rest of the cycle.
func (c *Cycle) MaxChunksReached() bool { return c.maxChunksReached }

// NewInstantiations returns the instantiations of accepted rules, in build
// order. The caller asserts their preferences.
func (c *Cycle) NewInstantiations() []*wm.Instantiation { return c.created }

// BuildReport describes one finished build.
type BuildReport struct {
	ID      uuid.UUID
	Source  string // rule of the instantiation that was chunked
	Outcome Outcome
	State   BuildState
	Err     error

	Name          string
	Type          wm.ProductionType
	Production    *wm.Production
	Instantiation *wm.Instantiation

	Results    int
	Grounds    int
	Nots       int
	Traced     int
	Discarded  int // negated conditions not connected to the grounds
	Quiescence bool
}

func (r BuildReport) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", r.Source, r.Outcome, r.Name)
	}
	return fmt.Sprintf("%s: %s", r.Source, r.Outcome)
}

// Chunk builds a rule from inst and then, while the cycle's limit allows, from
// the instantiation of every rule it accepts. The first report is always for
// inst; follow-up builds are reported only when they produced results.
func (c *Cycle) Chunk(inst *wm.Instantiation) []BuildReport {
	var reports []BuildReport
	queue := []*wm.Instantiation{inst}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		r := c.run(next)
		if next == inst || r.Outcome != NoResults {
			reports = append(reports, r)
		}
		if r.Outcome == Accepted && r.Instantiation != nil && !c.maxChunksReached {
			queue = append(queue, r.Instantiation)
		}
	}
	return reports
}

// run executes one build. A panic anywhere inside it becomes an
// InvariantViolation report; the agent keeps running.
func (c *Cycle) run(inst *wm.Instantiation) (report BuildReport) {
	b := newBuild(c, inst)
	defer func() {
		if p := recover(); p != nil {
			b.fail(InvariantViolation, fmt.Errorf("%w: %v", ErrInvariant, p))
			report = b.finish()
		}
	}()
	b.run()
	return b.finish()
}
