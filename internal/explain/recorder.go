// Package explain keeps a record of how every learned rule was built so a user
// can later ask why a condition ended up in it. Records are snapshots: they
// hold rendered conditions, never live working-memory structures, so they
// outlive the rules and instantiations they describe.
package explain

import (
	"context"
	"sync"
	"time"

	"chunker/internal/logging"
	"chunker/internal/wm"
)

// BacktraceRecord describes one firing traced through during a build.
type BacktraceRecord struct {
	Rule string
	// TraceCond is the condition whose WME the firing created. Empty when
	// the firing produced a result directly.
	TraceCond string

	Grounds    []string
	Potentials []string
	Locals     []string
	Negated    []string
}

// Result reports whether the firing produced a result of the build.
func (r *BacktraceRecord) Result() bool { return r.TraceCond == "" }

// Chunk is the explanation of one learned rule.
type Chunk struct {
	Agent   string
	Name    string
	Created time.Time

	Conditions []string // as they appear in the rule
	Actions    []string
	// Grounds pairs each condition with the working-memory condition it
	// was generalized from.
	Grounds []string

	// Backtraces is newest first.
	Backtraces []*BacktraceRecord
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFacts projects every filed chunk into f.
func WithFacts(f *Facts) Option {
	return func(r *Recorder) { r.facts = f }
}

// WithArchive saves every filed chunk to a.
func WithArchive(a *Archive) Option {
	return func(r *Recorder) { r.archive = a }
}

// WithAgent labels filed chunks with the agent that built them.
func WithAgent(name string) Option {
	return func(r *Recorder) { r.agent = name }
}

// Recorder collects backtrace records during a build and files them under the
// rule's name once the rule is accepted.
type Recorder struct {
	mu      sync.Mutex
	agent   string
	pending []*BacktraceRecord
	chunks  []*Chunk // newest first
	byName  map[string]*Chunk

	facts   *Facts
	archive *Archive
}

// NewRecorder returns an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{byName: make(map[string]*Chunk)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordBacktrace snapshots one traced firing.
func (r *Recorder) RecordBacktrace(rule string, traceCond *wm.Condition, grounds, potentials, locals, negated []*wm.Condition) {
	rec := &BacktraceRecord{
		Rule:       rule,
		Grounds:    render(grounds),
		Potentials: render(potentials),
		Locals:     render(locals),
		Negated:    render(negated),
	}
	if traceCond != nil {
		rec.TraceCond = traceCond.String()
	}

	r.mu.Lock()
	r.pending = append([]*BacktraceRecord{rec}, r.pending...)
	r.mu.Unlock()
}

// RecordChunk files the records collected since the last chunk or discard
// under name.
func (r *Recorder) RecordChunk(name string, lhs wm.ConditionList, rhs []*wm.Action, grounds wm.ConditionList) {
	c := &Chunk{
		Agent:      r.agent,
		Name:       name,
		Created:    time.Now(),
		Conditions: render(lhs.Slice()),
		Grounds:    render(grounds.Slice()),
		Actions:    make([]string, len(rhs)),
	}
	for i, a := range rhs {
		c.Actions[i] = a.String()
	}

	r.mu.Lock()
	c.Backtraces = r.pending
	r.pending = nil
	r.fileLocked(c)
	r.mu.Unlock()

	logging.ExplainDebug("filed explanation for %s: %d backtraces, %d grounds", name, len(c.Backtraces), len(c.Grounds))

	if r.facts != nil {
		if err := r.facts.Load(c); err != nil {
			logging.Get(logging.CategoryExplain).Warn("projecting %s into facts: %v", name, err)
		}
	}
	if r.archive != nil {
		err := r.archive.Save(context.Background(), c)
		logging.Audit().ArchiveSave(name, err)
		if err != nil {
			logging.StoreError("archiving %s: %v", name, err)
		}
	}
}

// Discard drops the records of an aborted build.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > 0 {
		logging.ExplainDebug("discarding %d backtrace records", len(r.pending))
	}
	r.pending = nil
}

// Reset forgets every filed chunk.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.pending = nil
	r.chunks = nil
	r.byName = make(map[string]*Chunk)
	r.mu.Unlock()
	if r.facts != nil {
		r.facts.Reset()
	}
}

// Restore files chunks loaded from elsewhere, oldest first, without
// projecting or archiving them again.
func (r *Recorder) Restore(chunks ...*Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range chunks {
		r.fileLocked(c)
	}
}

// Chunks returns the filed chunks, newest first.
func (r *Recorder) Chunks() []*Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Chunk(nil), r.chunks...)
}

func (r *Recorder) fileLocked(c *Chunk) {
	if old, ok := r.byName[c.Name]; ok {
		for i, o := range r.chunks {
			if o == old {
				r.chunks = append(r.chunks[:i], r.chunks[i+1:]...)
				break
			}
		}
	}
	r.byName[c.Name] = c
	r.chunks = append([]*Chunk{c}, r.chunks...)
}

func render(conds []*wm.Condition) []string {
	out := make([]string, len(conds))
	for i, c := range conds {
		out[i] = c.String()
	}
	return out
}
