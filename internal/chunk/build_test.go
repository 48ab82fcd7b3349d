package chunk

import (
	"errors"
	"testing"

	"chunker/internal/config"
	"chunker/internal/logging"
	"chunker/internal/wm"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestChunkSimpleResult(t *testing.T) {
	f := newFixture(t)
	color := f.wme(f.s1, "color", "red", nil)
	super := f.wme(f.s2, "superstate", f.s1, nil)
	inst := f.fire("return", f.s2, f.match(super), f.match(color))
	result := f.prefer(inst, f.s1, "result", "yes")

	c := f.learner().BeginCycle(1)
	reports := c.Chunk(inst)
	require.Len(t, reports, 1)
	r := reports[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, Inserted, r.State)
	assert.Equal(t, "chunk-1", r.Name)
	assert.Equal(t, wm.ChunkProduction, r.Type)
	assert.Equal(t, "sp {chunk-1\n   :chunk\n   (state <s1> ^color red)\n   -->\n   (<s1> ^result yes +)\n}", r.Production.String())
	assert.Equal(t, 1, r.Results)
	assert.Equal(t, 1, r.Grounds)
	assert.Equal(t, 1, r.Traced)

	require.Len(t, c.NewInstantiations(), 1)
	ni := c.NewInstantiations()[0]
	assert.Same(t, ni, r.Instantiation)
	assert.Same(t, f.s1, ni.MatchGoal)
	assert.Equal(t, 1, ni.MatchGoalLevel)
	require.Len(t, ni.Preferences, 1)
	assert.Equal(t, ni.Preferences[0], result.NextClone)

	p, ok := f.rules.Find("chunk-1")
	require.True(t, ok)
	assert.Same(t, r.Production, p)

	assert.Equal(t, []string{"return"}, f.rec.backtraces)
	assert.Equal(t, 1, f.rec.results)
	assert.Equal(t, []string{"chunk-1"}, f.rec.chunks)
	assert.Equal(t, 1, c.ChunksBuilt())

	agent := t.Name()
	assert.Equal(t, 1.0, testutil.ToFloat64(buildsTotal.WithLabelValues(agent, "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(buildsTotal.WithLabelValues(agent, "no-results")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rulesLearned.WithLabelValues(agent, "chunk")))
}

// subgoalTrace builds a firing in S2 that tests a local WME created by an
// earlier firing in S2.
func subgoalTrace(f *fixture) *wm.Instantiation {
	size := f.wme(f.s1, "size", 3, nil)
	super := f.wme(f.s2, "superstate", f.s1, nil)
	elab := f.fire("elaborate", f.s2, f.match(super), f.match(size))
	big := f.wme(f.s2, "big", "yes", f.prefer(elab, f.s2, "big", "yes"))

	color := f.wme(f.s1, "color", "red", nil)
	ret := f.fire("return", f.s2, f.match(big), f.match(color))
	f.prefer(ret, f.s1, "answer", 42)
	return ret
}

func TestChunkTracesThroughLocals(t *testing.T) {
	f := newFixture(t)
	ret := subgoalTrace(f)

	r := f.learner().BeginCycle(1).Chunk(ret)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, "sp {chunk-1\n   :chunk\n   (state <s1> ^color red)\n   (<s1> ^size 3)\n   -->\n   (<s1> ^answer 42 +)\n}", r.Production.String())
	assert.Equal(t, 2, r.Traced)
	assert.Equal(t, []string{"return", "elaborate"}, f.rec.backtraces)
}

func TestRebuildIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ret := subgoalTrace(f)
	l := f.learner()

	first := l.BeginCycle(1).Chunk(ret)[0]
	require.Equal(t, Accepted, first.Outcome)
	live := f.mem.Live()
	result := f.mem.Pref(ret.Preferences[0])
	clone := result.NextClone

	c := l.BeginCycle(2)
	reports := c.Chunk(ret)
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, Duplicate, r.Outcome)
	assert.Equal(t, Rejected, r.State)
	assert.ErrorIs(t, r.Err, ErrDuplicate)
	assert.Equal(t, "chunk-2", r.Name)
	assert.Nil(t, r.Instantiation)
	assert.Empty(t, c.NewInstantiations())

	assert.Equal(t, 1, f.rules.Len())
	assert.Equal(t, live, f.mem.Live())
	assert.Equal(t, clone, result.NextClone)
	assert.Equal(t, 1, f.rec.discards)
	assert.Equal(t, []string{"chunk-1"}, f.rec.chunks)
}

func TestQuiescenceBuildsJustification(t *testing.T) {
	f := newFixture(t)
	q := f.wme(f.s2, "quiescence", "t", nil)
	color := f.wme(f.s1, "color", "red", nil)
	inst := f.fire("return", f.s2, f.match(q), f.match(color))
	f.prefer(inst, f.s1, "result", "yes")

	l := f.learner()
	c := l.BeginCycle(1)
	r := c.Chunk(inst)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.True(t, r.Quiescence)
	assert.Equal(t, wm.JustificationProduction, r.Type)
	assert.Equal(t, "sp {justification-1\n   :justification\n   (state S1 ^color red)\n   -->\n   (S1 ^result yes +)\n}", r.Production.String())
	assert.False(t, r.Instantiation.OkayToVariablize)
	assert.Equal(t, 0, c.ChunksBuilt())
	assert.Equal(t, uint64(1), l.JustificationCount())
	assert.Equal(t, uint64(0), l.ChunkCount())
}

func TestLearningOffBuildsJustifications(t *testing.T) {
	f := newFixture(t)
	color := f.wme(f.s1, "color", "red", nil)
	inst := f.fire("return", f.s2, f.match(color))
	f.prefer(inst, f.s1, "result", "yes")

	r := f.learner(func(c *config.LearningConfig) { c.Mode = config.LearningOff }).BeginCycle(1).Chunk(inst)[0]
	require.Equal(t, Accepted, r.Outcome)
	assert.Equal(t, "justification-1", r.Name)
	assert.False(t, r.Quiescence)
}

func TestLongNames(t *testing.T) {
	tests := []struct {
		name string
		want string
		run  func(f *fixture) *wm.Instantiation
	}{
		{
			name: "operator no-change",
			want: "chunk-1*d7*opnochange*1",
			run: func(f *fixture) *wm.Instantiation {
				inst := f.fire("return", f.s2, f.match(f.wme(f.s1, "color", "red", nil)))
				f.prefer(inst, f.s1, "result", "yes")
				return inst
			},
		},
		{
			name: "tie",
			want: "chunk-1*d7*tie*1",
			run: func(f *fixture) *wm.Instantiation {
				inst := f.fire("return", f.s3, f.match(f.wme(f.s2, "color", "red", nil)))
				f.prefer(inst, f.s2, "result", "yes")
				return inst
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			inst := tt.run(f)
			r := f.learner(func(c *config.LearningConfig) { c.LongNames = true }).BeginCycle(7).Chunk(inst)[0]
			require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
			assert.Equal(t, tt.want, r.Name)
		})
	}
}

func TestMaxChunksStopsLearningForCycle(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	f := newFixture(t)
	fire := func(attr string) *wm.Instantiation {
		inst := f.fire("return-"+attr, f.s2, f.match(f.wme(f.s1, attr, 1, nil)))
		f.prefer(inst, f.s1, "result-"+attr, "yes")
		return inst
	}
	first, second, third := fire("a"), fire("b"), fire("c")

	c := f.learner(func(c *config.LearningConfig) { c.MaxChunks = 1 }).BeginCycle(3)
	assert.Equal(t, Accepted, c.Chunk(first)[0].Outcome)
	assert.False(t, c.MaxChunksReached())

	r := c.Chunk(second)[0]
	assert.Equal(t, MaxChunks, r.Outcome)
	assert.ErrorIs(t, r.Err, ErrMaxChunks)
	assert.True(t, c.MaxChunksReached())

	assert.Equal(t, MaxChunks, c.Chunk(third)[0].Outcome)
	assert.Equal(t, []string{"return-a", "return-b"}, f.rec.backtraces)
	assert.Equal(t, 1, f.rules.Len())

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("max-chunks")
	assert.Equal(t, 1, warnings.Len())
}

func TestNotsAreSplicedIntoConditions(t *testing.T) {
	f := newFixture(t)
	a := f.tab.NewIdentifier('A', 1)
	b := f.tab.NewIdentifier('B', 1)
	inst := f.fire("return", f.s2, f.match(f.wme(f.s1, "x", a, nil)), f.match(f.wme(f.s1, "y", b, nil)))
	inst.Nots = []wm.Not{{S1: a, S2: b}, {S1: b, S2: a}}
	f.prefer(inst, f.s1, "distinct", "yes")

	r := f.learner().BeginCycle(1).Chunk(inst)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, 1, r.Nots)
	assert.Equal(t, "sp {chunk-1\n   :chunk\n   (state <s1> ^x { <a1> <> <b1> })\n   (<s1> ^y <b1>)\n   -->\n   (<s1> ^distinct yes +)\n}", r.Production.String())
	assert.Len(t, r.Instantiation.Nots, 1)
}

func TestNegatedConditions(t *testing.T) {
	fire := func(f *fixture) *wm.Instantiation {
		blocked := wm.Negative(wm.Equality(f.s1), wm.Equality(f.sym("blocked")), wm.Equality(f.sym("yes")))
		local := wm.Negative(wm.Equality(f.s2), wm.Equality(f.sym("flag")), wm.Equality(f.sym("up")))
		inst := f.fire("return", f.s2, f.match(f.wme(f.s1, "color", "red", nil)), blocked, local)
		f.prefer(inst, f.s1, "result", "yes")
		return inst
	}

	t.Run("local negation dropped", func(t *testing.T) {
		f := newFixture(t)
		r := f.learner().BeginCycle(1).Chunk(fire(f))[0]
		require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
		assert.Equal(t, 1, r.Discarded)
		assert.Equal(t, "sp {chunk-1\n   :chunk\n   (state <s1> ^color red)\n   -(<s1> ^blocked yes)\n   -->\n   (<s1> ^result yes +)\n}", r.Production.String())
	})

	t.Run("local negations make justifications", func(t *testing.T) {
		f := newFixture(t)
		l := f.learner(func(c *config.LearningConfig) { c.LocalNegations = false })
		r := l.BeginCycle(1).Chunk(fire(f))[0]
		require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
		assert.Equal(t, wm.JustificationProduction, r.Type)
		assert.Equal(t, "sp {justification-1\n   :justification\n   (state S1 ^color red)\n   -(S1 ^blocked yes)\n   -->\n   (S1 ^result yes +)\n}", r.Production.String())
	})
}

func TestNoGrounds(t *testing.T) {
	f := newFixture(t)
	inst := f.fire("return", f.s2, f.match(f.wme(f.s2, "superstate", f.s1, nil)))
	f.prefer(inst, f.s1, "result", "yes")

	r := f.learner().BeginCycle(1).Chunk(inst)[0]
	assert.Equal(t, NoGrounds, r.Outcome)
	assert.ErrorIs(t, r.Err, ErrNoGrounds)
	assert.Equal(t, 1, f.rec.discards)
	assert.Equal(t, 0, f.rules.Len())
}

func TestNoGroundsLeavesCountersAlone(t *testing.T) {
	f := newFixture(t)
	inst := f.fire("return", f.s2, f.match(f.wme(f.s2, "superstate", f.s1, nil)))
	f.prefer(inst, f.s1, "result", "yes")

	l := f.learner()
	c := l.BeginCycle(1)
	r := c.Chunk(inst)[0]
	require.Equal(t, NoGrounds, r.Outcome)
	assert.Empty(t, r.Name)
	assert.Nil(t, r.Production)
	assert.Equal(t, uint64(0), l.ChunkCount())
	assert.Equal(t, uint64(0), l.JustificationCount())
	assert.Equal(t, 0, c.ChunksBuilt())
	assert.Empty(t, c.NewInstantiations())
	assert.Empty(t, f.rec.chunks)
}

func TestImpasseDependencyAborts(t *testing.T) {
	f := newFixture(t)
	imp := f.tab.NewIdentifier('I', 1)
	imp.IsaImpasse = true
	inst := f.fire("return", f.s2,
		f.match(f.wme(f.s1, "color", "red", nil)),
		f.match(f.wme(imp, "object", f.s1, nil)))
	f.prefer(inst, f.s1, "result", "yes")

	r := f.learner().BeginCycle(1).Chunk(inst)[0]
	assert.Equal(t, NoGrounds, r.Outcome)
	assert.ErrorIs(t, r.Err, ErrNoGrounds)
	assert.Contains(t, r.Err.Error(), "impasse")
}

func TestNoResults(t *testing.T) {
	f := newFixture(t)
	inst := f.fire("elaborate", f.s2, f.match(f.wme(f.s1, "color", "red", nil)))
	f.prefer(inst, f.s2, "local", "yes")

	reports := f.learner().BeginCycle(1).Chunk(inst)
	require.Len(t, reports, 1)
	assert.Equal(t, NoResults, reports[0].Outcome)
	assert.Equal(t, 0, f.rec.discards)
	assert.Empty(t, f.rec.backtraces)
}

func TestResultSubstructure(t *testing.T) {
	f := newFixture(t)
	inst := f.fire("return", f.s2, f.match(f.wme(f.s1, "color", "red", nil)))
	n := f.tab.NewIdentifier('N', 2)
	f.prefer(inst, f.s1, "result", n)
	f.prefer(inst, n, "value", 5)

	r := f.learner().BeginCycle(1).Chunk(inst)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, 2, r.Results)
	assert.Equal(t, "sp {chunk-1\n   :chunk\n   (state <s1> ^color red)\n   -->\n   (<s1> ^result <n1> +)\n   (<n1> ^value 5 +)\n}", r.Production.String())
}

func TestFollowUpBuildsChain(t *testing.T) {
	f := newFixture(t)
	inst := f.fire("return", f.s3,
		f.match(f.wme(f.s1, "color", "red", nil)),
		f.match(f.wme(f.s2, "x", 1, nil)))
	f.prefer(inst, f.s1, "result", "yes")

	c := f.learner().BeginCycle(1)
	reports := c.Chunk(inst)
	require.Len(t, reports, 2)
	assert.Equal(t, "chunk-1", reports[0].Name)
	assert.Equal(t, "sp {chunk-1\n   :chunk\n   (state <s1> ^color red)\n   (state <s2> ^x 1)\n   -->\n   (<s1> ^result yes +)\n}", reports[0].Production.String())

	assert.Equal(t, "chunk-1", reports[1].Source)
	assert.Equal(t, Accepted, reports[1].Outcome, "err: %v", reports[1].Err)
	assert.Equal(t, "sp {chunk-2\n   :chunk\n   (state <s1> ^color red)\n   -->\n   (<s1> ^result yes +)\n}", reports[1].Production.String())
	assert.Equal(t, 2, c.ChunksBuilt())
	assert.Len(t, c.NewInstantiations(), 2)
}

func TestBottomUpChunking(t *testing.T) {
	f := newFixture(t)
	l := f.learner(func(c *config.LearningConfig) { c.AllGoals = false })
	c := l.BeginCycle(1)

	deep := f.fire("return-deep", f.s3, f.match(f.wme(f.s2, "x", 1, nil)))
	f.prefer(deep, f.s2, "r", "yes")
	r := c.Chunk(deep)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, wm.ChunkProduction, r.Type)
	assert.False(t, f.s2.Goal.AllowBottomUpChunks)
	assert.False(t, f.s1.Goal.AllowBottomUpChunks)

	mid := f.fire("return-mid", f.s2, f.match(f.wme(f.s1, "color", "red", nil)))
	f.prefer(mid, f.s1, "result", "yes")
	r = c.Chunk(mid)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, wm.JustificationProduction, r.Type)
}

func TestShouldVariablize(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name     string
		mode     config.LearningMode
		allGoals bool
		bottomUp bool
		force    bool
		dont     bool
		want     bool
	}{
		{name: "off", mode: config.LearningOff, allGoals: true, want: false},
		{name: "on all goals", mode: config.LearningOn, allGoals: true, want: true},
		{name: "on bottom-up allowed", mode: config.LearningOn, bottomUp: true, want: true},
		{name: "on bottom-up blocked", mode: config.LearningOn, want: false},
		{name: "only unlisted", mode: config.LearningOnly, allGoals: true, want: false},
		{name: "only listed ignores bottom-up", mode: config.LearningOnly, force: true, want: true},
		{name: "except listed", mode: config.LearningExcept, allGoals: true, dont: true, want: false},
		{name: "except unlisted", mode: config.LearningExcept, allGoals: true, want: true},
		{name: "except unlisted bottom-up blocked", mode: config.LearningExcept, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := f.learner(func(c *config.LearningConfig) {
				c.Mode = tt.mode
				c.AllGoals = tt.allGoals
			})
			f.s2.Goal.AllowBottomUpChunks = tt.bottomUp
			if tt.force {
				l.ForceLearn(f.s2)
			}
			if tt.dont {
				l.DontLearn(f.s2)
			}
			assert.Equal(t, tt.want, l.shouldVariablize(f.s2))
		})
	}
}

func TestReorderFailure(t *testing.T) {
	f := newFixture(t)
	inst := f.fire("return", f.s2, f.match(f.wme(f.s1, "color", "red", nil)))
	f.prefer(inst, f.s1, "result", "yes")

	stub := &stubMatcher{Memory: f.rules, reorderErr: errors.New("no roots")}
	l := New(f.tab, f.mem, stub, config.DefaultLearningConfig(), WithAgent(t.Name()))
	r := l.BeginCycle(1).Chunk(inst)[0]
	assert.Equal(t, ReorderFailure, r.Outcome)
	assert.ErrorIs(t, r.Err, ErrReorder)
	assert.Equal(t, 0, f.rules.Len())

	_, ok := f.tab.FindVariable("<s1>")
	assert.False(t, ok, "variables of the failed rule are released")
}

func TestPanicBecomesInvariantViolation(t *testing.T) {
	f := newFixture(t)
	inst := f.fire("return", f.s2, f.match(f.wme(f.s1, "color", "red", nil)))
	f.prefer(inst, f.s1, "result", "yes")

	stub := &stubMatcher{Memory: f.rules, panicInsert: true}
	l := New(f.tab, f.mem, stub, config.DefaultLearningConfig(), WithRecorder(f.rec), WithAgent(t.Name()))

	var reports []BuildReport
	require.NotPanics(t, func() { reports = l.BeginCycle(1).Chunk(inst) })
	require.Len(t, reports, 1)
	assert.Equal(t, InvariantViolation, reports[0].Outcome)
	assert.ErrorIs(t, reports[0].Err, ErrInvariant)
	assert.Equal(t, 1, f.rec.discards)
}

func TestChunkIsDeterministic(t *testing.T) {
	build := func(t *testing.T) string {
		f := newFixture(t)
		r := f.learner().BeginCycle(1).Chunk(subgoalTrace(f))[0]
		require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
		return r.Production.String()
	}
	assert.Equal(t, build(t), build(t))
}

func TestProhibitPreferencesAreBacktraced(t *testing.T) {
	f := newFixture(t)
	super := f.wme(f.s2, "superstate", f.s1, nil)
	propose := f.fire("propose", f.s2, f.match(super), f.match(f.wme(f.s1, "color", "red", nil)))
	op := f.wme(f.s2, "operator", "move", f.prefer(propose, f.s2, "operator", "move"))

	guard := f.fire("guard", f.s2, f.match(super), f.match(f.wme(f.s1, "danger", "low", nil)))
	prohibit := f.mem.AddPreference(guard, wm.ProhibitPref, f.s2, f.sym("operator"), f.sym("jump"), nil)

	selected := f.match(op)
	selected.BT.Prohibits = []wm.PrefID{prohibit.Index}
	ret := f.fire("return", f.s2, selected)
	f.prefer(ret, f.s1, "moved", "yes")

	r := f.learner().BeginCycle(1).Chunk(ret)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, []string{"return", "propose", "guard"}, f.rec.backtraces)
	assert.Equal(t, 2, r.Grounds)
	assert.Equal(t, 3, r.Traced)
	assert.Contains(t, r.Production.String(), "^color red)")
	assert.Contains(t, r.Production.String(), "^danger low)")
}

func TestConnectedPotentialsArePromoted(t *testing.T) {
	f := newFixture(t)
	b := f.tab.NewIdentifier('B', 1)
	pick := f.fire("pick", f.s2, f.match(f.wme(f.s1, "block", b, nil)))
	picked := f.wme(f.s2, "picked", b, f.prefer(pick, f.s2, "picked", b))

	// (B1 ^size 3) is not reachable from S1 inside "return", only through
	// the ground that "pick" tested.
	ret := f.fire("return", f.s2, f.match(picked), f.match(f.wme(b, "size", 3, nil)))
	f.prefer(ret, f.s1, "answer", 42)

	r := f.learner().BeginCycle(1).Chunk(ret)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, 2, r.Grounds)
	assert.Equal(t, []string{"return", "pick"}, f.rec.backtraces)
	assert.Contains(t, r.Production.String(), "(state <s1> ^block <b1>)")
	assert.Contains(t, r.Production.String(), "(<b1> ^size 3)")
}

func TestUnconnectedPotentialsAreTracedThroughCreator(t *testing.T) {
	f := newFixture(t)
	b := f.tab.NewIdentifier('B', 1)
	mark := f.fire("mark", f.s2, f.match(f.wme(f.s1, "block", b, nil)))
	marked := f.wme(b, "mark", "yes", f.prefer(mark, b, "mark", "yes"))

	ret := f.fire("return", f.s2, f.match(marked), f.match(f.wme(f.s1, "color", "red", nil)))
	f.prefer(ret, f.s1, "result", "yes")

	r := f.learner().BeginCycle(1).Chunk(ret)[0]
	require.Equal(t, Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, []string{"return", "mark"}, f.rec.backtraces)
	assert.Equal(t, 2, r.Grounds)
	assert.Contains(t, r.Production.String(), "^block <b1>)")
	assert.NotContains(t, r.Production.String(), "^mark")
}
