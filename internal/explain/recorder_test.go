package explain_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"chunker/internal/chunk"
	"chunker/internal/config"
	"chunker/internal/explain"
	"chunker/internal/production"
	"chunker/internal/symtab"
	"chunker/internal/wm"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// learn builds chunk-1 from a subgoal where "elaborate" turns (S1 ^size 3)
// into the local (S2 ^big yes) and "return" combines it with (S1 ^color red)
// into a result.
func learn(t *testing.T, rec *explain.Recorder) chunk.BuildReport {
	t.Helper()
	tab := symtab.New()
	mem := wm.NewMemory(tab)
	s1 := tab.NewGoal(1, nil, symtab.ImpasseNone, "")
	s2 := tab.NewGoal(2, s1, symtab.ImpasseNoChange, "operator")

	fire := func(rule string, conds ...*wm.WME) *wm.Instantiation {
		inst := mem.NewInstantiation(&wm.Production{Name: rule}, s2, 2)
		var cs []*wm.Condition
		for _, w := range conds {
			cs = append(cs, wm.MatchedCondition(w, w.ID.Level))
		}
		inst.Conditions = wm.ListOf(cs...)
		return inst
	}

	size := mem.AddWME(s1, tab.String("size"), tab.Int(3), false, 0)
	super := mem.AddWME(s2, tab.String("superstate"), s1, false, 0)
	elab := fire("elaborate", super, size)
	bigPref := mem.AddPreference(elab, wm.AcceptablePref, s2, tab.String("big"), tab.String("yes"), nil)
	big := mem.AddWME(s2, tab.String("big"), tab.String("yes"), false, bigPref.Index)

	color := mem.AddWME(s1, tab.String("color"), tab.String("red"), false, 0)
	ret := fire("return", big, color)
	mem.AddPreference(ret, wm.AcceptablePref, s1, tab.String("answer"), tab.Int(42), nil)

	l := chunk.New(tab, mem, production.NewMemory(), config.DefaultLearningConfig(),
		chunk.WithRecorder(rec), chunk.WithAgent(t.Name()))
	r := l.BeginCycle(1).Chunk(ret)[0]
	require.Equal(t, chunk.Accepted, r.Outcome, "err: %v", r.Err)
	return r
}

func TestRecorderFilesChunk(t *testing.T) {
	rec := explain.NewRecorder(explain.WithAgent("blocks"))
	learn(t, rec)

	chunks := rec.Chunks()
	require.Len(t, chunks, 1)
	c := chunks[0]
	assert.Equal(t, "blocks", c.Agent)
	assert.Equal(t, "chunk-1", c.Name)
	assert.Equal(t, []string{"(state <s1> ^color red)", "(<s1> ^size 3)"}, c.Conditions)
	assert.Equal(t, []string{"(S1 ^color red)", "(S1 ^size 3)"}, c.Grounds)
	assert.Equal(t, []string{"(<s1> ^answer 42 +)"}, c.Actions)

	want := []*explain.BacktraceRecord{
		{
			Rule:       "elaborate",
			TraceCond:  "(S2 ^big yes)",
			Grounds:    []string{"(S1 ^size 3)"},
			Potentials: []string{},
			Locals:     []string{"(S2 ^superstate S1)"},
			Negated:    []string{},
		},
		{
			Rule:       "return",
			Grounds:    []string{"(S1 ^color red)"},
			Potentials: []string{},
			Locals:     []string{"(S2 ^big yes)"},
			Negated:    []string{},
		},
	}
	if diff := cmp.Diff(want, c.Backtraces); diff != "" {
		t.Errorf("backtraces mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, c.Backtraces[1].Result())
	assert.False(t, c.Backtraces[0].Result())
}

func TestExplainWalksToResult(t *testing.T) {
	rec := explain.NewRecorder()
	learn(t, rec)

	var out bytes.Buffer
	require.NoError(t, rec.Explain(&out, "chunk-1", 2))
	assert.Equal(t, `Explanation of why condition (S1 ^size 3) was included in chunk-1

Production elaborate matched
   (S1 ^size 3) which caused
production return to match
   (S2 ^big yes) which caused
A result to be generated.
`, out.String())

	out.Reset()
	require.NoError(t, rec.Explain(&out, "chunk-1", 1))
	assert.Equal(t, `Explanation of why condition (S1 ^color red) was included in chunk-1

Production return matched
   (S1 ^color red) which caused
A result to be generated.
`, out.String())
}

func TestExplainNegatedCondition(t *testing.T) {
	tab := symtab.New()
	mem := wm.NewMemory(tab)
	s1 := tab.NewGoal(1, nil, symtab.ImpasseNone, "")
	s2 := tab.NewGoal(2, s1, symtab.ImpasseNoChange, "operator")

	color := mem.AddWME(s1, tab.String("color"), tab.String("red"), false, 0)
	blocked := wm.Negative(wm.Equality(s1), wm.Equality(tab.String("blocked")), wm.Equality(tab.String("yes")))
	inst := mem.NewInstantiation(&wm.Production{Name: "return"}, s2, 2)
	inst.Conditions = wm.ListOf(wm.MatchedCondition(color, 1), blocked)
	mem.AddPreference(inst, wm.AcceptablePref, s1, tab.String("result"), tab.String("yes"), nil)

	rec := explain.NewRecorder()
	l := chunk.New(tab, mem, production.NewMemory(), config.DefaultLearningConfig(),
		chunk.WithRecorder(rec), chunk.WithAgent(t.Name()))
	r := l.BeginCycle(1).Chunk(inst)[0]
	require.Equal(t, chunk.Accepted, r.Outcome, "err: %v", r.Err)

	g, err := rec.NthGround("chunk-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "-(S1 ^blocked yes)", g)

	var out bytes.Buffer
	require.NoError(t, rec.Explain(&out, "chunk-1", 2))
	assert.Equal(t, `Explanation of why condition -(S1 ^blocked yes) was included in chunk-1

Production return matched
   -(S1 ^blocked yes) which caused
A result to be generated.
`, out.String())
}

func TestExplainChainWithoutResult(t *testing.T) {
	rec := explain.NewRecorder()
	rec.Restore(&explain.Chunk{
		Name:       "chunk-9",
		Conditions: []string{"(state <s1> ^x 1)"},
		Grounds:    []string{"(S1 ^x 1)"},
		Backtraces: []*explain.BacktraceRecord{
			{Rule: "a", TraceCond: "(S2 ^y 1)", Grounds: []string{"(S1 ^x 1)"}, Locals: []string{"(S2 ^z 1)"}},
			{Rule: "b", TraceCond: "(S2 ^z 1)", Locals: []string{"(S2 ^y 1)"}},
		},
	})

	var out bytes.Buffer
	err := rec.Explain(&out, "chunk-9", 1)
	assert.ErrorIs(t, err, explain.ErrNotTraced)
	assert.Contains(t, out.String(), "EXPLAIN: no result within 50 steps of (S1 ^x 1).\n")
	assert.NotContains(t, out.String(), "A result to be generated.")
}

func TestCondList(t *testing.T) {
	rec := explain.NewRecorder()
	learn(t, rec)

	var out bytes.Buffer
	require.NoError(t, rec.CondList(&out, "chunk-1"))
	assert.Equal(t, `sp {chunk-1
   1 : (state <s1> ^color red)
       Ground : (S1 ^color red)
   2 : (<s1> ^size 3)
       Ground : (S1 ^size 3)
   -->
   (<s1> ^answer 42 +)
}
`, out.String())
}

func TestTrace(t *testing.T) {
	rec := explain.NewRecorder()
	learn(t, rec)

	var out bytes.Buffer
	require.NoError(t, rec.Trace(&out, "chunk-1"))
	assert.Equal(t, `Chunk : chunk-1
Backtrace production : elaborate
Result : 0
Trace condition : (S2 ^big yes)
The grounds are:
   (S1 ^size 3)

The potentials are:

The locals are:
   (S2 ^superstate S1)

The negated conditions are:

Backtrace production : return
Result : 1
The grounds are:
   (S1 ^color red)

The potentials are:

The locals are:
   (S2 ^big yes)

The negated conditions are:

`, out.String())
}

func TestListChunks(t *testing.T) {
	rec := explain.NewRecorder()
	var out bytes.Buffer
	rec.ListChunks(&out)
	assert.Equal(t, "No chunks/justifications built yet!\n", out.String())

	learn(t, rec)
	out.Reset()
	rec.ListChunks(&out)
	assert.Equal(t, "List of all explained chunks/justifications:\nHave explanation for chunk-1\n", out.String())
}

func TestLookupFailures(t *testing.T) {
	rec := explain.NewRecorder()
	learn(t, rec)

	var out bytes.Buffer
	_, err := rec.FindChunk("chunk-9")
	assert.ErrorIs(t, err, explain.ErrChunkNotFound)

	assert.ErrorIs(t, rec.Trace(&out, "chunk-9"), explain.ErrChunkNotFound)
	assert.Contains(t, out.String(), "Could not find the chunk.")

	for _, n := range []int{0, 3} {
		_, err := rec.NthGround("chunk-1", n)
		assert.ErrorIs(t, err, explain.ErrConditionOutOfRange, "n=%d", n)
	}

	out.Reset()
	assert.ErrorIs(t, rec.Explain(&out, "chunk-1", 7), explain.ErrConditionOutOfRange)
	assert.Equal(t, "Could not find condition 7 of chunk-1.\n", out.String())

	g, err := rec.NthGround("chunk-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "(S1 ^size 3)", g)
}

func TestDiscardAndReset(t *testing.T) {
	tab := symtab.New()
	s1 := tab.NewGoal(1, nil, symtab.ImpasseNone, "")
	cond := wm.Positive(wm.Equality(s1), wm.Equality(tab.String("a")), wm.Equality(tab.String("b")))

	rec := explain.NewRecorder()
	rec.RecordBacktrace("aborted", nil, []*wm.Condition{cond}, nil, nil, nil)
	rec.Discard()
	rec.RecordBacktrace("kept", nil, []*wm.Condition{cond}, nil, nil, nil)
	rec.RecordChunk("justification-1", wm.ListOf(cond.Copy()), nil, wm.ListOf(cond.Copy()))

	c, err := rec.FindChunk("justification-1")
	require.NoError(t, err)
	require.Len(t, c.Backtraces, 1)
	assert.Equal(t, "kept", c.Backtraces[0].Rule)

	rec.Reset()
	assert.Empty(t, rec.Chunks())
	_, err = rec.FindChunk("justification-1")
	assert.ErrorIs(t, err, explain.ErrChunkNotFound)
}

func TestFactsProjection(t *testing.T) {
	facts, err := explain.NewFacts()
	require.NoError(t, err)
	rec := explain.NewRecorder(explain.WithFacts(facts))
	learn(t, rec)

	why, err := facts.WhyIncluded("chunk-1")
	require.NoError(t, err)
	assert.Equal(t, []explain.Inclusion{
		{Cond: "(S1 ^color red)", Rule: "return"},
		{Cond: "(S1 ^size 3)", Rule: "elaborate"},
	}, why)

	caused, err := facts.Caused("chunk-1")
	require.NoError(t, err)
	assert.Equal(t, []explain.Cause{{Rule: "elaborate", Next: "return"}}, caused)

	assert.Equal(t, 1, facts.Stats().PredicateCounts["chunk"])
	rec.Reset()
	assert.Zero(t, facts.Stats().TotalFacts)
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "explain", "archive.db")
	archive, err := explain.OpenArchive(path)
	require.NoError(t, err)

	rec := explain.NewRecorder(explain.WithArchive(archive), explain.WithAgent("blocks"))
	learn(t, rec)
	require.NoError(t, archive.Close())

	archive, err = explain.OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	entries, err := archive.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blocks", entries[0].Agent)
	assert.Equal(t, "chunk-1", entries[0].Name)

	entries, err = archive.List(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = archive.Load(ctx, "blocks", "chunk-2")
	assert.ErrorIs(t, err, explain.ErrChunkNotFound)

	loaded, err := archive.LoadAll(ctx, "blocks")
	require.NoError(t, err)
	restored := explain.NewRecorder()
	restored.Restore(loaded...)

	orig := rec.Chunks()[0]
	got := restored.Chunks()[0]
	assert.True(t, orig.Created.Equal(got.Created))
	got.Created = orig.Created
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Errorf("restored chunk mismatch (-want +got):\n%s", diff)
	}

	var want, have bytes.Buffer
	require.NoError(t, rec.Explain(&want, "chunk-1", 2))
	require.NoError(t, restored.Explain(&have, "chunk-1", 2))
	assert.Equal(t, want.String(), have.String())
}

func TestArchiveSaveReplaces(t *testing.T) {
	ctx := context.Background()
	archive, err := explain.OpenArchive(filepath.Join(t.TempDir(), "a.db"))
	require.NoError(t, err)
	defer archive.Close()

	c := &explain.Chunk{Agent: "a", Name: "chunk-1", Created: time.Now(), Conditions: []string{"(x)"}, Actions: []string{}, Grounds: []string{"(X)"}}
	require.NoError(t, archive.Save(ctx, c))
	c.Grounds = []string{"(Y)"}
	require.NoError(t, archive.Save(ctx, c))

	entries, err := archive.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	got, err := archive.Load(ctx, "a", "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"(Y)"}, got.Grounds)
	assert.Empty(t, got.Backtraces)
}
