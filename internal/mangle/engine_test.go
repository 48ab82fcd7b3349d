package mangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reachSchema = `
Decl edge(From, To) bound [/string, /string].
Decl label(Node, Weight) bound [/string, /number].

reach(X, Y) :- edge(X, Y).
reach(X, Z) :- reach(X, Y), edge(Y, Z).
`

func newReachEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := NewEngine(cfg)
	require.NoError(t, e.LoadSchemaString(reachSchema))
	return e
}

func TestAddFactsDerives(t *testing.T) {
	e := newReachEngine(t, DefaultConfig())
	require.NoError(t, e.AddFacts([]Fact{
		{Predicate: "edge", Args: []interface{}{"a", "b"}},
		{Predicate: "edge", Args: []interface{}{"b", "c"}},
	}))

	facts, err := e.GetFacts("reach")
	require.NoError(t, err)
	var got []string
	for _, f := range facts {
		got = append(got, f.String())
	}
	assert.Equal(t, []string{
		`reach("a", "b").`,
		`reach("a", "c").`,
		`reach("b", "c").`,
	}, got)
}

func TestStringBoundKeepsSlashes(t *testing.T) {
	e := newReachEngine(t, DefaultConfig())
	require.NoError(t, e.AddFact("edge", "/tmp", "(S1 ^a b)"))

	facts, err := e.GetFacts("edge")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, []interface{}{"/tmp", "(S1 ^a b)"}, facts[0].Args)
}

func TestManualEvaluate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoEval = false
	e := newReachEngine(t, cfg)
	require.NoError(t, e.AddFact("edge", "a", "b"))

	facts, err := e.GetFacts("reach")
	require.NoError(t, err)
	assert.Empty(t, facts)

	require.NoError(t, e.Evaluate())
	facts, err = e.GetFacts("reach")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestQueryFactsFiltersLeadingArgs(t *testing.T) {
	e := newReachEngine(t, DefaultConfig())
	require.NoError(t, e.AddFacts([]Fact{
		{Predicate: "label", Args: []interface{}{"a", 1}},
		{Predicate: "label", Args: []interface{}{"b", 2}},
	}))

	facts, err := e.QueryFacts("label", "b")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, int64(2), facts[0].Args[1])

	facts, err = e.QueryFacts("label", "", "1")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "a", facts[0].Args[0])
}

func TestErrors(t *testing.T) {
	e := NewEngine(DefaultConfig())
	assert.Error(t, e.AddFact("edge", "a", "b"), "no schema loaded")
	assert.Error(t, e.LoadSchemaString("Decl broken("))

	e = newReachEngine(t, DefaultConfig())
	assert.Error(t, e.AddFact("missing", "a"))
	assert.Error(t, e.AddFact("edge", "a"))
	_, err := e.GetFacts("missing")
	assert.Error(t, err)
}

func TestFactLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FactLimit = 1
	e := newReachEngine(t, cfg)
	require.NoError(t, e.AddFact("label", "a", 1))
	assert.Error(t, e.AddFact("label", "b", 2))
}

func TestClearKeepsSchema(t *testing.T) {
	e := newReachEngine(t, DefaultConfig())
	require.NoError(t, e.AddFact("edge", "a", "b"))
	assert.Equal(t, 1, e.GetStats().PredicateCounts["edge"])

	e.Clear()
	assert.Zero(t, e.GetStats().TotalFacts)
	require.NoError(t, e.AddFact("edge", "x", "y"))
	facts, err := e.GetFacts("reach")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}
