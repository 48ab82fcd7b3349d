package scenario

import (
	"path/filepath"
	"testing"

	"chunker/internal/chunk"
	"chunker/internal/config"
	"chunker/internal/wm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, name string) *Agent {
	t.Helper()
	s, err := Load(filepath.Join("testdata", name))
	require.NoError(t, err)
	a, err := s.Build(config.DefaultLearningConfig())
	require.NoError(t, err)
	return a
}

func TestBlocks(t *testing.T) {
	a := load(t, "blocks.yaml")
	assert.Equal(t, "blocks", a.Name)
	assert.Equal(t, uint64(1), a.Decision)
	require.Len(t, a.Seeds, 1)
	assert.Equal(t, "return", a.Seeds[0].RuleName())

	reports := a.Run()
	require.Len(t, reports, 1)
	r := reports[0]
	require.Equal(t, chunk.Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, "sp {chunk-1\n   :chunk\n   (state <s1> ^color red)\n   (<s1> ^size 3)\n   -->\n   (<s1> ^answer 42 +)\n}", r.Production.String())
	assert.NoError(t, a.Check(reports))

	names := func(rules []*wm.Production) []string {
		var out []string
		for _, p := range rules {
			out = append(out, p.Name)
		}
		return out
	}
	assert.Equal(t, []string{"elaborate", "return"}, names(a.Rules.Rules(wm.UserProduction)))
	assert.Equal(t, []string{"chunk-1"}, names(a.Rules.Rules(wm.ChunkProduction)))
}

func TestTieUsesLongNamesAndNots(t *testing.T) {
	a := load(t, "tie.yaml")
	assert.True(t, a.Learner.Config().LongNames)

	reports := a.Run()
	require.Len(t, reports, 1)
	r := reports[0]
	require.Equal(t, chunk.Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, "chunk-1*d7*tie*1", r.Name)
	assert.Equal(t, 1, r.Nots)
	assert.Equal(t, "sp {chunk-1*d7*tie*1\n   :chunk\n   (state <s1> ^block { <b1> <> <b2> })\n   (<s1> ^block <b2>)\n   -->\n   (<s1> ^pick <b1> +)\n}", r.Production.String())
	assert.NoError(t, a.Check(reports))
}

func TestQuiescenceJustifies(t *testing.T) {
	a := load(t, "quiescence.yaml")
	r := a.Run()[0]
	require.Equal(t, chunk.Accepted, r.Outcome, "err: %v", r.Err)
	assert.Equal(t, "justification-1", r.Name)
	assert.Equal(t, wm.JustificationProduction, r.Type)
	assert.True(t, r.Quiescence)
}

func TestDontLearnAndCheck(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "blocks.yaml"))
	require.NoError(t, err)
	s.DontLearn = []string{"S2"}
	cfg := config.DefaultLearningConfig()
	cfg.Mode = config.LearningExcept
	a, err := s.Build(cfg)
	require.NoError(t, err)

	reports := a.Run()
	require.Len(t, reports, 1)
	assert.Equal(t, wm.JustificationProduction, reports[0].Type)

	a.Expect = map[string][]string{"return": {"duplicate"}}
	assert.ErrorContains(t, a.Check(reports), "expected [duplicate], got [accepted]")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "goals: [{name: S1}]\nchunk: [r]", "no name"},
		{"no goals", "name: x\nchunk: [r]", "no goals"},
		{"nothing to chunk", "name: x\ngoals: [{name: S1}]", "nothing to chunk"},
		{"bad yaml", "name: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	base := `name: x
goals:
  - name: S1
  - name: S2
    superstate: S1
    impasse: tie
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown superstate", "name: x\ngoals: [{name: S2, superstate: S9}]\nchunk: [r]", "unknown superstate S9"},
		{"unknown impasse", "name: x\ngoals: [{name: S1, impasse: bored}]\nchunk: [r]", "unknown impasse"},
		{"unknown wme", base + "firings: [{rule: r, goal: S2, match: [w]}]\nchunk: [r]", "unknown wme w"},
		{"unknown goal", base + "firings: [{rule: r, goal: S7}]\nchunk: [r]", "unknown goal S7"},
		{"no firing", base + "chunk: [r]", "no firing of r"},
		{"short triple", base + "wmes: {w: [S1, a]}\nchunk: [r]", "expected 3 elements"},
		{"constant id", base + "wmes: {w: [x, a, b]}\nchunk: [r]", "is not an identifier"},
		{"bad kind", base + "firings: [{rule: r, goal: S2, make: [{kind: maybe, pref: [S1, a, b]}]}]\nchunk: [r]", "unknown preference kind"},
		{"bad learning", base + "learning: {mode: sometimes}\nchunk: [r]", "invalid learning mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = s.Build(config.DefaultLearningConfig())
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestBinaryPreferenceNeedsReferent(t *testing.T) {
	s, err := Parse([]byte(`name: x
goals:
  - name: S1
  - name: S2
    superstate: S1
    impasse: tie
firings:
  - rule: r
    goal: S2
    make:
      - {kind: better, pref: [S1, op, a, b]}
chunk: [r]
`))
	require.NoError(t, err)
	a, err := s.Build(config.DefaultLearningConfig())
	require.NoError(t, err)
	require.Len(t, a.Seeds[0].Preferences, 1)
	p := a.Memory.Pref(a.Seeds[0].Preferences[0])
	require.NotNil(t, p)
	assert.Equal(t, wm.BetterPref, p.Kind)
	assert.Equal(t, "b", p.Referent.String())
}
