// Package mangle wraps the Google Mangle Datalog engine for the explanation
// facility: a schema is loaded once, facts are added in batches, and derived
// predicates are read back from the store after evaluation.
package mangle

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"chunker/internal/logging"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// Config holds Mangle engine configuration.
type Config struct {
	FactLimit int  `json:"fact_limit"`
	AutoEval  bool `json:"auto_eval"` // evaluate rules after every batch
}

// DefaultConfig returns the defaults used by the explanation projection.
func DefaultConfig() Config {
	return Config{
		FactLimit: 200000,
		AutoEval:  true,
	}
}

// Engine holds one program and its fact store.
type Engine struct {
	config Config

	mu          sync.RWMutex
	store       factstore.FactStoreWithRemove
	programInfo *analysis.ProgramInfo
	predicates  map[string]ast.PredicateSym
	decls       map[ast.PredicateSym]*ast.Decl
	fragments   []parse.SourceUnit
	factCount   int
	lastUpdate  time.Time
}

// Fact is one ground atom.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
}

// String returns the Datalog form of the fact.
func (f Fact) String() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			if strings.HasPrefix(v, "/") {
				args[i] = v
			} else {
				args[i] = fmt.Sprintf("%q", v)
			}
		case int64:
			args[i] = fmt.Sprintf("%d", v)
		case int:
			args[i] = fmt.Sprintf("%d", v)
		case float64:
			args[i] = fmt.Sprintf("%f", v)
		default:
			args[i] = fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// Stats contains engine statistics.
type Stats struct {
	TotalFacts      int            `json:"total_facts"`
	PredicateCounts map[string]int `json:"predicate_counts"`
	LastUpdate      time.Time      `json:"last_update"`
}

// NewEngine creates an engine with an empty in-memory store.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		config:     cfg,
		store:      factstore.NewSimpleInMemoryStore(),
		predicates: make(map[string]ast.PredicateSym),
		decls:      make(map[ast.PredicateSym]*ast.Decl),
	}
}

// LoadSchemaString parses a schema fragment and re-analyzes the whole
// program. Fragments accumulate across calls.
func (e *Engine) LoadSchemaString(schema string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return fmt.Errorf("failed to parse schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.fragments = append(e.fragments, unit)
	if err := e.analyzeLocked(); err != nil {
		e.fragments = e.fragments[:len(e.fragments)-1]
		return fmt.Errorf("failed to analyze schema: %w", err)
	}
	logging.ExplainDebug("mangle schema loaded: %d predicates", len(e.predicates))
	return nil
}

func (e *Engine) analyzeLocked() error {
	var unit parse.SourceUnit
	for _, f := range e.fragments {
		unit.Clauses = append(unit.Clauses, f.Clauses...)
		unit.Decls = append(unit.Decls, f.Decls...)
	}

	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return err
	}

	e.programInfo = info
	e.predicates = make(map[string]ast.PredicateSym, len(info.Decls))
	e.decls = make(map[ast.PredicateSym]*ast.Decl, len(info.Decls))
	for sym, decl := range info.Decls {
		e.predicates[sym.Symbol] = sym
		e.decls[sym] = decl
	}
	return nil
}

// AddFact inserts a single fact.
func (e *Engine) AddFact(predicate string, args ...interface{}) error {
	return e.AddFacts([]Fact{{Predicate: predicate, Args: args}})
}

// AddFacts inserts a batch and, with AutoEval, brings derived predicates up
// to date.
func (e *Engine) AddFacts(facts []Fact) error {
	if len(facts) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.programInfo == nil {
		return fmt.Errorf("no schema loaded")
	}
	for _, f := range facts {
		if err := e.insertLocked(f); err != nil {
			return err
		}
	}
	e.lastUpdate = time.Now()

	if e.config.AutoEval {
		return e.evalLocked()
	}
	return nil
}

// Evaluate runs the program's rules to a fixpoint over the current store.
func (e *Engine) Evaluate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.programInfo == nil {
		return fmt.Errorf("no schema loaded")
	}
	return e.evalLocked()
}

func (e *Engine) evalLocked() error {
	stats, err := mengine.EvalProgramWithStats(e.programInfo, e.store)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	logging.ExplainDebug("mangle evaluation: %+v", stats)
	return nil
}

func (e *Engine) insertLocked(f Fact) error {
	if e.config.FactLimit > 0 && e.factCount >= e.config.FactLimit {
		return fmt.Errorf("fact limit exceeded: %d", e.config.FactLimit)
	}
	atom, err := e.atomLocked(f)
	if err != nil {
		return err
	}
	if e.store.Add(atom) {
		e.factCount++
	}
	return nil
}

func (e *Engine) atomLocked(f Fact) (ast.Atom, error) {
	sym, ok := e.predicates[f.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared", f.Predicate)
	}
	if len(f.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", f.Predicate, sym.Arity, len(f.Args))
	}

	var bounds []ast.BaseTerm
	if decl := e.decls[sym]; decl != nil && len(decl.Bounds) > 0 {
		bounds = decl.Bounds[0].Bounds
	}

	args := make([]ast.BaseTerm, len(f.Args))
	for i, raw := range f.Args {
		expected := ast.ConstantType(-1)
		if i < len(bounds) {
			if c, ok := bounds[i].(ast.Constant); ok {
				expected = boundType(c.Symbol)
			}
		}
		term, err := toTerm(raw, expected)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("predicate %s arg %d: %w", f.Predicate, i, err)
		}
		args[i] = term
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

func boundType(s string) ast.ConstantType {
	switch s {
	case "/name":
		return ast.NameType
	case "/string":
		return ast.StringType
	case "/number":
		return ast.NumberType
	case "/float64":
		return ast.Float64Type
	}
	return -1
}

// toTerm converts a Go value to a constant. A declared /string bound keeps
// the value a string even when it starts with a slash; otherwise a leading
// slash makes a name.
func toTerm(value interface{}, expected ast.ConstantType) (ast.BaseTerm, error) {
	switch v := value.(type) {
	case ast.BaseTerm:
		return v, nil
	case string:
		switch {
		case expected == ast.StringType:
			return ast.String(v), nil
		case expected == ast.NameType && !strings.HasPrefix(v, "/"):
			return ast.Name("/" + v)
		case strings.HasPrefix(v, "/"):
			return ast.Name(v)
		}
		return ast.String(v), nil
	case fmt.Stringer:
		return ast.String(v.String()), nil
	case int:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case float64:
		return ast.Float64(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	}
	return nil, fmt.Errorf("unsupported fact argument type %T", value)
}

// GetFacts returns every stored fact of predicate, base or derived, sorted by
// their Datalog rendering.
func (e *Engine) GetFacts(predicate string) ([]Fact, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sym, ok := e.predicates[predicate]
	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared", predicate)
	}

	var out []Fact
	err := e.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		args := make([]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			args[i] = fromTerm(arg)
		}
		out = append(out, Fact{Predicate: predicate, Args: args})
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, err
}

// QueryFacts returns the facts of predicate whose leading arguments equal
// args. An empty string matches anything.
func (e *Engine) QueryFacts(predicate string, args ...string) ([]Fact, error) {
	facts, err := e.GetFacts(predicate)
	if err != nil || len(args) == 0 {
		return facts, err
	}

	var out []Fact
	for _, f := range facts {
		if matchArgs(f, args) {
			out = append(out, f)
		}
	}
	return out, nil
}

func matchArgs(f Fact, args []string) bool {
	for i, want := range args {
		if want == "" || i >= len(f.Args) {
			continue
		}
		if got := fmt.Sprintf("%v", f.Args[i]); got != want && strings.TrimPrefix(got, "/") != want {
			return false
		}
	}
	return true
}

// GetStats returns per-predicate fact counts.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int)
	total := 0
	for _, sym := range e.store.ListPredicates() {
		n := 0
		_ = e.store.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
			n++
			return nil
		})
		counts[sym.Symbol] = n
		total += n
	}
	return Stats{TotalFacts: total, PredicateCounts: counts, LastUpdate: e.lastUpdate}
}

// Clear drops every fact and keeps the schema.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = factstore.NewSimpleInMemoryStore()
	e.factCount = 0
}

func fromTerm(term ast.BaseTerm) interface{} {
	c, ok := term.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", term)
	}
	switch c.Type {
	case ast.StringType, ast.NameType, ast.BytesType:
		return c.Symbol
	case ast.NumberType:
		return c.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(c.NumValue))
	}
	return c.String()
}
