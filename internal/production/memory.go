// Package production is the agent's production memory: the named rules, the
// duplicate check applied to learned rules, and the condition reorderer.
package production

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"chunker/internal/logging"
	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// ErrNameTaken is returned by Add for a name already in memory.
var ErrNameTaken = errors.New("production name already in use")

// Memory holds an agent's rules.
type Memory struct {
	mu    sync.RWMutex
	rules map[string]*wm.Production
	// canon maps the canonical rendering of each rule to its name.
	canon map[string]string
}

// NewMemory returns an empty production memory.
func NewMemory() *Memory {
	return &Memory{
		rules: make(map[string]*wm.Production),
		canon: make(map[string]string),
	}
}

// Add inserts a user rule. Unlike Insert it reports name clashes instead of
// treating structural twins as duplicates.
func (m *Memory) Add(p *wm.Production) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[p.Name]; ok {
		return fmt.Errorf("%w: %s", ErrNameTaken, p.Name)
	}
	m.rules[p.Name] = p
	key := canonical(p)
	if _, ok := m.canon[key]; !ok {
		m.canon[key] = p.Name
	}
	logging.RulesDebug("added %s", p.Name)
	return nil
}

// Insert adds a learned rule. A rule structurally identical to one already in
// memory is a duplicate. Otherwise the rule must match inst, the firing it was
// built from, or it is refused.
func (m *Memory) Insert(p *wm.Production, inst *wm.Instantiation, logName bool) wm.InsertResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := canonical(p)
	if other, ok := m.canon[key]; ok {
		logging.Rules("%s is a duplicate of %s", p.Name, other)
		logging.Audit().RuleOp(logging.AuditRuleInsert, p.Name, false)
		return wm.InsertDuplicate
	}
	if inst != nil {
		if err := matches(p.LHS, inst.Conditions); err != nil {
			logging.Get(logging.CategoryRules).Warn("%s does not match the instantiation it was built from: %v", p.Name, err)
			logging.Audit().RuleOp(logging.AuditRuleInsert, p.Name, false)
			return wm.InsertRefractedMismatch
		}
	}

	m.rules[p.Name] = p
	m.canon[key] = p.Name
	if logName {
		logging.Rules("inserted %s %s", p.Type, p.Name)
	}
	logging.Audit().RuleOp(logging.AuditRuleInsert, p.Name, true)
	return wm.InsertAccepted
}

// Excise removes p if it is in memory and releases the variable references
// its conditions and actions hold. Rules that were never inserted are still
// released.
func (m *Memory) Excise(p *wm.Production) {
	m.mu.Lock()
	removed := false
	if cur, ok := m.rules[p.Name]; ok && cur == p {
		delete(m.rules, p.Name)
		key := canonical(p)
		if m.canon[key] == p.Name {
			delete(m.canon, key)
		}
		removed = true
	}
	m.mu.Unlock()

	releaseVariables(p)
	if removed {
		logging.RulesDebug("excised %s", p.Name)
		logging.Audit().RuleOp(logging.AuditRuleExcise, p.Name, true)
	}
}

// Find looks a rule up by name.
func (m *Memory) Find(name string) (*wm.Production, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.rules[name]
	return p, ok
}

// Len returns the number of rules.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Rules returns the rules of the given types sorted by name. No types means
// all rules.
func (m *Memory) Rules(types ...wm.ProductionType) []*wm.Production {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*wm.Production, 0, len(m.rules))
	for _, p := range m.rules {
		if len(types) == 0 || containsType(types, p.Type) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func containsType(types []wm.ProductionType, t wm.ProductionType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func releaseVariables(p *wm.Production) {
	release := func(slot **symtab.Symbol) {
		if (*slot).IsVariable() {
			symtab.Release(*slot)
		}
	}
	eachSymbol(p.LHS, release)
	for _, a := range p.RHS {
		release(&a.ID)
		release(&a.Attr)
		release(&a.Value)
		if a.Referent != nil {
			release(&a.Referent)
		}
	}
}

// eachSymbol calls fn with every symbol slot in conds, nested negations
// included.
func eachSymbol(conds wm.ConditionList, fn func(**symtab.Symbol)) {
	for c := conds.Head; c != nil; c = c.Next {
		condSymbols(c, fn)
	}
}

func condSymbols(c *wm.Condition, fn func(**symtab.Symbol)) {
	if c.Kind == wm.ConjunctiveNegationCondition {
		eachSymbol(c.NCC, fn)
		return
	}
	c.Tests(func(slot **wm.Test) { (*slot).Symbols(false, fn) })
}

// canonical renders p with its variables renamed in order of first use, so
// rules that differ only in variable names render the same.
func canonical(p *wm.Production) string {
	names := make(map[*symtab.Symbol]*symtab.Symbol)
	rename := func(slot **symtab.Symbol) {
		s := *slot
		if !s.IsVariable() {
			return
		}
		r, ok := names[s]
		if !ok {
			r = &symtab.Symbol{Kind: symtab.VariableKind, Name: fmt.Sprintf("<v%d>", len(names)+1)}
			names[s] = r
		}
		*slot = r
	}

	lhs := p.LHS.Copy()
	eachSymbol(lhs, rename)
	rhs := wm.CopyActions(p.RHS)
	for _, a := range rhs {
		rename(&a.ID)
		rename(&a.Attr)
		rename(&a.Value)
		if a.Referent != nil {
			rename(&a.Referent)
		}
	}
	c := &wm.Production{Type: wm.UserProduction, LHS: lhs, RHS: rhs}
	return c.String()
}
