package symtab

import "fmt"

// VariableGenerator hands out fresh variables for one rule. Names already used
// by the rule are reserved up front so generated variables never capture them.
type VariableGenerator struct {
	table   *Table
	used    map[string]bool
	counter map[byte]int
}

// NewVariableGenerator returns a generator that avoids every name in used.
func (t *Table) NewVariableGenerator(used []string) *VariableGenerator {
	g := &VariableGenerator{
		table:   t,
		used:    make(map[string]bool, len(used)),
		counter: make(map[byte]int),
	}
	for _, name := range used {
		g.used[name] = true
	}
	return g
}

// Next returns a new variable "<pN>" for prefix letter p. The caller owns the
// returned reference.
func (g *VariableGenerator) Next(prefix byte) *Symbol {
	for {
		g.counter[prefix]++
		name := fmt.Sprintf("<%c%d>", prefix, g.counter[prefix])
		if g.used[name] {
			continue
		}
		g.used[name] = true
		return g.table.Variable(name)
	}
}
