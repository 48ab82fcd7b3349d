package chunk

import (
	"fmt"

	"chunker/internal/symtab"
	"chunker/internal/wm"
)

// generateName picks the new rule's name and type. Chunks count toward the
// cycle's limit; justifications do not.
func (b *build) generateName() (string, wm.ProductionType) {
	if !b.variablize {
		return b.shortName(b.l.cfg.JustificationPrefix, &b.l.justificationCount), wm.JustificationProduction
	}
	b.c.chunks++
	if b.l.cfg.LongNames {
		return b.longName(), wm.ChunkProduction
	}
	return b.shortName(b.l.cfg.ChunkPrefix, &b.l.chunkCount), wm.ChunkProduction
}

// shortName returns prefix-N for the first N past *counter that no rule uses.
func (b *build) shortName(prefix string, counter *uint64) string {
	for {
		*counter++
		name := fmt.Sprintf("%s-%d", prefix, *counter)
		if _, taken := b.l.rules.Find(name); !taken {
			return name
		}
	}
}

// longName returns prefix-N*dD*impasse*K, where D is the decision cycle and K
// counts chunks built in it. A taken name gets a *2, *3, ... suffix.
func (b *build) longName() string {
	b.l.chunkCount++
	base := fmt.Sprintf("%s-%d*d%d*%s*%d", b.l.cfg.ChunkPrefix, b.l.chunkCount, b.c.decision, b.impasseName(), b.c.chunks)
	name := base
	for k := 2; ; k++ {
		if _, taken := b.l.rules.Find(name); !taken {
			return name
		}
		name = fmt.Sprintf("%s*%d", base, k)
	}
}

// impasseName describes the impasse of the subgoal directly below the
// deepest goal the results were returned to.
func (b *build) impasseName() string {
	lowest := -1
	for _, p := range b.results {
		if p.ID.Level > lowest {
			lowest = p.ID.Level
		}
	}

	var g *symtab.Symbol
	for s := b.inst.MatchGoal; s != nil && s.Goal != nil; s = s.Goal.Higher {
		if s.Level == lowest+1 {
			g = s
			break
		}
	}
	if g == nil {
		return "unknownimpasse"
	}

	switch g.Goal.Impasse {
	case symtab.ImpasseNone:
		return "none"
	case symtab.ImpasseConstraintFailure:
		return "cfailure"
	case symtab.ImpasseConflict:
		return "conflict"
	case symtab.ImpasseTie:
		return "tie"
	case symtab.ImpasseNoChange:
		switch g.Goal.ImpasseAttr {
		case "operator":
			return "opnochange"
		case "state":
			return "snochange"
		}
	}
	return "unknownimpasse"
}
