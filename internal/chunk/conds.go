package chunk

import (
	"chunker/internal/logging"
	"chunker/internal/wm"
)

// buildChunkConds turns the grounds into chunk conditions and adds the negated
// conditions that test only grounded identifiers. The grounds closure is kept
// for collectNots.
func (b *build) buildChunkConds() {
	b.groundsTC = b.l.syms.NewTC()
	for _, g := range b.grounds {
		b.conds = append(b.conds, &ChunkCond{
			Cond:         g,
			Instantiated: g.Copy(),
			Variablized:  g.Copy(),
			Hash:         g.Hash(),
		})
		addCondToTC(g, b.groundsTC, nil)
	}

	for cc := b.negated.First(); cc != nil; cc = cc.Next() {
		if !condInTC(cc.Cond, b.groundsTC) {
			b.discarded++
			b.warn("dropping negated condition %s: it tests identifiers that are not in the grounds", cc.Cond)
			if !b.l.cfg.LocalNegations {
				b.reliable = false
			}
			continue
		}
		cc.Instantiated = cc.Cond.Copy()
		cc.Variablized = cc.Cond.Copy()
		b.conds = append(b.conds, cc)
	}
	logging.BacktraceDebug("%d chunk conditions, %d negated dropped", len(b.conds), b.discarded)
}

// collectNots keeps the inequalities of traced firings whose two identifiers
// both appear in the grounds, each pair once.
func (b *build) collectNots() {
	for _, inst := range b.instsWithNots {
	next:
		for _, n := range inst.Nots {
			if !symbolInTC(n.S1, b.groundsTC) || !symbolInTC(n.S2, b.groundsTC) {
				continue
			}
			for _, k := range b.nots {
				if (k.S1 == n.S1 && k.S2 == n.S2) || (k.S1 == n.S2 && k.S2 == n.S1) {
					continue next
				}
			}
			b.nots = append(b.nots, wm.Not{S1: n.S1, S2: n.S2})
		}
	}
}
