package chunk

import (
	"chunker/internal/wm"
)

// condSetBuckets is the fixed size of a CondSet's bucket table. It must be a
// power of two.
const condSetBuckets = 1 << 6

// ChunkCond pairs a ground condition with the two copies made of it: one for
// the new instantiation and one that is variablized into the new rule.
type ChunkCond struct {
	Cond         *wm.Condition
	Instantiated *wm.Condition
	Variablized  *wm.Condition
	Hash         uint64

	next       *ChunkCond // discovery order
	nextBucket *ChunkCond
}

// Next returns the following entry in discovery order.
func (cc *ChunkCond) Next() *ChunkCond { return cc.next }

func newChunkCond(c *wm.Condition) *ChunkCond {
	return &ChunkCond{Cond: c, Hash: c.Hash()}
}

// CondSet is an insertion-ordered set of conditions with structural
// deduplication.
type CondSet struct {
	buckets [condSetBuckets]*ChunkCond
	head    *ChunkCond
	tail    *ChunkCond
	n       int
}

// Add inserts cc unless a structurally equal condition is already present. It
// reports whether cc was added.
func (s *CondSet) Add(cc *ChunkCond) bool {
	b := cc.Hash & (condSetBuckets - 1)
	for old := s.buckets[b]; old != nil; old = old.nextBucket {
		if old.Hash == cc.Hash && old.Cond.Equal(cc.Cond) {
			return false
		}
	}
	cc.nextBucket = s.buckets[b]
	s.buckets[b] = cc

	cc.next = nil
	if s.tail == nil {
		s.head = cc
	} else {
		s.tail.next = cc
	}
	s.tail = cc
	s.n++
	return true
}

// AddCondition wraps c in a ChunkCond and adds it.
func (s *CondSet) AddCondition(c *wm.Condition) bool {
	return s.Add(newChunkCond(c))
}

// First returns the first entry in discovery order.
func (s *CondSet) First() *ChunkCond { return s.head }

// Len returns the number of entries.
func (s *CondSet) Len() int { return s.n }

// Conditions returns the original conditions in discovery order.
func (s *CondSet) Conditions() []*wm.Condition {
	out := make([]*wm.Condition, 0, s.n)
	for cc := s.head; cc != nil; cc = cc.next {
		out = append(out, cc.Cond)
	}
	return out
}
