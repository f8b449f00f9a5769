package controller

import (
	"sort"

	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/idxtable"
	"github.com/henderiw/rangetable/pkg/rangedef"
	"github.com/henderiw/rangetable/pkg/rangetype"
)

type idSet map[idxtable.ID]struct{}

func (s idSet) has(id idxtable.ID) bool {
	_, ok := s[id]
	return ok
}

// sorted returns the members of s missing from other, ascending. A nil
// other yields every member.
func (s idSet) sorted(other idSet) []idxtable.ID {
	ids := make([]idxtable.ID, 0, len(s))
	for id := range s {
		if !other.has(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot is the membership of every tier after one update. A snapshot is
// never modified once published; each update replaces it.
type Snapshot struct {
	Generation uint64
	Viewport   geom.Rect
	Direction  rangedef.Direction

	members [rangetype.Count]idSet
}

func newSnapshot(gen uint64) *Snapshot {
	s := &Snapshot{Generation: gen}
	for i := range s.members {
		s.members[i] = idSet{}
	}
	return s
}

// Has reports whether id is inside rt.
func (s *Snapshot) Has(id idxtable.ID, rt rangetype.RangeType) bool {
	if !rt.IsValid() {
		return false
	}
	return s.members[rt].has(id)
}

// Tiers returns every tier id is inside.
func (s *Snapshot) Tiers(id idxtable.ID) rangetype.Mask {
	var m rangetype.Mask
	for _, rt := range rangetype.All() {
		if s.members[rt].has(id) {
			m = m.With(rt)
		}
	}
	return m
}

// Members returns the ids inside rt in ascending order.
func (s *Snapshot) Members(rt rangetype.RangeType) []idxtable.ID {
	if !rt.IsValid() {
		return nil
	}
	return s.members[rt].sorted(nil)
}

func (s *Snapshot) Len(rt rangetype.RangeType) int {
	if !rt.IsValid() {
		return 0
	}
	return len(s.members[rt])
}

// retain returns s without the members keep rejects. s itself is returned
// when nothing is dropped; otherwise the result is a copy, so a published
// snapshot is never modified.
func (s *Snapshot) retain(keep func(id idxtable.ID) bool) *Snapshot {
	var out *Snapshot
	for rt, set := range s.members {
		for id := range set {
			if keep(id) {
				continue
			}
			if out == nil {
				out = s.clone()
			}
			delete(out.members[rt], id)
		}
	}
	if out == nil {
		return s
	}
	return out
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Generation: s.Generation,
		Viewport:   s.Viewport,
		Direction:  s.Direction,
	}
	for rt, set := range s.members {
		m := make(idSet, len(set))
		for id := range set {
			m[id] = struct{}{}
		}
		out.members[rt] = m
	}
	return out
}

// diff lists the transitions from prev to next: every exit tightest tier
// first, then every entry loosest tier first. Ids are ascending per tier.
func diff(prev, next *Snapshot) []Event {
	var events []Event
	for _, rt := range rangetype.All() {
		for _, id := range prev.members[rt].sorted(next.members[rt]) {
			events = append(events, Event{ID: id, RangeType: rt, Transition: Exited})
		}
	}
	all := rangetype.All()
	for i := len(all) - 1; i >= 0; i-- {
		rt := all[i]
		for _, id := range next.members[rt].sorted(prev.members[rt]) {
			events = append(events, Event{ID: id, RangeType: rt, Transition: Entered})
		}
	}
	return events
}
