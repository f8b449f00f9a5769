// Package index resolves which registered nodes intersect a query
// rectangle. Implementations keep per-node bounds so a single node can be
// moved or removed without rebuilding the index.
package index

import (
	"sort"

	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/idxtable"
)

// Index is safe for concurrent readers; mutations are exclusive with
// searches.
type Index interface {
	// Insert adds id or, if present, moves it to r.
	Insert(id idxtable.ID, r geom.Rect)
	// Move updates the bounds of id. It reports false when id is unknown.
	Move(id idxtable.ID, r geom.Rect) bool
	// Remove deletes id. It reports false when id is unknown.
	Remove(id idxtable.ID) bool
	Bounds(id idxtable.ID) (geom.Rect, bool)
	// Search calls fn once for every id whose bounds intersect r, until fn
	// returns false. fn must not mutate the index.
	Search(r geom.Rect, fn func(id idxtable.ID) bool)
	Len() int
	Clear()
}

// Query collects the ids intersecting r in ascending order.
func Query(idx Index, r geom.Rect) []idxtable.ID {
	ids := []idxtable.ID{}
	idx.Search(r, func(id idxtable.ID) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
