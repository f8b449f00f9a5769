package index

import (
	"sync"

	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/idxtable"
	"github.com/tidwall/rtree"
)

// NewRTree returns an index backed by an R-tree. It adapts to uneven node
// sizes and densities better than the grid, at a higher cost per move.
func NewRTree() Index {
	return &rtreeIndex{
		m:      new(sync.RWMutex),
		bounds: map[idxtable.ID]geom.Rect{},
	}
}

type rtreeIndex struct {
	m      *sync.RWMutex
	tr     rtree.RTreeG[idxtable.ID]
	bounds map[idxtable.ID]geom.Rect
}

func box(r geom.Rect) (lo, hi [2]float64) {
	return [2]float64{r.Min.X, r.Min.Y}, [2]float64{r.Max.X, r.Max.Y}
}

func (r *rtreeIndex) Insert(id idxtable.ID, b geom.Rect) {
	r.m.Lock()
	defer r.m.Unlock()

	r.set(id, b)
}

func (r *rtreeIndex) Move(id idxtable.ID, b geom.Rect) bool {
	r.m.Lock()
	defer r.m.Unlock()

	if _, ok := r.bounds[id]; !ok {
		return false
	}
	r.set(id, b)
	return true
}

func (r *rtreeIndex) set(id idxtable.ID, b geom.Rect) {
	b = b.Canon()
	if old, ok := r.bounds[id]; ok {
		if old == b {
			return
		}
		r.delete(id, old)
	}
	r.bounds[id] = b
	if b.IsValid() {
		lo, hi := box(b)
		r.tr.Insert(lo, hi, id)
	}
}

// delete removes id from the tree; bounds that never made it into the tree
// are skipped.
func (r *rtreeIndex) delete(id idxtable.ID, b geom.Rect) {
	if b.IsValid() {
		lo, hi := box(b)
		r.tr.Delete(lo, hi, id)
	}
	delete(r.bounds, id)
}

func (r *rtreeIndex) Remove(id idxtable.ID) bool {
	r.m.Lock()
	defer r.m.Unlock()

	b, ok := r.bounds[id]
	if !ok {
		return false
	}
	r.delete(id, b)
	return true
}

func (r *rtreeIndex) Bounds(id idxtable.ID) (geom.Rect, bool) {
	r.m.RLock()
	defer r.m.RUnlock()

	b, ok := r.bounds[id]
	return b, ok
}

func (r *rtreeIndex) Search(q geom.Rect, fn func(id idxtable.ID) bool) {
	r.m.RLock()
	defer r.m.RUnlock()

	q = q.Canon()
	if !q.IsValid() {
		return
	}
	lo, hi := box(q)
	r.tr.Search(lo, hi, func(_, _ [2]float64, id idxtable.ID) bool {
		if !r.bounds[id].Intersects(q) {
			return true
		}
		return fn(id)
	})
}

func (r *rtreeIndex) Len() int {
	r.m.RLock()
	defer r.m.RUnlock()

	return len(r.bounds)
}

func (r *rtreeIndex) Clear() {
	r.m.Lock()
	defer r.m.Unlock()

	r.tr = rtree.RTreeG[idxtable.ID]{}
	r.bounds = map[idxtable.ID]geom.Rect{}
}
