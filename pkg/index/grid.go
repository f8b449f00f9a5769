package index

import (
	"fmt"
	"math"
	"sync"

	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/idxtable"
)

// DefaultCellSize suits rows of a few hundred points scrolled one
// screenful at a time.
const DefaultCellSize = 256

type cellKey uint64

func newCellKey(cx, cy int32) cellKey {
	return cellKey(uint64(uint32(cx))<<32 | uint64(uint32(cy)))
}

// cellSpan is the inclusive range of cells covered by a rect.
type cellSpan struct {
	minX, minY, maxX, maxY int32
}

// count saturates at math.MaxUint64; a clamped span is up to 2^32 cells on
// each axis.
func (s cellSpan) count() uint64 {
	w := uint64(int64(s.maxX)-int64(s.minX)) + 1
	h := uint64(int64(s.maxY)-int64(s.minY)) + 1
	if w > math.MaxUint64/h {
		return math.MaxUint64
	}
	return w * h
}

// maxSpanCells bounds how many cells a single node is bucketed into; larger
// nodes are kept aside and checked on every search.
const maxSpanCells = 4096

type gridEntry struct {
	bounds   geom.Rect
	span     cellSpan
	bucketed bool
}

// NewGrid returns a uniform spatial hash. Every node is bucketed into each
// cell its bounds touch; a search visits the cells covered by the query and
// checks the candidates. cellSize <= 0 selects DefaultCellSize.
func NewGrid(cellSize float64) Index {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}
	return &grid{
		m:        new(sync.RWMutex),
		cellSize: cellSize,
		cells:    map[cellKey]map[idxtable.ID]struct{}{},
		entries:  map[idxtable.ID]gridEntry{},
		large:    map[idxtable.ID]struct{}{},
	}
}

type grid struct {
	m        *sync.RWMutex
	cellSize float64
	cells    map[cellKey]map[idxtable.ID]struct{}
	entries  map[idxtable.ID]gridEntry
	// large holds nodes spanning more than maxSpanCells cells
	large map[idxtable.ID]struct{}
}

func (r *grid) cell(v float64) int32 {
	c := math.Floor(v / r.cellSize)
	switch {
	case c < math.MinInt32:
		return math.MinInt32
	case c > math.MaxInt32:
		return math.MaxInt32
	}
	return int32(c)
}

func (r *grid) spanOf(b geom.Rect) cellSpan {
	return cellSpan{
		minX: r.cell(b.Min.X),
		minY: r.cell(b.Min.Y),
		maxX: r.cell(b.Max.X),
		maxY: r.cell(b.Max.Y),
	}
}

func (r *grid) Insert(id idxtable.ID, b geom.Rect) {
	r.m.Lock()
	defer r.m.Unlock()

	r.set(id, b)
}

func (r *grid) Move(id idxtable.ID, b geom.Rect) bool {
	r.m.Lock()
	defer r.m.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	r.set(id, b)
	return true
}

func (r *grid) set(id idxtable.ID, b geom.Rect) {
	b = b.Canon()
	if !b.IsValid() {
		// never intersects anything, but stays known to Bounds and Len
		r.drop(id)
		r.entries[id] = gridEntry{bounds: b}
		return
	}
	span := r.spanOf(b)
	if span.count() > maxSpanCells {
		r.drop(id)
		r.entries[id] = gridEntry{bounds: b}
		r.large[id] = struct{}{}
		return
	}
	if e, ok := r.entries[id]; ok && e.bucketed && e.span == span {
		// same cells, only the bounds changed
		r.entries[id] = gridEntry{bounds: b, span: span, bucketed: true}
		return
	}
	r.drop(id)
	r.entries[id] = gridEntry{bounds: b, span: span, bucketed: true}
	for cx := span.minX; ; cx++ {
		for cy := span.minY; ; cy++ {
			k := newCellKey(cx, cy)
			ids, ok := r.cells[k]
			if !ok {
				ids = map[idxtable.ID]struct{}{}
				r.cells[k] = ids
			}
			ids[id] = struct{}{}
			if cy == span.maxY {
				break
			}
		}
		if cx == span.maxX {
			break
		}
	}
}

// drop removes id from every cell and from the large set.
func (r *grid) drop(id idxtable.ID) {
	e, ok := r.entries[id]
	if !ok {
		return
	}
	if e.bucketed {
		r.unbucket(id, e.span)
	}
	delete(r.large, id)
}

func (r *grid) unbucket(id idxtable.ID, span cellSpan) {
	for cx := span.minX; ; cx++ {
		for cy := span.minY; ; cy++ {
			k := newCellKey(cx, cy)
			if ids, ok := r.cells[k]; ok {
				delete(ids, id)
				if len(ids) == 0 {
					delete(r.cells, k)
				}
			}
			if cy == span.maxY {
				break
			}
		}
		if cx == span.maxX {
			break
		}
	}
}

func (r *grid) Remove(id idxtable.ID) bool {
	r.m.Lock()
	defer r.m.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	r.drop(id)
	delete(r.entries, id)
	return true
}

func (r *grid) Bounds(id idxtable.ID) (geom.Rect, bool) {
	r.m.RLock()
	defer r.m.RUnlock()

	e, ok := r.entries[id]
	return e.bounds, ok
}

func (r *grid) Search(q geom.Rect, fn func(id idxtable.ID) bool) {
	r.m.RLock()
	defer r.m.RUnlock()

	q = q.Canon()
	if !q.IsValid() || len(r.entries) == 0 {
		return
	}
	span := r.spanOf(q)

	// a query covering more cells than there are entries is cheaper as a scan
	if span.count() > uint64(len(r.entries)) {
		for id, e := range r.entries {
			if e.bounds.Intersects(q) && !fn(id) {
				return
			}
		}
		return
	}

	seen := make(map[idxtable.ID]struct{})
	for id := range r.large {
		seen[id] = struct{}{}
		if r.entries[id].bounds.Intersects(q) && !fn(id) {
			return
		}
	}
	for cx := span.minX; ; cx++ {
		for cy := span.minY; ; cy++ {
			for id := range r.cells[newCellKey(cx, cy)] {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				if r.entries[id].bounds.Intersects(q) && !fn(id) {
					return
				}
			}
			if cy == span.maxY {
				break
			}
		}
		if cx == span.maxX {
			break
		}
	}
}

func (r *grid) Len() int {
	r.m.RLock()
	defer r.m.RUnlock()

	return len(r.entries)
}

func (r *grid) Clear() {
	r.m.Lock()
	defer r.m.Unlock()

	r.cells = map[cellKey]map[idxtable.ID]struct{}{}
	r.entries = map[idxtable.ID]gridEntry{}
	r.large = map[idxtable.ID]struct{}{}
}

func (r *grid) String() string {
	r.m.RLock()
	defer r.m.RUnlock()

	return fmt.Sprintf("grid(cell=%g, entries=%d, cells=%d)", r.cellSize, len(r.entries), len(r.cells))
}
