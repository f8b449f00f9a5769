package controller

import (
	"errors"
	"sort"

	"github.com/henderiw/rangetable/pkg/idxtable"
	"github.com/henderiw/rangetable/pkg/rangetype"
	"k8s.io/apimachinery/pkg/labels"
)

var ErrNilGeometry = errors.New("node geometry provider is nil")

// node is what the controller knows about a registered element. The
// element itself is owned by the caller; the controller only keeps the
// providers it was handed.
type node struct {
	geometry GeometryProvider
	delegate Delegate
	labels   labels.Set
	mask     rangetype.Mask
}

// registry maps node ids to nodes. Lookups by id are the only way to reach
// a delegate, so a released id can never be notified.
type registry struct {
	table idxtable.Table[*node]
}

func newRegistry(maxNodes int64) *registry {
	return &registry{
		table: idxtable.NewTable[*node](maxNodes, func(n *node) error {
			if n == nil || n.geometry == nil {
				return ErrNilGeometry
			}
			return nil
		}),
	}
}

func (r *registry) claim(n *node) (idxtable.ID, error) {
	return r.table.Claim(n)
}

func (r *registry) get(id idxtable.ID) (*node, error) {
	return r.table.Get(id)
}

func (r *registry) release(id idxtable.ID) error {
	return r.table.Release(id)
}

// relabel replaces the labels of id. The node is copied so dispatch never
// sees a half-written node.
func (r *registry) relabel(id idxtable.ID, l labels.Set) error {
	n, err := r.table.Get(id)
	if err != nil {
		return err
	}
	nn := *n
	nn.labels = l
	return r.table.Update(id, &nn)
}

func (r *registry) capacity() int64 {
	return r.table.Capacity()
}

func (r *registry) has(id idxtable.ID) bool {
	return r.table.Has(id)
}

func (r *registry) count() int {
	return r.table.Count()
}

func (r *registry) iterate() *idxtable.Iterator[*node] {
	return r.table.Iterate()
}

// getByLabel returns the ids whose labels match selector, in ascending order.
func (r *registry) getByLabel(selector labels.Selector) []idxtable.ID {
	ids := []idxtable.ID{}
	for id, n := range r.table.GetAll() {
		if selector.Matches(n.labels) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
