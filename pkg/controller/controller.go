// Package controller classifies registered nodes into range tiers around a
// moving viewport and notifies them when they cross a tier boundary.
//
// Every Update queries the index once per tier, diffs the result against
// the previous snapshot and dispatches exits (tightest tier first) before
// entries (loosest tier first). At any point during dispatch a node that a
// delegate has been told is inside a tier has also been told it is inside
// every looser tier.
package controller

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/idxtable"
	"github.com/henderiw/rangetable/pkg/index"
	"github.com/henderiw/rangetable/pkg/rangedef"
	"github.com/henderiw/rangetable/pkg/rangetype"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/labels"
)

var ErrReentrantUpdate = errors.New("update called while range notifications are being dispatched")

type opKind uint8

const (
	opInsert opKind = iota
	opRemove
)

func (k opKind) String() string {
	if k == opInsert {
		return "register"
	}
	return "unregister"
}

// pendingOp is a registry mutation made during dispatch.
type pendingOp struct {
	kind opKind
	id   idxtable.ID
}

type subscription struct {
	key      uint64
	mask     rangetype.Mask
	delegate Delegate
}

// Controller owns the membership of one viewport. Update, Register,
// Unregister and Suspend may be called from any goroutine; updates are
// serialized.
type Controller struct {
	mu sync.Mutex

	def      *rangedef.Definition
	idx      index.Index
	nodes    *registry
	log      *zap.Logger
	maxNodes int64
	metrics  bool

	snapshot    atomic.Pointer[Snapshot]
	hasViewport bool
	viewport    geom.Rect
	dir         rangedef.Direction

	dispatching atomic.Bool

	// pmu guards the work deferred to the next update
	pmu      sync.Mutex
	pending  []pendingOp
	dirty    map[idxtable.ID]struct{}
	dirtyAll bool

	smu     sync.RWMutex
	subs    []subscription
	nextKey uint64
}

func New(def *rangedef.Definition, opts ...Opt) *Controller {
	c := &Controller{
		def:     def,
		log:     zap.NewNop(),
		metrics: true,
		dirty:   map[idxtable.ID]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.idx == nil {
		c.idx = index.NewGrid(index.DefaultCellSize)
	}
	c.nodes = newRegistry(c.maxNodes)
	c.snapshot.Store(newSnapshot(0))
	return c
}

// Register adds a node. Its frame is read immediately and it takes part in
// the next Update. delegate may be nil when only subscribers care about the
// node.
func (c *Controller) Register(geometry GeometryProvider, delegate Delegate, opts ...RegisterOpt) (idxtable.ID, error) {
	n := &node{
		geometry: geometry,
		delegate: delegate,
		mask:     rangetype.MaskAll,
	}
	for _, opt := range opts {
		opt(n)
	}
	id, err := c.nodes.claim(n)
	if err != nil {
		return idxtable.Nil, fmt.Errorf("cannot register node: %w", err)
	}

	if c.dispatching.Load() {
		c.deferOp(pendingOp{kind: opInsert, id: id})
		return id, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// a concurrent Unregister may have released id already
	if c.nodes.has(id) {
		c.idx.Insert(id, c.frame(id, n))
	}
	return id, nil
}

// Unregister removes a node. It is idempotent and reports whether id was
// registered. No notification is delivered for id after Unregister returns,
// including the rest of a dispatch in progress.
func (c *Controller) Unregister(id idxtable.ID) bool {
	if err := c.nodes.release(id); err != nil {
		return false
	}

	if c.dispatching.Load() {
		c.deferOp(pendingOp{kind: opRemove, id: id})
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx.Remove(id)
	c.snapshot.Store(c.snapshot.Load().retain(c.nodes.has))
	return true
}

// UnregisterByLabel removes every node whose labels match selector and
// returns how many were removed.
func (c *Controller) UnregisterByLabel(selector labels.Selector) int {
	removed := 0
	for _, id := range c.nodes.getByLabel(selector) {
		if c.Unregister(id) {
			removed++
		}
	}
	return removed
}

func (c *Controller) deferOp(op pendingOp) {
	c.pmu.Lock()
	c.pending = append(c.pending, op)
	c.pmu.Unlock()

	c.log.Warn("registry mutated during range dispatch, deferring to next update",
		zap.Stringer("id", op.id),
		zap.Stringer("op", op.kind),
	)
	if c.metrics {
		deferredTotal.WithLabelValues(op.kind.String()).Inc()
	}
}

// Invalidate marks nodes whose frame changed; the next Update reads their
// geometry providers again and moves them in the index.
func (c *Controller) Invalidate(ids ...idxtable.ID) {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	for _, id := range ids {
		c.dirty[id] = struct{}{}
	}
}

// InvalidateAll re-reads every frame on the next Update.
func (c *Controller) InvalidateAll() {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	c.dirtyAll = true
}

// Subscribe registers a delegate notified of every node's transitions for
// the tiers in mask, after the node's own delegate. The returned function
// cancels the subscription; a cancel from inside a notification takes effect
// with the next event.
func (c *Controller) Subscribe(mask rangetype.Mask, d Delegate) (cancel func()) {
	c.smu.Lock()
	defer c.smu.Unlock()

	c.nextKey++
	key := c.nextKey
	c.subs = append(c.subs, subscription{key: key, mask: mask, delegate: d})

	return func() {
		c.smu.Lock()
		defer c.smu.Unlock()
		for i, s := range c.subs {
			if s.key == key {
				subs := make([]subscription, 0, len(c.subs)-1)
				subs = append(subs, c.subs[:i]...)
				c.subs = append(subs, c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) subscriptions() []subscription {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.subs
}

// Update classifies every node against viewport and dispatches the
// transitions since the previous update. Calling it again with the same
// viewport and unchanged geometry dispatches nothing.
func (c *Controller) Update(viewport geom.Rect) error {
	if c.dispatching.Load() {
		return ErrReentrantUpdate
	}
	viewport = viewport.Canon()
	if !viewport.IsValid() {
		return fmt.Errorf("invalid viewport %s", viewport)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	c.applyPending()

	if c.hasViewport {
		c.dir = rangedef.DirectionBetween(c.viewport, viewport).Merge(c.dir)
	}
	c.viewport = viewport
	c.hasViewport = true

	prev := c.snapshot.Load()
	next := c.classify(prev.Generation+1, viewport, c.dir)
	events := diff(prev, next)
	dispatched := c.dispatch(events)
	// drop the nodes unregistered while dispatching
	next = next.retain(c.nodes.has)
	c.snapshot.Store(next)

	if c.metrics {
		updatesTotal.WithLabelValues("ok").Inc()
		updateDuration.WithLabelValues().Observe(time.Since(start).Seconds())
		for _, rt := range rangetype.All() {
			membersGauge.WithLabelValues(rt.String()).Set(float64(next.Len(rt)))
		}
	}
	c.log.Debug("range update",
		zap.Uint64("generation", next.Generation),
		zap.Stringer("viewport", viewport),
		zap.Stringer("direction", c.dir),
		zap.Int("events", len(events)),
		zap.Int("dispatched", dispatched),
	)
	return nil
}

// Suspend exits every node from every tier, tightest first, and forgets the
// viewport, e.g. when the scrolling surface leaves the screen. The next
// Update enters nodes from scratch.
func (c *Controller) Suspend() error {
	if c.dispatching.Load() {
		return ErrReentrantUpdate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.snapshot.Load()
	next := newSnapshot(prev.Generation + 1)
	c.dispatch(diff(prev, next))
	c.snapshot.Store(next)
	c.hasViewport = false
	c.dir = rangedef.Direction{}

	if c.metrics {
		updatesTotal.WithLabelValues("suspend").Inc()
		for _, rt := range rangetype.All() {
			membersGauge.WithLabelValues(rt.String()).Set(0)
		}
	}
	return nil
}

// applyPending replays the work deferred since the last update. Must be
// called with mu held.
func (c *Controller) applyPending() {
	c.pmu.Lock()
	ops := c.pending
	dirty := c.dirty
	all := c.dirtyAll
	c.pending = nil
	c.dirty = map[idxtable.ID]struct{}{}
	c.dirtyAll = false
	c.pmu.Unlock()

	for _, op := range ops {
		switch op.kind {
		case opInsert:
			n, err := c.nodes.get(op.id)
			if err != nil {
				// unregistered before it was ever indexed
				continue
			}
			c.idx.Insert(op.id, c.frame(op.id, n))
		case opRemove:
			c.idx.Remove(op.id)
		}
	}

	if all {
		iter := c.nodes.iterate()
		for iter.Next() {
			c.idx.Insert(iter.ID(), c.frame(iter.ID(), iter.Value()))
		}
		return
	}
	for id := range dirty {
		n, err := c.nodes.get(id)
		if err != nil {
			continue
		}
		f := c.frame(id, n)
		if !c.idx.Move(id, f) {
			c.idx.Insert(id, f)
		}
	}
}

func (c *Controller) frame(id idxtable.ID, n *node) geom.Rect {
	f := n.geometry.Frame().Canon()
	if !f.IsValid() {
		c.log.Debug("node has an invalid frame, it matches no range",
			zap.Stringer("id", id),
			zap.Stringer("frame", f),
		)
	}
	return f
}

// classify computes the membership of every tier, loosest first. A tier
// only keeps ids found in the next looser tier, and the loosest tier only
// keeps ids present in the registry, so an index that drifted from the
// registry can never break the inclusion between tiers.
func (c *Controller) classify(gen uint64, viewport geom.Rect, dir rangedef.Direction) *Snapshot {
	next := newSnapshot(gen)
	next.Viewport = viewport
	next.Direction = dir

	all := rangetype.All()
	var looser idSet
	for i := len(all) - 1; i >= 0; i-- {
		rt := all[i]
		set := next.members[rt]
		c.idx.Search(c.def.QueryRect(rt, viewport, dir), func(id idxtable.ID) bool {
			if looser != nil {
				if looser.has(id) {
					set[id] = struct{}{}
				}
				return true
			}
			if !c.nodes.has(id) {
				c.log.Debug("index returned an unregistered node, ignoring",
					zap.Stringer("id", id),
					zap.Stringer("range_type", rt),
				)
				if c.metrics {
					suppressedTotal.WithLabelValues("not_registered").Inc()
				}
				return true
			}
			set[id] = struct{}{}
			return true
		})
		looser = set
	}
	return next
}

// dispatch delivers events in order and returns how many reached at least
// one delegate. Must be called with mu held.
func (c *Controller) dispatch(events []Event) int {
	if len(events) == 0 {
		return 0
	}
	c.dispatching.Store(true)
	defer c.dispatching.Store(false)

	dispatched := 0
	for _, e := range events {
		// looked up per event so an Unregister from an earlier callback
		// silences the rest of the batch
		n, err := c.nodes.get(e.ID)
		if err != nil {
			c.log.Debug("suppressing transition for unregistered node", zap.Stringer("event", e))
			if c.metrics {
				suppressedTotal.WithLabelValues("unregistered").Inc()
			}
			continue
		}
		delivered := false
		if n.delegate != nil && n.mask.Has(e.RangeType) {
			c.notify(n.delegate, e)
			delivered = true
		}
		// re-read so a subscription cancelled by a delegate stops at once
		for _, s := range c.subscriptions() {
			if !s.mask.Has(e.RangeType) {
				continue
			}
			if !c.nodes.has(e.ID) {
				break
			}
			c.notify(s.delegate, e)
			delivered = true
		}
		if delivered {
			dispatched++
			if c.metrics {
				transitionsTotal.WithLabelValues(e.RangeType.String(), e.Transition.String()).Inc()
			}
		}
	}
	return dispatched
}

func (c *Controller) notify(d Delegate, e Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("range delegate panicked",
				zap.Stringer("event", e),
				zap.Any("panic", r),
			)
			if c.metrics {
				delegatePanics.WithLabelValues(e.RangeType.String()).Inc()
			}
		}
	}()
	switch e.Transition {
	case Entered:
		d.EnteredRange(e.ID, e.RangeType)
	case Exited:
		d.ExitedRange(e.ID, e.RangeType)
	}
}

// Snapshot returns the membership published by the last update, minus the
// nodes unregistered since. It is safe to call from any goroutine, including
// delegates, which observe the membership from before the update being
// dispatched.
func (c *Controller) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Tiers returns the tiers id was inside after the last update.
func (c *Controller) Tiers(id idxtable.ID) rangetype.Mask {
	return c.Snapshot().Tiers(id)
}

// Members returns the ids inside rt after the last update.
func (c *Controller) Members(rt rangetype.RangeType) []idxtable.ID {
	return c.Snapshot().Members(rt)
}

// Registered reports whether id is currently registered.
func (c *Controller) Registered(id idxtable.ID) bool {
	return c.nodes.has(id)
}

// Len returns the number of registered nodes.
func (c *Controller) Len() int {
	return c.nodes.count()
}

// NodesByLabel returns the registered ids whose labels match selector.
func (c *Controller) NodesByLabel(selector labels.Selector) []idxtable.ID {
	return c.nodes.getByLabel(selector)
}

// SetLabels replaces the labels of id.
func (c *Controller) SetLabels(id idxtable.ID, l labels.Set) error {
	return c.nodes.relabel(id, l)
}

// Capacity returns the node limit set with WithMaxNodes; 0 means no limit.
func (c *Controller) Capacity() int64 {
	return c.nodes.capacity()
}

// Labels returns the labels id was registered with, or last set with
// SetLabels.
func (c *Controller) Labels(id idxtable.ID) (labels.Set, error) {
	n, err := c.nodes.get(id)
	if err != nil {
		return nil, err
	}
	return n.labels, nil
}
