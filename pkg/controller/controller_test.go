package controller

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/idxtable"
	"github.com/henderiw/rangetable/pkg/index"
	"github.com/henderiw/rangetable/pkg/rangedef"
	"github.com/henderiw/rangetable/pkg/rangetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"k8s.io/apimachinery/pkg/labels"
)

const (
	visible = rangetype.Visible
	display = rangetype.Display
	preload = rangetype.Preload
)

func definition(t testing.TB, d1, d2 float64) *rangedef.Definition {
	t.Helper()
	def, err := rangedef.New(rangedef.Config{Tiers: []rangedef.TierConfig{
		{Tier: "visible", Inflation: 0},
		{Tier: "display", Inflation: d1},
		{Tier: "preload", Inflation: d2},
	}})
	require.NoError(t, err)
	return def
}

func newTestController(t testing.TB, opts ...Opt) *Controller {
	t.Helper()
	opts = append([]Opt{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(definition(t, 50, 100), opts...)
}

func entered(id idxtable.ID, rt rangetype.RangeType) Event {
	return Event{ID: id, RangeType: rt, Transition: Entered}
}

func exited(id idxtable.ID, rt rangetype.RangeType) Event {
	return Event{ID: id, RangeType: rt, Transition: Exited}
}

// viewportAt is a 100x100 viewport whose left edge is at x.
func viewportAt(x float64) geom.Rect {
	return geom.RectFrom(x, 0, 100, 100)
}

func TestScenarioHorizontalScroll(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}
	a, err := c.Register(StaticGeometry(geom.RectFrom(120, 10, 10, 10)), q)
	require.NoError(t, err)

	steps := []struct {
		x        float64
		expected []Event
		tiers    rangetype.Mask
	}{
		// preload reaches 40+100=140 >= 120, display only 90
		{x: -60, expected: []Event{entered(a, preload)}, tiers: rangetype.MaskOf(preload)},
		// display reaches 80+50=130 >= 120
		{x: -20, expected: []Event{entered(a, display)}, tiers: rangetype.MaskOf(display, preload)},
		// visible covers 30..130
		{x: 30, expected: []Event{entered(a, visible)}, tiers: rangetype.MaskAll},
		{x: 30, expected: nil, tiers: rangetype.MaskAll},
		// reversing the scroll exits in reverse tier order
		{x: -60, expected: []Event{exited(a, visible), exited(a, display)}, tiers: rangetype.MaskOf(preload)},
		{x: -200, expected: []Event{exited(a, preload)}, tiers: 0},
	}
	for i, step := range steps {
		require.NoError(t, c.Update(viewportAt(step.x)))
		if diff := cmp.Diff(step.expected, q.Drain()); diff != "" {
			t.Errorf("step %d (x=%g): -want, +got:\n%s", i, step.x, diff)
		}
		assert.Equal(t, step.tiers, c.Tiers(a), "step %d", i)
	}
}

func TestJumpOrdering(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}
	a, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), q)
	require.NoError(t, err)
	b, err := c.Register(StaticGeometry(geom.RectFrom(50, 50, 10, 10)), q)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(0)))
	expected := []Event{
		entered(a, preload), entered(b, preload),
		entered(a, display), entered(b, display),
		entered(a, visible), entered(b, visible),
	}
	if diff := cmp.Diff(expected, q.Drain()); diff != "" {
		t.Errorf("enter: -want, +got:\n%s", diff)
	}

	require.NoError(t, c.Update(viewportAt(10000)))
	expected = []Event{
		exited(a, visible), exited(b, visible),
		exited(a, display), exited(b, display),
		exited(a, preload), exited(b, preload),
	}
	if diff := cmp.Diff(expected, q.Drain()); diff != "" {
		t.Errorf("exit: -want, +got:\n%s", diff)
	}
}

func TestExitsBeforeEntries(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}
	// far apart so that no tier holds both
	left, err := c.Register(StaticGeometry(geom.RectFrom(0, 0, 10, 10)), q)
	require.NoError(t, err)
	right, err := c.Register(StaticGeometry(geom.RectFrom(1000, 0, 10, 10)), q)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(-40)))
	q.Drain()

	require.NoError(t, c.Update(viewportAt(950)))
	expected := []Event{
		exited(left, visible),
		exited(left, display),
		exited(left, preload),
		entered(right, preload),
		entered(right, display),
		entered(right, visible),
	}
	if diff := cmp.Diff(expected, q.Drain()); diff != "" {
		t.Errorf("-want, +got:\n%s", diff)
	}
}

func TestIdempotent(t *testing.T) {
	cases := map[string]struct {
		def *rangedef.Definition
	}{
		"Symmetric": {
			def: definition(t, 50, 100),
		},
		"Directional": {
			def: rangedef.MustNew(rangedef.Config{Tiers: []rangedef.TierConfig{
				{Tier: "visible"},
				{Tier: "display", Inflation: 50, Trailing: ptr(5)},
				{Tier: "preload", Inflation: 200, Trailing: ptr(10)},
			}}),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := New(tc.def, WithLogger(zaptest.NewLogger(t)))
			q := &EventQueue{}
			for i := 0; i < 50; i++ {
				_, err := c.Register(StaticGeometry(geom.RectFrom(0, float64(i)*40, 100, 40)), q)
				require.NoError(t, err)
			}
			for _, y := range []float64{0, 300, 700, 400} {
				vp := geom.RectFrom(0, y, 100, 200)
				require.NoError(t, c.Update(vp))
				q.Drain()
				gen := c.Snapshot().Generation

				require.NoError(t, c.Update(vp))
				assert.Empty(t, q.Drain(), "second update at y=%g", y)
				assert.Equal(t, gen+1, c.Snapshot().Generation)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }

func TestUnregisterDuringDispatch(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := New(definition(t, 50, 100), WithLogger(zap.New(core)))

	q := &EventQueue{}
	var a, b, d idxtable.ID
	first := true
	unregistering := DelegateFunc(func(e Event) {
		q.EnteredRange(e.ID, e.RangeType)
		if first {
			first = false
			assert.True(t, c.Unregister(a))
			assert.True(t, c.Unregister(d))
			assert.False(t, c.Unregister(d))
		}
	})
	var err error
	a, err = c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), unregistering)
	require.NoError(t, err)
	b, err = c.Register(StaticGeometry(geom.RectFrom(20, 10, 10, 10)), q)
	require.NoError(t, err)
	d, err = c.Register(StaticGeometry(geom.RectFrom(30, 10, 10, 10)), q)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(0)))
	expected := []Event{
		entered(a, preload),
		entered(b, preload),
		entered(b, display),
		entered(b, visible),
	}
	if diff := cmp.Diff(expected, q.Drain()); diff != "" {
		t.Errorf("-want, +got:\n%s", diff)
	}
	assert.Equal(t, 2, logs.FilterMessageSnippet("deferring").Len())
	assert.False(t, c.Registered(a))
	assert.False(t, c.Registered(d))
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Tiers(a))
	assert.Zero(t, c.Tiers(d))
	for _, rt := range rangetype.All() {
		assert.Equal(t, []idxtable.ID{b}, c.Members(rt))
	}

	// the next update drops them from the index without notifying them
	require.NoError(t, c.Update(viewportAt(5000)))
	if diff := cmp.Diff([]Event{exited(b, visible), exited(b, display), exited(b, preload)}, q.Drain()); diff != "" {
		t.Errorf("-want, +got:\n%s", diff)
	}
	assert.Equal(t, 1, c.idx.Len())
}

func TestUnregister(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}
	a, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), q)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(0)))
	assert.Len(t, q.Drain(), 3)

	published := c.Snapshot()
	assert.True(t, c.Unregister(a))
	assert.False(t, c.Unregister(a))
	assert.False(t, c.Unregister(idxtable.Nil))

	// gone from the queries at once, the earlier snapshot is left as it was
	assert.Zero(t, c.Tiers(a))
	for _, rt := range rangetype.All() {
		assert.Empty(t, c.Members(rt))
		assert.Equal(t, []idxtable.ID{a}, published.Members(rt))
	}
	assert.Equal(t, published.Generation, c.Snapshot().Generation)

	require.NoError(t, c.Update(viewportAt(0)))
	assert.Empty(t, q.Drain())
	for _, rt := range rangetype.All() {
		assert.Empty(t, c.Members(rt))
	}

	// the slot is reused under a new id
	b, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), q)
	require.NoError(t, err)
	assert.Equal(t, a.Slot(), b.Slot())
	assert.NotEqual(t, a, b)
	require.NoError(t, c.Update(viewportAt(0)))
	assert.Equal(t, []Event{entered(b, preload), entered(b, display), entered(b, visible)}, q.Drain())
}

func TestRegisterDuringDispatch(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := New(definition(t, 50, 100), WithLogger(zap.New(core)))

	q := &EventQueue{}
	var late idxtable.ID
	var updateErr error
	registering := DelegateFunc(func(e Event) {
		if late.IsNil() {
			var err error
			late, err = c.Register(StaticGeometry(geom.RectFrom(40, 40, 10, 10)), q)
			assert.NoError(t, err)
			updateErr = c.Update(viewportAt(500))
			assert.ErrorIs(t, c.Suspend(), ErrReentrantUpdate)
		}
	})
	_, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), registering)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(0)))
	assert.ErrorIs(t, updateErr, ErrReentrantUpdate)
	assert.Empty(t, q.Drain(), "a node registered during dispatch joins on the next update")
	assert.True(t, c.Registered(late))
	assert.Equal(t, 1, logs.FilterMessageSnippet("deferring").Len())

	require.NoError(t, c.Update(viewportAt(0)))
	assert.Equal(t, []Event{entered(late, preload), entered(late, display), entered(late, visible)}, q.Drain())
}

func TestRegisterThenUnregisterDuringDispatch(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}
	done := false
	d := DelegateFunc(func(Event) {
		if done {
			return
		}
		done = true
		id, err := c.Register(StaticGeometry(geom.RectFrom(0, 0, 1, 1)), q)
		assert.NoError(t, err)
		assert.True(t, c.Unregister(id))
	})
	_, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), d)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(0)))
	require.NoError(t, c.Update(viewportAt(0)))
	assert.Empty(t, q.Drain())
	assert.Equal(t, 1, c.idx.Len())
	assert.Equal(t, 1, c.Len())
}

type movable struct {
	frame geom.Rect
}

func (m *movable) Frame() geom.Rect { return m.frame }

func TestInvalidate(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}
	m := &movable{frame: geom.RectFrom(5000, 0, 10, 10)}
	a, err := c.Register(m, q)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(0)))
	assert.Empty(t, q.Drain())

	// the frame is not re-read without an invalidation
	m.frame = geom.RectFrom(10, 10, 10, 10)
	require.NoError(t, c.Update(viewportAt(0)))
	assert.Empty(t, q.Drain())

	c.Invalidate(a)
	require.NoError(t, c.Update(viewportAt(0)))
	assert.Equal(t, []Event{entered(a, preload), entered(a, display), entered(a, visible)}, q.Drain())

	// moved into display only: visible is left
	m.frame = geom.RectFrom(130, 10, 10, 10)
	c.InvalidateAll()
	require.NoError(t, c.Update(viewportAt(0)))
	assert.Equal(t, []Event{exited(a, visible)}, q.Drain())

	// an invalid frame matches nothing
	m.frame = geom.Rect{Min: geom.Point{X: math.NaN()}}
	c.Invalidate(a, idxtable.Nil)
	require.NoError(t, c.Update(viewportAt(0)))
	assert.Equal(t, []Event{exited(a, display), exited(a, preload)}, q.Drain())
}

func TestSubscribe(t *testing.T) {
	c := newTestController(t)
	own := &EventQueue{}
	sub := &EventQueue{}

	a, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), own, WithRangeTypes(rangetype.MaskOf(preload)))
	require.NoError(t, err)
	b, err := c.Register(StaticGeometry(geom.RectFrom(20, 10, 10, 10)), nil)
	require.NoError(t, err)

	cancel := c.Subscribe(rangetype.MaskOf(visible), sub)

	require.NoError(t, c.Update(viewportAt(0)))
	assert.Equal(t, []Event{entered(a, preload)}, own.Drain())
	assert.Equal(t, []Event{entered(a, visible), entered(b, visible)}, sub.Drain())

	cancel()
	cancel()
	require.NoError(t, c.Update(viewportAt(1000)))
	assert.Equal(t, []Event{exited(a, preload)}, own.Drain())
	assert.Empty(t, sub.Drain())
}

func TestCancelDuringDispatch(t *testing.T) {
	c := newTestController(t)
	sub := &EventQueue{}
	var cancel func()
	cancel = c.Subscribe(rangetype.MaskAll, DelegateFunc(func(e Event) {
		sub.EnteredRange(e.ID, e.RangeType)
		cancel()
	}))

	a, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), nil)
	require.NoError(t, err)
	require.NoError(t, c.Update(viewportAt(0)))
	assert.Equal(t, []Event{entered(a, preload)}, sub.Drain())
	assert.Equal(t, rangetype.MaskAll, c.Tiers(a))
}

func TestHugeInflation(t *testing.T) {
	inf := math.Inf(1)
	everything := geom.Rect{Min: geom.Point{X: -inf, Y: -inf}, Max: geom.Point{X: inf, Y: inf}}

	cases := map[string]struct {
		index func() index.Index
	}{
		"Grid": {
			index: func() index.Index { return index.NewGrid(index.DefaultCellSize) },
		},
		"RTree": {
			index: index.NewRTree,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := New(definition(t, 50, 1e12), WithLogger(zaptest.NewLogger(t)), WithIndex(tc.index()))
			q := &EventQueue{}
			near, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), q)
			require.NoError(t, err)
			far, err := c.Register(StaticGeometry(geom.RectFrom(5e11, 5e11, 10, 10)), q)
			require.NoError(t, err)

			require.NoError(t, c.Update(viewportAt(0)))
			assert.Equal(t, rangetype.MaskAll, c.Tiers(near))
			assert.Equal(t, rangetype.MaskOf(preload), c.Tiers(far))

			require.NoError(t, c.Update(everything))
			assert.Equal(t, rangetype.MaskAll, c.Tiers(far))
			assert.Len(t, q.Drain(), 6)
		})
	}
}

func TestDelegatePanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	c := New(definition(t, 50, 100), WithLogger(zap.New(core)))
	sub := &EventQueue{}
	c.Subscribe(rangetype.MaskAll, sub)

	a, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), DelegateFunc(func(e Event) {
		if e.RangeType == display {
			panic("boom")
		}
	}))
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.NoError(t, c.Update(viewportAt(0)))
	})
	assert.Equal(t, []Event{entered(a, preload), entered(a, display), entered(a, visible)}, sub.Drain())
	assert.Equal(t, 1, logs.FilterMessage("range delegate panicked").Len())
	assert.Equal(t, rangetype.MaskAll, c.Tiers(a))
}

// noisyIndex reports an id the registry never issued.
type noisyIndex struct {
	index.Index
	ghost idxtable.ID
}

func (r *noisyIndex) Search(q geom.Rect, fn func(id idxtable.ID) bool) {
	if !fn(r.ghost) {
		return
	}
	r.Index.Search(q, fn)
}

func TestInconsistentIndex(t *testing.T) {
	ghost := idxtable.ID(uint64(7)<<32 | 99)
	c := newTestController(t, WithIndex(&noisyIndex{Index: index.NewRTree(), ghost: ghost}))
	q := &EventQueue{}
	c.Subscribe(rangetype.MaskAll, q)

	a, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), nil)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.NoError(t, c.Update(viewportAt(0)))
	})
	assert.Equal(t, []Event{entered(a, preload), entered(a, display), entered(a, visible)}, q.Drain())
	assert.Equal(t, rangetype.Mask(0), c.Tiers(ghost))
	for _, rt := range rangetype.All() {
		assert.Equal(t, []idxtable.ID{a}, c.Members(rt))
	}
}

func TestSuspend(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}
	a, err := c.Register(StaticGeometry(geom.RectFrom(10, 10, 10, 10)), q)
	require.NoError(t, err)
	b, err := c.Register(StaticGeometry(geom.RectFrom(130, 10, 10, 10)), q)
	require.NoError(t, err)

	require.NoError(t, c.Update(viewportAt(0)))
	q.Drain()

	require.NoError(t, c.Suspend())
	expected := []Event{
		exited(a, visible),
		exited(a, display), exited(b, display),
		exited(a, preload), exited(b, preload),
	}
	if diff := cmp.Diff(expected, q.Drain()); diff != "" {
		t.Errorf("-want, +got:\n%s", diff)
	}
	for _, rt := range rangetype.All() {
		assert.Zero(t, c.Snapshot().Len(rt))
	}

	require.NoError(t, c.Suspend())
	assert.Empty(t, q.Drain())

	require.NoError(t, c.Update(viewportAt(0)))
	assert.Len(t, q.Drain(), 5)
}

func TestRegisterErrors(t *testing.T) {
	c := newTestController(t, WithMaxNodes(1))
	assert.Equal(t, int64(1), c.Capacity())
	assert.Zero(t, newTestController(t).Capacity())

	_, err := c.Register(nil, &EventQueue{})
	assert.ErrorIs(t, err, ErrNilGeometry)

	_, err = c.Register(StaticGeometry(geom.RectFrom(0, 0, 1, 1)), nil)
	require.NoError(t, err)

	_, err = c.Register(StaticGeometry(geom.RectFrom(0, 0, 1, 1)), nil)
	assert.ErrorIs(t, err, idxtable.ErrTableFull)
}

func TestInvalidViewport(t *testing.T) {
	c := newTestController(t)
	err := c.Update(geom.Rect{Min: geom.Point{X: math.NaN()}})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrReentrantUpdate))
	assert.Zero(t, c.Snapshot().Generation)
}

func TestLabels(t *testing.T) {
	c := newTestController(t)
	q := &EventQueue{}

	var headers []idxtable.ID
	for i := 0; i < 6; i++ {
		kind := "cell"
		if i%3 == 0 {
			kind = "header"
		}
		id, err := c.Register(StaticGeometry(geom.RectFrom(0, float64(i)*10, 100, 10)), q,
			WithLabels(labels.Set{"kind": kind}))
		require.NoError(t, err)
		if kind == "header" {
			headers = append(headers, id)
		}
	}

	selector := labels.SelectorFromSet(labels.Set{"kind": "header"})
	assert.Equal(t, headers, c.NodesByLabel(selector))

	l, err := c.Labels(headers[0])
	require.NoError(t, err)
	assert.Equal(t, "header", l.Get("kind"))

	// relabeling moves a node between selections
	require.NoError(t, c.SetLabels(headers[1], labels.Set{"kind": "cell"}))
	assert.Equal(t, headers[:1], c.NodesByLabel(selector))
	assert.Len(t, c.NodesByLabel(labels.SelectorFromSet(labels.Set{"kind": "cell"})), 5)
	require.NoError(t, c.SetLabels(headers[1], labels.Set{"kind": "header"}))

	assert.Equal(t, 2, c.UnregisterByLabel(selector))
	assert.Empty(t, c.NodesByLabel(selector))
	assert.Equal(t, 4, c.Len())

	_, err = c.Labels(headers[0])
	assert.ErrorIs(t, err, idxtable.ErrNotFound)
	assert.ErrorIs(t, c.SetLabels(headers[0], labels.Set{}), idxtable.ErrNotFound)
}
