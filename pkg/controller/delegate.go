package controller

import (
	"fmt"
	"sync"

	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/idxtable"
	"github.com/henderiw/rangetable/pkg/rangetype"
)

//go:generate mockgen -package=controller -destination=./mocks.go -source=./delegate.go

// Delegate receives range transitions. Calls are synchronous, made from
// inside Update, ordered so that a node inside a tier is always inside
// every looser tier too.
//
// A delegate may call Register or Unregister; the change is applied to the
// index on the next Update. Calling Update from a delegate returns
// ErrReentrantUpdate.
type Delegate interface {
	EnteredRange(id idxtable.ID, rt rangetype.RangeType)
	ExitedRange(id idxtable.ID, rt rangetype.RangeType)
}

// GeometryProvider reports the current frame of a node in the coordinate
// space of the viewport. It is read on registration and after Invalidate.
type GeometryProvider interface {
	Frame() geom.Rect
}

type GeometryFunc func() geom.Rect

func (f GeometryFunc) Frame() geom.Rect { return f() }

// StaticGeometry is a frame that never changes.
type StaticGeometry geom.Rect

func (s StaticGeometry) Frame() geom.Rect { return geom.Rect(s) }

type Transition uint8

const (
	Entered Transition = iota
	Exited
)

func (t Transition) String() string {
	switch t {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("transition(%d)", uint8(t))
	}
}

// Event is a single transition of a node across a tier boundary.
type Event struct {
	ID         idxtable.ID
	RangeType  rangetype.RangeType
	Transition Transition
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s", e.ID, e.Transition, e.RangeType)
}

// DelegateFunc adapts a single function to a Delegate.
type DelegateFunc func(e Event)

func (f DelegateFunc) EnteredRange(id idxtable.ID, rt rangetype.RangeType) {
	f(Event{ID: id, RangeType: rt, Transition: Entered})
}

func (f DelegateFunc) ExitedRange(id idxtable.ID, rt rangetype.RangeType) {
	f(Event{ID: id, RangeType: rt, Transition: Exited})
}

// EventQueue is a Delegate that queues events for later consumption, e.g.
// by a render loop on another goroutine.
type EventQueue struct {
	m      sync.Mutex
	events []Event
}

func (q *EventQueue) EnteredRange(id idxtable.ID, rt rangetype.RangeType) {
	q.push(Event{ID: id, RangeType: rt, Transition: Entered})
}

func (q *EventQueue) ExitedRange(id idxtable.ID, rt rangetype.RangeType) {
	q.push(Event{ID: id, RangeType: rt, Transition: Exited})
}

func (q *EventQueue) push(e Event) {
	q.m.Lock()
	defer q.m.Unlock()
	q.events = append(q.events, e)
}

// Drain returns the queued events in delivery order and empties the queue.
func (q *EventQueue) Drain() []Event {
	q.m.Lock()
	defer q.m.Unlock()
	events := q.events
	q.events = nil
	return events
}

func (q *EventQueue) Len() int {
	q.m.Lock()
	defer q.m.Unlock()
	return len(q.events)
}
