package idxtable

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotFound  = errors.New("entry not found")
	ErrTableFull = errors.New("table is full")
)

type Table[T1 any] interface {
	Get(id ID) (T1, error)
	Claim(d T1) (ID, error)
	Release(id ID) error
	Update(id ID, d T1) error

	Iterate() *Iterator[T1]

	Count() int
	Capacity() int64
	Has(id ID) bool

	GetAll() map[ID]T1
}

type ValidationFn[T1 any] func(d T1) error

// NewTable returns a table holding at most s entries; s <= 0 means no limit.
// Released slots are reused before the table grows.
func NewTable[T1 any](s int64, v ValidationFn[T1]) Table[T1] {
	return &table[T1]{
		m:          new(sync.RWMutex),
		slots:      make([]slot[T1], 0),
		free:       make([]uint32, 0),
		size:       s,
		validateFn: v,
	}
}

type slot[T1 any] struct {
	gen  uint32
	used bool
	data T1
}

type table[T1 any] struct {
	m          *sync.RWMutex
	slots      []slot[T1]
	free       []uint32 // released slot indexes, reused LIFO
	count      int
	size       int64
	validateFn ValidationFn[T1]
}

func (r *table[T1]) lookup(id ID) (*slot[T1], error) {
	if id.IsNil() {
		return nil, fmt.Errorf("%w: nil id", ErrNotFound)
	}
	idx := id.Slot()
	if int(idx) >= len(r.slots) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s := &r.slots[idx]
	if !s.used || s.gen != id.Generation() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

func (r *table[T1]) Get(id ID) (T1, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	var d T1

	s, err := r.lookup(id)
	if err != nil {
		return d, err
	}
	return s.data, nil
}

func (r *table[T1]) Claim(d T1) (ID, error) {
	if r.validateFn != nil {
		if err := r.validateFn(d); err != nil {
			return Nil, err
		}
	}

	r.m.Lock()
	defer r.m.Unlock()

	if r.size > 0 && int64(r.count) >= r.size {
		return Nil, fmt.Errorf("%w: max %d entries", ErrTableFull, r.size)
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot[T1]{})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		// wrapped; generation 0 is reserved for the nil id
		s.gen = 1
	}
	s.used = true
	s.data = d
	r.count++
	return newID(idx, s.gen), nil
}

func (r *table[T1]) Release(id ID) error {
	r.m.Lock()
	defer r.m.Unlock()

	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	var d T1
	s.used = false
	s.data = d
	r.free = append(r.free, id.Slot())
	r.count--
	return nil
}

func (r *table[T1]) Update(id ID, d T1) error {
	if r.validateFn != nil {
		if err := r.validateFn(d); err != nil {
			return err
		}
	}

	r.m.Lock()
	defer r.m.Unlock()

	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.data = d
	return nil
}

func (r *table[T1]) Iterate() *Iterator[T1] {
	r.m.RLock()
	defer r.m.RUnlock()

	return r.iterate()
}

func (r *table[T1]) iterate() *Iterator[T1] {
	entries := make(Entries[T1], 0, r.count)
	for idx := range r.slots {
		s := &r.slots[idx]
		if s.used {
			entries = append(entries, NewEntry(newID(uint32(idx), s.gen), s.data))
		}
	}
	sort.Slice(entries, func(i int, j int) bool {
		return entries[i].ID() < entries[j].ID()
	})

	return &Iterator[T1]{current: -1, entries: entries}
}

func (r *table[T1]) Count() int {
	r.m.RLock()
	defer r.m.RUnlock()

	return r.count
}

func (r *table[T1]) Capacity() int64 {
	return r.size
}

func (r *table[T1]) Has(id ID) bool {
	r.m.RLock()
	defer r.m.RUnlock()

	_, err := r.lookup(id)
	return err == nil
}

func (r *table[T1]) GetAll() map[ID]T1 {
	r.m.RLock()
	defer r.m.RUnlock()

	entries := make(map[ID]T1, r.count)

	iter := r.iterate()
	for iter.Next() {
		entries[iter.ID()] = iter.Value()
	}
	return entries
}
