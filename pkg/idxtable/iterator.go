package idxtable

// Iterator walks a point-in-time copy of the table in ascending ID order.
type Iterator[T1 any] struct {
	current int
	entries Entries[T1]
}

func (r *Iterator[T1]) Entry() Entry[T1] {
	return r.entries[r.current]
}

func (r *Iterator[T1]) Value() T1 {
	return r.entries[r.current].Data()
}

func (r *Iterator[T1]) ID() ID {
	return r.entries[r.current].ID()
}

func (r *Iterator[T1]) Next() bool {
	r.current++
	return r.current < len(r.entries)
}

func (r *Iterator[T1]) Len() int {
	return len(r.entries)
}
