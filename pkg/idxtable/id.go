package idxtable

import "fmt"

// ID is a generation-stamped handle into a Table: the low 32 bits hold the
// slot index, the high 32 bits the slot generation at claim time. A slot
// that is released and claimed again gets a new generation, so stale IDs
// never alias a later entry. The zero ID is never issued.
type ID uint64

const Nil ID = 0

func newID(slot, gen uint32) ID {
	return ID(uint64(gen)<<32 | uint64(slot))
}

func (id ID) Slot() uint32       { return uint32(id) }
func (id ID) Generation() uint32 { return uint32(id >> 32) }
func (id ID) IsNil() bool        { return id == Nil }

func (id ID) String() string {
	return fmt.Sprintf("%d/%d", id.Slot(), id.Generation())
}
