package rangetype

import (
	"fmt"
	"strings"
)

// RangeType is a proximity tier around the viewport. Lower values are
// tighter: membership in a tier implies membership in every looser tier.
type RangeType uint8

const (
	Visible RangeType = iota
	Display
	Preload

	// Count is the number of range types.
	Count = int(Preload) + 1
)

var names = [Count]string{"visible", "display", "preload"}

// All returns the range types ordered tightest first.
func All() []RangeType {
	return []RangeType{Visible, Display, Preload}
}

func (r RangeType) IsValid() bool {
	return int(r) < Count
}

// Looser returns the next looser range type and false when r is the loosest.
func (r RangeType) Looser() (RangeType, bool) {
	if !r.IsValid() || r == Preload {
		return r, false
	}
	return r + 1, true
}

// Tighter returns the next tighter range type and false when r is the tightest.
func (r RangeType) Tighter() (RangeType, bool) {
	if !r.IsValid() || r == Visible {
		return r, false
	}
	return r - 1, true
}

// TighterThan reports whether r is strictly contained in o.
func (r RangeType) TighterThan(o RangeType) bool {
	return r < o
}

func (r RangeType) String() string {
	if !r.IsValid() {
		return fmt.Sprintf("rangetype(%d)", uint8(r))
	}
	return names[r]
}

// Parse maps a case-insensitive name to its range type.
func Parse(s string) (RangeType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return RangeType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown range type %q, expected one of %s", s, strings.Join(names[:], ", "))
}

func (r RangeType) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid range type %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *RangeType) UnmarshalText(b []byte) error {
	rt, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = rt
	return nil
}
