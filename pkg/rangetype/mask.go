package rangetype

import "strings"

// Mask is a set of range types.
type Mask uint8

// MaskAll selects every range type.
const MaskAll = Mask(1<<Count - 1)

func MaskOf(rts ...RangeType) Mask {
	var m Mask
	for _, rt := range rts {
		m = m.With(rt)
	}
	return m
}

func (m Mask) Has(rt RangeType) bool {
	return rt.IsValid() && m&(1<<rt) != 0
}

func (m Mask) With(rt RangeType) Mask {
	if !rt.IsValid() {
		return m
	}
	return m | 1<<rt
}

func (m Mask) Without(rt RangeType) Mask {
	if !rt.IsValid() {
		return m
	}
	return m &^ (1 << rt)
}

func (m Mask) IsEmpty() bool {
	return m&MaskAll == 0
}

// Types returns the members of m tightest first.
func (m Mask) Types() []RangeType {
	var rts []RangeType
	for _, rt := range All() {
		if m.Has(rt) {
			rts = append(rts, rt)
		}
	}
	return rts
}

// IsNested reports whether m is closed under loosening, i.e. every member's
// looser tiers are members too.
func (m Mask) IsNested() bool {
	for _, rt := range m.Types() {
		if looser, ok := rt.Looser(); ok && !m.Has(looser) {
			return false
		}
	}
	return true
}

func (m Mask) String() string {
	var s []string
	for _, rt := range m.Types() {
		s = append(s, rt.String())
	}
	return "[" + strings.Join(s, ",") + "]"
}
