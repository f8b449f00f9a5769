// Package rangedef declares the range tiers and how each tier's query
// rectangle is derived from the viewport.
package rangedef

import (
	"errors"
	"fmt"

	"github.com/henderiw/rangetable/pkg/geom"
	"github.com/henderiw/rangetable/pkg/rangetype"
)

// Tuning is the inflation of one tier. Leading is applied on the side the
// viewport moves toward, Trailing on the side it leaves behind.
type Tuning struct {
	Leading  float64
	Trailing float64
}

// Definition is an immutable, validated set of tunings. It is safe for
// concurrent use.
type Definition struct {
	tunings [rangetype.Count]Tuning
}

// New validates cfg. It fails when a tier is unknown, duplicated or missing,
// when an inflation is negative, when visible is inflated, or when a looser
// tier is inflated less than a tighter one on either side.
func New(cfg Config) (*Definition, error) {
	r := &Definition{}
	var seen rangetype.Mask
	var errm error
	for _, tc := range cfg.Tiers {
		rt, err := rangetype.Parse(tc.Tier)
		if err != nil {
			errm = errors.Join(errm, err)
			continue
		}
		if seen.Has(rt) {
			errm = errors.Join(errm, fmt.Errorf("tier %s configured more than once", rt))
			continue
		}
		seen = seen.With(rt)

		t := tc.tuning()
		if t.Leading < 0 || t.Trailing < 0 {
			errm = errors.Join(errm, fmt.Errorf("tier %s: inflation cannot be negative, got leading %g trailing %g", rt, t.Leading, t.Trailing))
			continue
		}
		if rt == rangetype.Visible && (t.Leading != 0 || t.Trailing != 0) {
			errm = errors.Join(errm, fmt.Errorf("tier %s: inflation must be 0, got leading %g trailing %g", rt, t.Leading, t.Trailing))
			continue
		}
		r.tunings[rt] = t
	}
	for _, rt := range rangetype.All() {
		if !seen.Has(rt) {
			errm = errors.Join(errm, fmt.Errorf("tier %s is not configured", rt))
		}
	}
	if errm != nil {
		return nil, errm
	}
	if err := r.validateOrder(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is New for static configurations; it panics on error.
func MustNew(cfg Config) *Definition {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Definition) validateOrder() error {
	var errm error
	for _, rt := range rangetype.All() {
		looser, ok := rt.Looser()
		if !ok {
			break
		}
		t, l := r.tunings[rt], r.tunings[looser]
		if l.Leading < t.Leading {
			errm = errors.Join(errm, fmt.Errorf("tier %s leading inflation %g is smaller than tier %s leading inflation %g", looser, l.Leading, rt, t.Leading))
		}
		if l.Trailing < t.Trailing {
			errm = errors.Join(errm, fmt.Errorf("tier %s trailing inflation %g is smaller than tier %s trailing inflation %g", looser, l.Trailing, rt, t.Trailing))
		}
	}
	return errm
}

// Tuning returns the tuning of rt. It panics on an invalid range type.
func (r *Definition) Tuning(rt rangetype.RangeType) Tuning {
	if !rt.IsValid() {
		panic(fmt.Sprintf("rangedef: invalid range type %d", uint8(rt)))
	}
	return r.tunings[rt]
}

// QueryRect inflates the viewport for rt. On an axis without a known
// direction the leading inflation is applied to both sides.
func (r *Definition) QueryRect(rt rangetype.RangeType, viewport geom.Rect, dir Direction) geom.Rect {
	t := r.Tuning(rt)
	left, right := axisInflation(t, dir.X)
	top, bottom := axisInflation(t, dir.Y)
	return viewport.Canon().Expand(left, top, right, bottom)
}

// axisInflation returns the inflation of the low and the high side.
func axisInflation(t Tuning, d Sign) (low, high float64) {
	switch d {
	case Positive:
		return t.Trailing, t.Leading
	case Negative:
		return t.Leading, t.Trailing
	default:
		return t.Leading, t.Leading
	}
}
