package geom

import (
	"fmt"
	"math"
)

type Point struct {
	X, Y float64
}

type Size struct {
	Width, Height float64
}

// Rect is a closed, axis-aligned rectangle: two rects that share an edge
// intersect.
type Rect struct {
	Min, Max Point
}

// RectFrom builds a rect from an origin and a size. Negative sizes are
// normalized so Min is always the lower corner.
func RectFrom(x, y, w, h float64) Rect {
	return Rect{
		Min: Point{X: x, Y: y},
		Max: Point{X: x + w, Y: y + h},
	}.Canon()
}

// Canon returns r with Min and Max swapped where needed.
func (r Rect) Canon() Rect {
	if r.Max.X < r.Min.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Max.Y < r.Min.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	return r
}

func (r Rect) Origin() Point { return r.Min }

func (r Rect) Size() Size {
	return Size{Width: r.Max.X - r.Min.X, Height: r.Max.Y - r.Min.Y}
}

// IsValid reports whether r has no NaN coordinates and Min <= Max.
func (r Rect) IsValid() bool {
	for _, v := range []float64{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y} {
		if math.IsNaN(v) {
			return false
		}
	}
	return r.Min.X <= r.Max.X && r.Min.Y <= r.Max.Y
}

// Intersects reports whether r and o share at least one point.
func (r Rect) Intersects(o Rect) bool {
	return r.Min.X <= o.Max.X && o.Min.X <= r.Max.X &&
		r.Min.Y <= o.Max.Y && o.Min.Y <= r.Max.Y
}

// Contains reports whether o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	return r.Min.X <= o.Min.X && o.Max.X <= r.Max.X &&
		r.Min.Y <= o.Min.Y && o.Max.Y <= r.Max.Y
}

// Union returns the smallest rect covering r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Min: Point{X: math.Min(r.Min.X, o.Min.X), Y: math.Min(r.Min.Y, o.Min.Y)},
		Max: Point{X: math.Max(r.Max.X, o.Max.X), Y: math.Max(r.Max.Y, o.Max.Y)},
	}
}

// Inflate grows r by d on every side.
func (r Rect) Inflate(d float64) Rect {
	return r.Expand(d, d, d, d)
}

// Expand grows every side of r independently.
func (r Rect) Expand(left, top, right, bottom float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X - left, Y: r.Min.Y - top},
		Max: Point{X: r.Max.X + right, Y: r.Max.Y + bottom},
	}
}

// Offset translates r by (dx, dy).
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X + dx, Y: r.Min.Y + dy},
		Max: Point{X: r.Max.X + dx, Y: r.Max.Y + dy},
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g)-(%g,%g)", r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}
