package rangedef

import (
	"fmt"

	"github.com/henderiw/rangetable/pkg/geom"
)

type Sign int8

const (
	None     Sign = 0
	Positive Sign = 1
	Negative Sign = -1
)

// Direction is the scroll direction per axis.
type Direction struct {
	X, Y Sign
}

// DirectionBetween derives the direction of travel from prev to next.
func DirectionBetween(prev, next geom.Rect) Direction {
	return Direction{
		X: sign(next.Min.X - prev.Min.X),
		Y: sign(next.Min.Y - prev.Min.Y),
	}
}

// Merge keeps the axes of prev on which d did not move.
func (d Direction) Merge(prev Direction) Direction {
	if d.X == None {
		d.X = prev.X
	}
	if d.Y == None {
		d.Y = prev.Y
	}
	return d
}

func (d Direction) String() string {
	return fmt.Sprintf("x:%d y:%d", d.X, d.Y)
}

func sign(v float64) Sign {
	switch {
	case v > 0:
		return Positive
	case v < 0:
		return Negative
	default:
		return None
	}
}
