// Package geom holds the planar primitives used by the containment classifier:
// orientation of ordered triplets and closed-segment intersection.
//
// All comparisons are exact. Nearly collinear input may classify either way;
// callers that need tolerance must snap their input first.
package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// Point is a planar coordinate pair, X then Y.
type Point = orb.Point

// Pt is shorthand for constructing a Point.
func Pt(x, y float64) Point { return Point{x, y} }

// Orientation is the turn direction of an ordered triplet of points.
type Orientation int

const (
	Colinear Orientation = iota
	Clockwise
	Counterclockwise
)

func (o Orientation) String() string {
	switch o {
	case Clockwise:
		return "clockwise"
	case Counterclockwise:
		return "counterclockwise"
	default:
		return "colinear"
	}
}

// Orient classifies the turn p -> q -> r. Zero is compared exactly.
func Orient(p, q, r Point) Orientation {
	val := (q.Y()-p.Y())*(r.X()-q.X()) - (q.X()-p.X())*(r.Y()-q.Y())
	switch {
	case val > 0:
		return Clockwise
	case val < 0:
		return Counterclockwise
	default:
		return Colinear
	}
}

// OnSegment reports whether q lies within the closed axis-aligned box spanned
// by p and r. It is only meaningful when p, q and r are collinear.
func OnSegment(p, q, r Point) bool {
	return q.X() <= math.Max(p.X(), r.X()) && q.X() >= math.Min(p.X(), r.X()) &&
		q.Y() <= math.Max(p.Y(), r.Y()) && q.Y() >= math.Min(p.Y(), r.Y())
}

// Intersects reports whether the closed segments p1-q1 and p2-q2 share at
// least one point. Touching endpoints and collinear overlap both count.
func Intersects(p1, q1, p2, q2 Point) bool {
	o1 := Orient(p1, q1, p2)
	o2 := Orient(p1, q1, q2)
	o3 := Orient(p2, q2, p1)
	o4 := Orient(p2, q2, q1)

	if o1 != o2 && o3 != o4 {
		return true
	}

	// Collinear cases: an endpoint of one segment lies on the other.
	if o1 == Colinear && OnSegment(p1, p2, q1) {
		return true
	}
	if o2 == Colinear && OnSegment(p1, q2, q1) {
		return true
	}
	if o3 == Colinear && OnSegment(p2, p1, q2) {
		return true
	}
	if o4 == Colinear && OnSegment(p2, q1, q2) {
		return true
	}
	return false
}

// Bound returns the bounding box of points. An empty slice yields an empty
// bound at the origin.
func Bound(points []Point) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	return orb.MultiPoint(points).Bound()
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X()-b.X(), a.Y()-b.Y())
}
