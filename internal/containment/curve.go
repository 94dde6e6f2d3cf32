package containment

import (
	"errors"
	"fmt"

	"github.com/banshee-data/datacleaner/internal/geom"
)

var (
	ErrTooFewPoints = errors.New("at least 3 points are needed to define an exclusion area")
	ErrCurveOpen    = errors.New("the exclusion area must be closed")
	ErrCurveClosed  = errors.New("curve is already closed")
)

// MinCurvePoints is the smallest number of vertices that encloses an area.
const MinCurvePoints = 3

// Curve is a polygon outline. The edge from the last point back to the first
// is implied and is never stored as a duplicate point.
type Curve struct {
	Points []geom.Point `json:"points"`
	Closed bool         `json:"closed"`
}

// NewCurve returns a closed curve through points.
func NewCurve(points ...geom.Point) Curve {
	return Curve{Points: append([]geom.Point(nil), points...), Closed: true}
}

// Validate checks the curve can be classified against.
func (c Curve) Validate() error {
	if len(c.Points) < MinCurvePoints {
		return fmt.Errorf("%w: got=%d", ErrTooFewPoints, len(c.Points))
	}
	if !c.Closed {
		return ErrCurveOpen
	}
	return nil
}

// Edges returns every consecutive pair of vertices followed by the closing
// edge. A curve with fewer than two points has no edges.
func (c Curve) Edges() [][2]geom.Point {
	n := len(c.Points)
	if n < 2 {
		return nil
	}
	edges := make([][2]geom.Point, 0, n)
	for i := 0; i < n-1; i++ {
		edges = append(edges, [2]geom.Point{c.Points[i], c.Points[i+1]})
	}
	return append(edges, [2]geom.Point{c.Points[n-1], c.Points[0]})
}

// Reverse returns a copy of the curve with the winding order flipped.
func (c Curve) Reverse() Curve {
	out := Curve{Points: make([]geom.Point, len(c.Points)), Closed: c.Closed}
	for i, p := range c.Points {
		out.Points[len(c.Points)-1-i] = p
	}
	return out
}

// Editor accumulates points placed by a user until the curve is closed by
// placing a point close to the first one.
type Editor struct {
	threshold float64
	points    []geom.Point
	closed    bool
}

// NewEditor returns an editor that closes the curve when a new point lands
// within threshold of the first point.
func NewEditor(threshold float64) *Editor {
	return &Editor{threshold: threshold}
}

// Add places p on the curve and reports whether the curve is now closed.
// Closing points snap to the first vertex and are not stored.
func (e *Editor) Add(p geom.Point) (bool, error) {
	if e.closed {
		return true, ErrCurveClosed
	}
	if len(e.points) >= MinCurvePoints && geom.Distance(p, e.points[0]) < e.threshold {
		e.closed = true
		return true, nil
	}
	e.points = append(e.points, p)
	return false, nil
}

// Clear discards all points and reopens the curve.
func (e *Editor) Clear() {
	e.points = nil
	e.closed = false
}

// Set replaces the curve. A trailing copy of the first vertex is dropped.
func (e *Editor) Set(c Curve) {
	pts := append([]geom.Point(nil), c.Points...)
	if n := len(pts); n > 1 && pts[n-1] == pts[0] {
		pts = pts[:n-1]
	}
	e.points = pts
	e.closed = c.Closed
}

// Len returns the number of stored vertices.
func (e *Editor) Len() int { return len(e.points) }

// Closed reports whether the curve has been closed.
func (e *Editor) Closed() bool { return e.closed }

// Threshold returns the closing distance.
func (e *Editor) Threshold() float64 { return e.threshold }

// Curve returns a copy of the current curve.
func (e *Editor) Curve() Curve {
	return Curve{Points: append([]geom.Point(nil), e.points...), Closed: e.closed}
}
