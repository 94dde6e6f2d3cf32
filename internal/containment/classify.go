// Package containment decides which points of a scatter lie inside a closed
// curve, using ray casting with an even-odd crossing count.
package containment

import (
	"math"

	"github.com/banshee-data/datacleaner/internal/geom"
)

// LegacyReference is the fixed ray origin used by earlier releases of the
// cleaner. It is only outside the curve when all data sits above and to the
// right of it.
var LegacyReference = geom.Pt(-100, -100)

// Query is a point to classify. Absent queries stand for pairs where either
// coordinate is not a valid sample; they are never inside.
type Query struct {
	Point geom.Point
	Valid bool
}

// At returns a present query at (x, y).
func At(x, y float64) Query { return Query{Point: geom.Pt(x, y), Valid: true} }

// Absent returns a query that is never inside any curve.
func Absent() Query { return Query{} }

// Classifier counts crossings between each query and a reference point that
// lies outside the curve.
type Classifier struct {
	fixed *geom.Point
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFixedReference casts every ray from p instead of choosing a reference
// point per curve. The caller must guarantee p is outside the curve.
func WithFixedReference(p geom.Point) Option {
	return func(c *Classifier) {
		c.fixed = &p
	}
}

// NewClassifier returns a Classifier. Without options the reference point is
// derived from the curve's bounding box.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns, for each query in order, whether it lies inside curve.
// The curve is validated before any query is examined. Neither argument is
// modified.
func (c *Classifier) Classify(curve Curve, queries []Query) ([]bool, error) {
	if err := curve.Validate(); err != nil {
		return nil, err
	}

	edges := curve.Edges()
	var refs []geom.Point
	if c.fixed != nil {
		refs = []geom.Point{*c.fixed}
	} else {
		refs = referenceRing(curve.Points)
	}

	inside := make([]bool, len(queries))
	for i, q := range queries {
		if !q.Valid {
			continue
		}
		ref := refs[0]
		if len(refs) > 1 {
			ref = pickReference(refs, curve.Points, q.Point)
		}
		crossings := 0
		for _, e := range edges {
			if geom.Intersects(ref, q.Point, e[0], e[1]) {
				crossings++
			}
		}
		inside[i] = crossings%2 == 1
	}
	return inside, nil
}

// Classify is a convenience for classifying plain points with the default
// classifier.
func Classify(curve Curve, points []geom.Point) ([]bool, error) {
	queries := make([]Query, len(points))
	for i, p := range points {
		queries[i] = Query{Point: p, Valid: true}
	}
	return NewClassifier().Classify(curve, queries)
}

// goldenAngle spreads successive candidates around the ring without ever
// repeating a direction.
const goldenAngle = 2.399963229728653

// referenceRing returns candidate ray origins on a circle strictly enclosing
// the bounding box of vertices. Each vertex can rule out at most one candidate
// for a given query, so len(vertices)+1 candidates always leave one usable.
func referenceRing(vertices []geom.Point) []geom.Point {
	b := geom.Bound(vertices)
	center := b.Center()
	halfDiag := geom.Distance(b.Min, b.Max) / 2
	radius := 2*halfDiag + 1

	n := len(vertices) + 1
	refs := make([]geom.Point, n)
	for k := 0; k < n; k++ {
		theta := 0.5 + float64(k)*goldenAngle
		refs[k] = geom.Pt(center.X()+radius*math.Cos(theta), center.Y()+radius*math.Sin(theta))
	}
	return refs
}

// pickReference returns the first candidate whose segment to q does not pass
// through a curve vertex other than q itself. A ray through a vertex would be
// counted once for each edge meeting there.
func pickReference(refs, vertices []geom.Point, q geom.Point) geom.Point {
	for _, r := range refs {
		if !throughVertex(r, q, vertices) {
			return r
		}
	}
	return refs[len(refs)-1]
}

func throughVertex(r, q geom.Point, vertices []geom.Point) bool {
	for _, v := range vertices {
		if v == q {
			continue
		}
		if geom.Orient(r, q, v) == geom.Colinear && geom.OnSegment(r, v, q) {
			return true
		}
	}
	return false
}
