package calibration

import "math"

// edgeEpsilon is the tolerance, in pixels, for treating a point as lying on
// a zone edge.
const edgeEpsilon = 1e-9

// Zone is a polygon in pixel space.
type Zone struct {
	vertices []Vertex
}

// NewZone creates a zone from polygon vertices in drawing order.
func NewZone(vertices []Vertex) *Zone {
	v := make([]Vertex, len(vertices))
	copy(v, vertices)
	return &Zone{vertices: v}
}

// Contains reports whether (x, y) lies strictly inside the zone.
// Points on an edge or a vertex are outside.
func (z *Zone) Contains(x, y float64) bool {
	n := len(z.vertices)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := z.vertices[i], z.vertices[j]
		if onSegment(a, b, x, y) {
			return false
		}
		if (a.Y > y) != (b.Y > y) {
			cross := (b.X-a.X)*(y-a.Y)/(b.Y-a.Y) + a.X
			if x < cross {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b Vertex, x, y float64) bool {
	cross := (b.X-a.X)*(y-a.Y) - (b.Y-a.Y)*(x-a.X)
	if math.Abs(cross) > edgeEpsilon*math.Max(1, math.Hypot(b.X-a.X, b.Y-a.Y)) {
		return false
	}
	return x >= math.Min(a.X, b.X)-edgeEpsilon && x <= math.Max(a.X, b.X)+edgeEpsilon &&
		y >= math.Min(a.Y, b.Y)-edgeEpsilon && y <= math.Max(a.Y, b.Y)+edgeEpsilon
}
