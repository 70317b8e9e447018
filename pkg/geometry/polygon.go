package geometry

import (
	"image"
	"math"
)

// PolygonArea returns the absolute shoelace area of a closed polygon.
func PolygonArea(polygon []image.Point) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum int
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []image.Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := FromImagePoint(polygon[i]), FromImagePoint(polygon[j])

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// PolygonIntersectsRect reports whether a closed polygon shares any area
// with the pixel rectangle r. A polygon that fully encloses r counts.
func PolygonIntersectsRect(polygon []image.Point, r RectInt) bool {
	if len(polygon) == 0 || r.Empty() {
		return false
	}

	for _, p := range polygon {
		if r.Contains(p) {
			return true
		}
	}

	n := len(polygon)
	if n >= 2 {
		for i := 0; i < n; i++ {
			if segmentIntersectsRect(polygon[i], polygon[(i+1)%n], r) {
				return true
			}
		}
	}

	// No vertex inside and no crossing edge: either disjoint or r lies
	// entirely inside the polygon.
	return PointInPolygon(Point2D{X: float64(r.X) + 0.5, Y: float64(r.Y) + 0.5}, polygon)
}

// segmentIntersectsRect clips segment a-b against the inclusive pixel box
// of r using the Liang-Barsky parametric test.
func segmentIntersectsRect(a, b image.Point, r RectInt) bool {
	x0, y0 := float64(a.X), float64(a.Y)
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	xmin, ymin := float64(r.X), float64(r.Y)
	xmax, ymax := float64(r.X+r.Width-1), float64(r.Y+r.Height-1)

	t0, t1 := 0.0, 1.0
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{x0 - xmin, xmax - x0, y0 - ymin, ymax - y0}

	for i := 0; i < 4; i++ {
		if p[i] == 0 {
			if q[i] < 0 {
				return false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			if t > t1 {
				return false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return false
			}
			t1 = math.Min(t1, t)
		}
	}
	return t0 <= t1
}
