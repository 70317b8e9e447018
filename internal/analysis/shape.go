// Package analysis measures traits of a composed plant object.
package analysis

import (
	"fmt"
	"image"
	"math"

	"phenotrace/internal/object"
	"phenotrace/internal/results"
	"phenotrace/pkg/geometry"

	"gocv.io/x/gocv"
)

// Shape measures size and form of the plant object.
func Shape(obj *object.PlantObject) (results.Block, error) {
	if obj == nil || len(obj.Contour) == 0 {
		return results.Block{}, fmt.Errorf("shape: %w", object.ErrNoContours)
	}

	area := obj.Area()

	pv := gocv.NewPointVectorFromPoints(obj.Contour)
	defer pv.Close()

	hull := convexHull(pv, obj.Contour)
	hullArea := geometry.PolygonArea(hull)
	solidity := 1.0
	if hullArea > 0 {
		solidity = math.Min(1, float64(area)/hullArea)
	}

	perimeter, err := perimeter(obj.Mask)
	if err != nil {
		return results.Block{}, err
	}

	bounds := obj.Bounds()
	cx, cy := centerOfMass(obj.Mask)

	inBounds := bounds.X > 0 && bounds.Y > 0 &&
		bounds.X+bounds.Width < obj.Mask.Cols() && bounds.Y+bounds.Height < obj.Mask.Rows()

	b := results.NewBlock("SHAPES")
	b.Add("area", area)
	b.Add("hull-area", hullArea)
	b.Add("solidity", solidity)
	b.Add("perimeter", perimeter)
	b.Add("width", bounds.Width)
	b.Add("height", bounds.Height)
	b.Add("longest_axis", longestAxis(hull))
	b.Add("center-of-mass-x", cx)
	b.Add("center-of-mass-y", cy)
	b.Add("hull_vertices", len(hull))
	b.Add("in_bounds", inBounds)

	ex, ey, major, minor, angle, ecc := ellipse(pv, len(obj.Contour))
	b.Add("ellipse_center_x", ex)
	b.Add("ellipse_center_y", ey)
	b.Add("ellipse_major_axis", major)
	b.Add("ellipse_minor_axis", minor)
	b.Add("ellipse_angle", angle)
	b.Add("ellipse_eccentricity", ecc)

	return b, nil
}

func convexHull(pv gocv.PointVector, points []image.Point) []image.Point {
	idx := gocv.NewMat()
	defer idx.Close()
	gocv.ConvexHull(pv, &idx, true, false)

	hull := make([]image.Point, 0, idx.Rows())
	for i := 0; i < idx.Rows(); i++ {
		hull = append(hull, points[idx.GetIntAt(i, 0)])
	}
	return hull
}

// perimeter sums the outer boundary lengths of every region in m.
func perimeter(m gocv.Mat) (float64, error) {
	set, err := object.Find(m)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, i := range set.TopLevel() {
		pv := gocv.NewPointVectorFromPoints(set.Contours[i].Points)
		total += gocv.ArcLength(pv, true)
		pv.Close()
	}
	return total, nil
}

func centerOfMass(m gocv.Mat) (float64, float64) {
	mom := gocv.Moments(m, true)
	if mom["m00"] == 0 {
		return 0, 0
	}
	return mom["m10"] / mom["m00"], mom["m01"] / mom["m00"]
}

// longestAxis is the largest distance between two hull vertices.
func longestAxis(hull []image.Point) float64 {
	var best float64
	for i := range hull {
		for j := i + 1; j < len(hull); j++ {
			d := geometry.FromImagePoint(hull[i]).Distance(geometry.FromImagePoint(hull[j]))
			best = math.Max(best, d)
		}
	}
	return best
}

// ellipse fits an ellipse to the contour points. Fewer than five points
// yields zeros.
func ellipse(pv gocv.PointVector, n int) (cx, cy, major, minor, angle, ecc float64) {
	if n < 5 {
		return
	}
	rr := gocv.FitEllipse(pv)
	major = math.Max(float64(rr.Width), float64(rr.Height))
	minor = math.Min(float64(rr.Width), float64(rr.Height))
	if major > 0 {
		ecc = math.Sqrt(1 - (minor*minor)/(major*major))
	}
	return float64(rr.Center.X), float64(rr.Center.Y), major, minor, rr.Angle, ecc
}
