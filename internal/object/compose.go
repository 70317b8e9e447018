package object

import (
	"errors"
	"fmt"
	"image"

	"phenotrace/internal/mask"
	"phenotrace/pkg/colorutil"
	"phenotrace/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrNoContours is returned when there is nothing to compose.
var ErrNoContours = errors.New("no contours")

// PlantObject is the single composite shape of one plant in one coordinate
// space. The caller owns Mask and must Close the object.
type PlantObject struct {
	Contour []image.Point // merged points of all top-level contours
	Mask    gocv.Mat
	Parents int
	Holes   int
}

// Close releases the mask.
func (p *PlantObject) Close() error {
	if p == nil {
		return nil
	}
	return p.Mask.Close()
}

// Area returns the foreground pixel count of the object mask.
func (p *PlantObject) Area() int {
	return mask.Count(p.Mask)
}

// Bounds returns the inclusive bounding box of the merged contour.
func (p *PlantObject) Bounds() geometry.RectInt {
	return geometry.BoundingBox(p.Contour)
}

// Find traces the outer boundaries and hole boundaries of a binary mask.
func Find(m gocv.Mat) (Set, error) {
	if m.Empty() {
		return Set{}, nil
	}
	if m.Channels() != 1 {
		return Set{}, fmt.Errorf("find contours: expected single-channel mask, got %d channels", m.Channels())
	}

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()

	contours := gocv.FindContoursWithParams(m, &hierarchy, gocv.RetrievalCComp, gocv.ChainApproxSimple)
	defer contours.Close()

	n := contours.Size()
	set := Set{Contours: make([]Contour, n)}
	for i := 0; i < n; i++ {
		h := hierarchy.GetVeciAt(0, i)
		set.Contours[i] = Contour{
			Points: contours.At(i).ToPoints(),
			Relation: Relation{
				Next:       int(h[0]),
				Prev:       int(h[1]),
				FirstChild: int(h[2]),
				Parent:     int(h[3]),
			},
		}
	}
	return set, nil
}

// Render rasterizes a contour set onto a cols x rows mask. Each parent region
// is filled and its own hole interiors cleared, with hole outlines kept as
// foreground. Regions nested inside another region's hole survive, so
// Render(Find(m)) reproduces m.
func Render(set Set, cols, rows int) gocv.Mat {
	out := mask.Empty(rows, cols)
	if set.Len() == 0 {
		return out
	}

	points := make([][]image.Point, set.Len())
	for i, c := range set.Contours {
		points[i] = c.Points
	}
	pv := gocv.NewPointsVectorFromPoints(points)
	defer pv.Close()

	// Each region is drawn on its own layer so a hole only clears its own
	// parent, never a region nested inside it.
	layer := mask.Empty(rows, cols)
	defer layer.Close()
	for _, i := range set.TopLevel() {
		layer.SetTo(gocv.NewScalar(0, 0, 0, 0))
		gocv.DrawContours(&layer, pv, i, colorutil.White, -1)
		for _, h := range set.Children(i) {
			gocv.DrawContours(&layer, pv, h, colorutil.Black, -1)
			gocv.DrawContours(&layer, pv, h, colorutil.White, 1)
		}
		gocv.BitwiseOr(out, layer, &out)
	}
	return out
}

// Compose merges every top-level contour of set into one plant object.
// Child contours are treated as holes of their parents.
func Compose(set Set, cols, rows int) (*PlantObject, error) {
	top := set.TopLevel()
	if len(top) == 0 {
		return nil, ErrNoContours
	}

	var merged []image.Point
	for _, i := range top {
		merged = append(merged, set.Contours[i].Points...)
	}

	return &PlantObject{
		Contour: merged,
		Mask:    Render(set, cols, rows),
		Parents: len(top),
		Holes:   len(set.Holes()),
	}, nil
}

// FromMask finds the contours of m and composes them.
func FromMask(m gocv.Mat) (*PlantObject, error) {
	set, err := Find(m)
	if err != nil {
		return nil, err
	}
	return Compose(set, m.Cols(), m.Rows())
}
