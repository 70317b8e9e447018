// Package roi selects the contours that overlap a camera's analysis window.
package roi

import (
	"errors"
	"fmt"

	"phenotrace/internal/mask"
	"phenotrace/internal/object"
	"phenotrace/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrInvalidRegion is returned when an adjustment leaves no usable area.
var ErrInvalidRegion = errors.New("invalid region of interest")

// Adjustment moves the corners of the full frame inward. X and Y shift the
// top-left corner; Width and Height shift the bottom-right corner, so a
// symmetric margin m reads {m, m, -m, -m}.
type Adjustment struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Mode selects how contours are matched against the region.
type Mode string

const (
	ModePartial Mode = "partial" // any overlap keeps the contour
	ModeLargest Mode = "largest" // only the largest overlapping contour
)

// Define returns the region of interest for a cols x rows frame, clipped to
// the frame.
func Define(cols, rows int, adj Adjustment) (geometry.RectInt, error) {
	x1, y1 := adj.X, adj.Y
	x2, y2 := cols+adj.Width, rows+adj.Height

	frame := geometry.NewRectInt(0, 0, cols, rows)
	region := geometry.NewRectInt(x1, y1, x2-x1, y2-y1).Intersection(frame)
	if region.Width <= 0 || region.Height <= 0 {
		return geometry.RectInt{}, fmt.Errorf("%w: adjustment %+v on %dx%d frame", ErrInvalidRegion, adj, cols, rows)
	}
	return region, nil
}

// Result holds the contours kept by Filter and their rasterized mask.
type Result struct {
	Kept object.Set
	Mask gocv.Mat
	Area int
}

// Close releases the mask.
func (r *Result) Close() error {
	return r.Mask.Close()
}

// Filter keeps the top-level contours of set that overlap region, along with
// their holes. The result is always a subset of set.
func Filter(set object.Set, region geometry.RectInt, mode Mode, cols, rows int) (*Result, error) {
	var overlapping []int
	for _, i := range set.TopLevel() {
		if geometry.PolygonIntersectsRect(set.Contours[i].Points, region) {
			overlapping = append(overlapping, i)
		}
	}

	switch mode {
	case ModePartial, "":
	case ModeLargest:
		overlapping = largest(set, overlapping)
	default:
		return nil, fmt.Errorf("unknown roi mode %q", mode)
	}

	kept := set.Subset(overlapping)
	m := object.Render(kept, cols, rows)
	return &Result{Kept: kept, Mask: m, Area: mask.Count(m)}, nil
}

// largest returns the single candidate with the biggest area; ties go to the
// lowest index.
func largest(set object.Set, candidates []int) []int {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	bestArea := set.Contours[best].Area()
	for _, i := range candidates[1:] {
		if a := set.Contours[i].Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	return []int{best}
}
