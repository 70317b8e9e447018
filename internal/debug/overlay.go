package debug

import (
	"image"

	"phenotrace/internal/object"
	"phenotrace/pkg/colorutil"
	"phenotrace/pkg/geometry"

	"gocv.io/x/gocv"
)

// Overlay describes what to draw on an annotated output image.
type Overlay struct {
	Object   *object.PlantObject
	ROI      geometry.RectInt
	Boundary *int // pixels above the bottom edge
}

// Annotate returns a BGR copy of img with the plant outline, the ROI and the
// boundary line drawn on it.
func Annotate(img gocv.Mat, ov Overlay) gocv.Mat {
	out := gocv.NewMat()
	switch img.Channels() {
	case 1:
		gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(img, &out, gocv.ColorBGRAToBGR)
	default:
		img.CopyTo(&out)
	}

	if !ov.ROI.Empty() {
		gocv.Rectangle(&out, ov.ROI.Image(), colorutil.ROIColor, 3)
	}

	if ov.Object != nil {
		set, err := object.Find(ov.Object.Mask)
		if err == nil && set.Len() > 0 {
			pts := make([][]image.Point, set.Len())
			for i, c := range set.Contours {
				pts[i] = c.Points
			}
			pvs := gocv.NewPointsVectorFromPoints(pts)
			gocv.DrawContours(&out, pvs, -1, colorutil.PlantColor, 2)
			pvs.Close()
		}
	}

	if ov.Boundary != nil {
		y := out.Rows() - *ov.Boundary
		gocv.Line(&out, image.Pt(0, y), image.Pt(out.Cols(), y), colorutil.BoundaryColor, 3)
	}

	return out
}
