package alignment

import (
	"fmt"
	"math"

	"phenotrace/internal/camera"
	"phenotrace/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// PointPair is one landmark seen in both the VIS and the (oriented) NIR image.
type PointPair struct {
	VIS geometry.Point2D `json:"vis"`
	NIR geometry.Point2D `json:"nir"`
}

// Calibration is the fitted VIS -> NIR mapping for one camera/zoom.
type Calibration struct {
	Transform geometry.AffineTransform
	Alignment camera.Alignment
	RMSError  float64
}

// Calibrate fits a uniform scale plus translation to the landmark pairs by
// least squares and expresses it as an anchored offset on a nirCols x nirRows
// frame. Each axis is anchored to whichever NIR edge the placed mask is
// closer to.
func Calibrate(pairs []PointPair, visCols, visRows, nirCols, nirRows int) (*Calibration, error) {
	if len(pairs) < 2 {
		return nil, fmt.Errorf("need at least 2 point pairs, got %d", len(pairs))
	}

	transform, err := computeScaleTranslation(pairs)
	if err != nil {
		return nil, err
	}
	if transform.A <= 0 {
		return nil, fmt.Errorf("degenerate calibration: scale %v", transform.A)
	}

	mw := max(1, int(math.Round(float64(visCols)*transform.A)))
	mh := max(1, int(math.Round(float64(visRows)*transform.A)))
	tx, ty := int(math.Round(transform.TX)), int(math.Round(transform.TY))

	a := camera.Alignment{Scale: transform.A, OffsetX: tx, OffsetY: ty, Vertical: camera.Top, Horizontal: camera.Left}
	if right := nirCols - mw - tx; math.Abs(float64(right)) < math.Abs(float64(tx)) {
		a.Horizontal = camera.Right
		a.OffsetX = right
	}
	if bottom := nirRows - mh - ty; math.Abs(float64(bottom)) < math.Abs(float64(ty)) {
		a.Vertical = camera.Bottom
		a.OffsetY = bottom
	}

	return &Calibration{
		Transform: transform,
		Alignment: a,
		RMSError:  rmsError(pairs, transform),
	}, nil
}

// computeScaleTranslation solves x' = s*x + tx, y' = s*y + ty.
func computeScaleTranslation(pairs []PointPair) (geometry.AffineTransform, error) {
	n := len(pairs)

	// Build overdetermined system
	A := mat.NewDense(n*2, 3, nil)
	B := mat.NewVecDense(n*2, nil)

	for i, p := range pairs {
		A.Set(i*2, 0, p.VIS.X)
		A.Set(i*2, 1, 1)
		B.SetVec(i*2, p.NIR.X)

		A.Set(i*2+1, 0, p.VIS.Y)
		A.Set(i*2+1, 2, 1)
		B.SetVec(i*2+1, p.NIR.Y)
	}

	// Solve using QR decomposition
	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("least squares: %w", err)
	}

	s := params.AtVec(0)
	return geometry.AffineTransform{A: s, TX: params.AtVec(1), D: s, TY: params.AtVec(2)}, nil
}

// rmsError is the root mean square landmark distance after transformation.
func rmsError(pairs []PointPair, transform geometry.AffineTransform) float64 {
	if len(pairs) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for _, p := range pairs {
		d := transform.Apply(p.VIS).Distance(p.NIR)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pairs)))
}
