// Package mask builds and cleans binary plant masks.
//
// A mask is a single-channel 8-bit gocv.Mat with the same size as its source
// image: 255 marks a candidate plant pixel, 0 marks background.
package mask

import (
	"errors"
	"fmt"
	"image"

	"phenotrace/pkg/colorutil"
	"phenotrace/pkg/geometry"

	"gocv.io/x/gocv"
)

// Edge in a Rect corner means "the image border" along that axis.
const Edge = -1

// statArea is the column of ConnectedComponentsWithStats holding the pixel count.
const statArea = 4

var (
	ErrNoSources         = errors.New("no source masks")
	ErrDimensionMismatch = errors.New("mask dimensions do not match")
)

// Rect is an exclusion rectangle given by two corners, P1 inclusive and P2
// exclusive. X2 or Y2 set to Edge extends the rectangle to the image border.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Resolve returns the rectangle clipped to a cols x rows frame.
func (r Rect) Resolve(cols, rows int) geometry.RectInt {
	x2, y2 := r.X2, r.Y2
	if x2 == Edge {
		x2 = cols
	}
	if y2 == Edge {
		y2 = rows
	}
	frame := geometry.NewRectInt(0, 0, cols, rows)
	return geometry.NewRectInt(r.X1, r.Y1, x2-r.X1, y2-r.Y1).Intersection(frame)
}

// Empty returns an all-zero mask of the given size.
func Empty(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
}

// Or returns the pixelwise union of two masks.
func Or(a, b gocv.Mat) (gocv.Mat, error) {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return gocv.NewMat(), fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, a.Cols(), a.Rows(), b.Cols(), b.Rows())
	}
	dst := gocv.NewMat()
	gocv.BitwiseOr(a, b, &dst)
	return dst, nil
}

// Exclude returns a copy of m with every pixel inside the rectangles forced to 0.
func Exclude(m gocv.Mat, rects []Rect) gocv.Mat {
	dst := m.Clone()
	for _, r := range rects {
		area := r.Resolve(m.Cols(), m.Rows())
		if area.Empty() {
			continue
		}
		gocv.Rectangle(&dst, area.Image(), colorutil.Black, -1)
	}
	return dst
}

// Median smooths m with a square median filter of odd size ksize.
// A ksize below 3 returns an unmodified copy.
func Median(m gocv.Mat, ksize int) gocv.Mat {
	if ksize < 3 {
		return m.Clone()
	}
	if ksize%2 == 0 {
		ksize++
	}
	dst := gocv.NewMat()
	gocv.MedianBlur(m, &dst, ksize)
	return dst
}

// Fill removes every 8-connected foreground component smaller than minSize pixels.
func Fill(m gocv.Mat, minSize int) (gocv.Mat, error) {
	if minSize <= 1 {
		return m.Clone(), nil
	}

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(m, &labels, &stats, &centroids)

	keep := make([]bool, n)
	for i := 1; i < n; i++ {
		keep[i] = int(stats.GetIntAt(i, statArea)) >= minSize
	}

	lbl, err := labels.DataPtrInt32()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("read component labels: %w", err)
	}

	out := make([]byte, len(lbl))
	for i, l := range lbl {
		if keep[l] {
			out[i] = 255
		}
	}
	return FromBytes(out, m.Rows(), m.Cols())
}

// Threshold binarizes a single-channel image. With light set, pixels brighter
// than thresh become foreground; otherwise darker pixels do.
func Threshold(gray gocv.Mat, thresh float32, light bool) gocv.Mat {
	typ := gocv.ThresholdBinary
	if !light {
		typ = gocv.ThresholdBinaryInv
	}
	dst := gocv.NewMat()
	gocv.Threshold(gray, &dst, thresh, 255, typ)
	return dst
}

// FromBytes builds a mask that owns a copy of data (row-major, rows*cols bytes).
func FromBytes(data []byte, rows, cols int) (gocv.Mat, error) {
	if len(data) != rows*cols {
		return gocv.NewMat(), fmt.Errorf("%w: %d bytes for %dx%d", ErrDimensionMismatch, len(data), cols, rows)
	}
	wrapped, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer wrapped.Close()
	return wrapped.Clone(), nil
}

// Count returns the number of foreground pixels.
func Count(m gocv.Mat) int {
	if m.Empty() {
		return 0
	}
	return gocv.CountNonZero(m)
}

// Equal reports whether two masks have identical size and pixels.
func Equal(a, b gocv.Mat) bool {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() || a.Type() != b.Type() {
		return false
	}
	ab, bb := a.ToBytes(), b.ToBytes()
	if len(ab) != len(bb) {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}

// Bounds returns the frame rectangle of m.
func Bounds(m gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, m.Cols(), m.Rows())
}
