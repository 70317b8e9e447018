// Package alignment projects a VIS plant mask onto the co-registered NIR
// frame and fits the calibration constants that drive the projection.
package alignment

import (
	"fmt"
	"image"
	"math"

	"phenotrace/internal/camera"
	"phenotrace/internal/mask"
	"phenotrace/internal/object"
	"phenotrace/pkg/geometry"

	"gocv.io/x/gocv"
)

// Result is the NIR-space plant with the oriented NIR image it belongs to.
// The caller owns both mats and must Close the result.
type Result struct {
	Object    *object.PlantObject
	NIR       gocv.Mat                 // single channel, in VIS orientation
	Transform geometry.AffineTransform // VIS pixel -> NIR pixel
	Placement geometry.RectInt         // scaled mask frame in NIR space, before clipping
}

// Close releases the NIR image and the object mask.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	r.Object.Close()
	return r.NIR.Close()
}

// Align maps visMask into the NIR frame using the profile's calibration:
//  1. reduce the NIR image to one channel
//  2. rotate it 180 degrees when the profile asks for it (top view)
//  3. rescale the VIS mask to NIR resolution
//  4. place it on an empty NIR-sized canvas at the anchored offset
//  5. re-extract and compose the plant in NIR space
func Align(visMask, nir gocv.Mat, profile camera.Profile) (*Result, error) {
	params, err := profile.Alignment()
	if err != nil {
		return nil, err
	}
	if visMask.Empty() || nir.Empty() {
		return nil, fmt.Errorf("align: empty input")
	}

	gray := ToGray(nir)
	if profile.RotateNIR {
		rotated := Rotate180(gray)
		gray.Close()
		gray = rotated
	}

	scaled := ScaleMask(visMask, params.Scale)
	defer scaled.Close()

	positioned, placement := Position(scaled, gray.Cols(), gray.Rows(), params)
	defer positioned.Close()

	obj, err := object.FromMask(positioned)
	if err != nil {
		gray.Close()
		return nil, fmt.Errorf("align: %w", err)
	}

	sx := float64(scaled.Cols()) / float64(visMask.Cols())
	sy := float64(scaled.Rows()) / float64(visMask.Rows())
	transform := geometry.Translation(float64(placement.X), float64(placement.Y)).Compose(geometry.Scale(sx, sy))

	return &Result{Object: obj, NIR: gray, Transform: transform, Placement: placement}, nil
}

// ToGray returns a single-channel copy of img.
func ToGray(img gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch img.Channels() {
	case 3:
		gocv.CvtColor(img, &dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(img, &dst, gocv.ColorBGRAToGray)
	default:
		img.CopyTo(&dst)
	}
	return dst
}

// FlipVertical flips an image upside down.
func FlipVertical(img gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Flip(img, &dst, 0)
	return dst
}

// FlipHorizontal flips an image horizontally.
func FlipHorizontal(img gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Flip(img, &dst, 1)
	return dst
}

// Rotate180 flips vertically, then horizontally.
func Rotate180(img gocv.Mat) gocv.Mat {
	v := FlipVertical(img)
	defer v.Close()
	return FlipHorizontal(v)
}

// ScaleMask resizes a binary mask by scale using nearest-neighbour sampling,
// so the result stays binary.
func ScaleMask(m gocv.Mat, scale float64) gocv.Mat {
	w := max(1, int(math.Round(float64(m.Cols())*scale)))
	h := max(1, int(math.Round(float64(m.Rows())*scale)))
	dst := gocv.NewMat()
	gocv.Resize(m, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationNearestNeighbor)
	return dst
}

// Placement returns where a mw x mh mask frame lands on a cols x rows canvas
// for the given anchors and offsets. The rectangle may extend past the canvas.
func Placement(mw, mh, cols, rows int, a camera.Alignment) geometry.RectInt {
	ox, oy := a.OffsetX, a.OffsetY
	if a.Horizontal == camera.Right {
		ox = cols - a.OffsetX - mw
	}
	if a.Vertical == camera.Bottom {
		oy = rows - a.OffsetY - mh
	}
	return geometry.NewRectInt(ox, oy, mw, mh)
}

// Position copies m onto an empty cols x rows canvas at its anchored
// placement. Parts falling outside the canvas are dropped.
func Position(m gocv.Mat, cols, rows int, a camera.Alignment) (gocv.Mat, geometry.RectInt) {
	canvas := mask.Empty(rows, cols)
	placement := Placement(m.Cols(), m.Rows(), cols, rows, a)

	dstRect := placement.Intersection(geometry.NewRectInt(0, 0, cols, rows))
	if dstRect.Empty() {
		return canvas, placement
	}
	srcRect := dstRect.Offset(-placement.X, -placement.Y)

	src := m.Region(srcRect.Image())
	defer src.Close()
	dst := canvas.Region(dstRect.Image())
	defer dst.Close()
	src.CopyTo(&dst)

	return canvas, placement
}
