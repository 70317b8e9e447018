package mask

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Method selects a background-subtraction algorithm.
type Method string

const (
	MethodMOG  Method = "mog"  // Gaussian mixture, no shadow detection
	MethodMOG2 Method = "mog2" // Gaussian mixture with shadow detection
	MethodKNN  Method = "knn"  // k-nearest-neighbours, needs a longer background history
)

// Shadow-detecting subtractors mark shadows at 127; only full foreground survives.
const shadowThreshold = 254

// Gaussian mixture defaults from OpenCV.
const (
	mogHistory      = 500
	mogVarThreshold = 16
)

// Pass describes one background-subtraction source and the rectangles
// blanked in its output before it is merged with the other sources.
type Pass struct {
	Method     Method `json:"method"`
	Exclusions []Rect `json:"exclusions,omitempty"`
}

// Recipe holds the per-profile mask synthesis parameters.
type Recipe struct {
	Passes       []Pass `json:"passes,omitempty"`     // background rigs only
	Exclusions   []Rect `json:"exclusions,omitempty"` // applied after merging
	MedianKernel int    `json:"median_kernel,omitempty"`
	FillSize     int    `json:"fill_size,omitempty"`
}

// Source is one input mask plus the exclusion zones specific to it.
type Source struct {
	Mask       gocv.Mat
	Exclusions []Rect
}

// Synthesize combines source masks into a single plant mask:
//  1. blank each source's own exclusion rectangles
//  2. OR all sources together
//  3. blank the recipe's exclusion rectangles
//  4. median-smooth to remove thin line artifacts
//  5. drop components smaller than FillSize
//
// An all-empty input produces an all-zero mask; emptiness is judged downstream.
func Synthesize(sources []Source, recipe Recipe) (gocv.Mat, error) {
	if len(sources) == 0 {
		return gocv.NewMat(), ErrNoSources
	}

	rows, cols := sources[0].Mask.Rows(), sources[0].Mask.Cols()
	merged := Empty(rows, cols)
	defer merged.Close()

	for i, src := range sources {
		if src.Mask.Rows() != rows || src.Mask.Cols() != cols {
			return gocv.NewMat(), fmt.Errorf("source %d: %w: %dx%d, want %dx%d",
				i, ErrDimensionMismatch, src.Mask.Cols(), src.Mask.Rows(), cols, rows)
		}
		if src.Mask.Channels() != 1 {
			return gocv.NewMat(), fmt.Errorf("source %d: expected single-channel mask, got %d channels", i, src.Mask.Channels())
		}
		part := Exclude(src.Mask, src.Exclusions)
		gocv.BitwiseOr(merged, part, &merged)
		part.Close()
	}

	excluded := Exclude(merged, recipe.Exclusions)
	defer excluded.Close()

	smoothed := Median(excluded, recipe.MedianKernel)
	defer smoothed.Close()

	return Fill(smoothed, recipe.FillSize)
}

// BackgroundSubtract labels the pixels of fg that differ from the empty-scene
// image bg. The subtractor is trained on bg alone, so the result depends only
// on the two inputs.
func BackgroundSubtract(fg, bg gocv.Mat, method Method) (gocv.Mat, error) {
	if fg.Rows() != bg.Rows() || fg.Cols() != bg.Cols() {
		return gocv.NewMat(), fmt.Errorf("background: %w: %dx%d vs %dx%d",
			ErrDimensionMismatch, fg.Cols(), fg.Rows(), bg.Cols(), bg.Rows())
	}

	raw := gocv.NewMat()
	defer raw.Close()

	switch method {
	case MethodMOG, "":
		bs := gocv.NewBackgroundSubtractorMOG2WithParams(mogHistory, mogVarThreshold, false)
		defer bs.Close()
		subtract(func(src gocv.Mat, dst *gocv.Mat) { bs.Apply(src, dst) }, fg, bg, &raw)
	case MethodMOG2:
		bs := gocv.NewBackgroundSubtractorMOG2()
		defer bs.Close()
		subtract(func(src gocv.Mat, dst *gocv.Mat) { bs.Apply(src, dst) }, fg, bg, &raw)
	case MethodKNN:
		bs := gocv.NewBackgroundSubtractorKNN()
		defer bs.Close()
		subtract(func(src gocv.Mat, dst *gocv.Mat) { bs.Apply(src, dst) }, fg, bg, &raw)
	default:
		return gocv.NewMat(), fmt.Errorf("unknown background method %q", method)
	}

	return Threshold(raw, shadowThreshold, true), nil
}

func subtract(apply func(src gocv.Mat, dst *gocv.Mat), fg, bg gocv.Mat, dst *gocv.Mat) {
	learn := gocv.NewMat()
	defer learn.Close()
	apply(bg, &learn)
	apply(fg, dst)
}
