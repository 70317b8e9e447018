// Package image loads rig photographs and locates their NIR counterparts.
package image

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"phenotrace/internal/camera"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrNoNIR is returned when no NIR image matches a VIS image.
var ErrNoNIR = errors.New("no matching NIR image")

// Frame is a decoded photograph with the metadata parsed from its name.
// The caller owns Mat and must Close the frame.
type Frame struct {
	Path string
	Meta camera.Metadata
	Mat  gocv.Mat // BGR 8UC3, or 8UC1 for grayscale sources
}

// Close releases the pixel buffer.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}

// Width returns the image width in pixels.
func (f *Frame) Width() int {
	return f.Mat.Cols()
}

// Height returns the image height in pixels.
func (f *Frame) Height() int {
	return f.Mat.Rows()
}

// Load decodes an image and parses its filename metadata.
func Load(path string) (*Frame, error) {
	meta, err := camera.ParseFilename(path)
	if err != nil {
		return nil, err
	}

	m, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return &Frame{Path: path, Meta: meta, Mat: m}, nil
}

// Decode reads an image file into a gocv.Mat without looking at its name.
func Decode(path string) (gocv.Mat, error) {
	file, err := os.Open(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}

	return ToMat(img)
}

// ToMat converts a Go image to a gocv.Mat: grayscale images become 8UC1,
// everything else BGR 8UC3.
func ToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}

	if gray, ok := img.(*image.Gray); ok {
		data := make([]byte, width*height)
		for y := 0; y < height; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+width]
			copy(data[y*width:], row)
		}
		return fromBytes(data, height, width, gocv.MatTypeCV8UC1)
	}

	data := make([]byte, width*height*3)

	// Parallelize by horizontal stripes
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := min(startY+rowsPerWorker, height)
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < width; x++ {
					r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
					// OpenCV uses BGR format
					off := (y*width + x) * 3
					data[off+0] = uint8(b >> 8)
					data[off+1] = uint8(g >> 8)
					data[off+2] = uint8(r >> 8)
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return fromBytes(data, height, width, gocv.MatTypeCV8UC3)
}

func fromBytes(data []byte, rows, cols int, mt gocv.MatType) (gocv.Mat, error) {
	wrapped, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer wrapped.Close()
	return wrapped.Clone(), nil
}

// ResolveNIR finds the NIR image taken alongside a VIS image: a file in the
// same directory whose name contains "NIR" and that shows the same camera
// (and, for side view, the same angle). When several match, the
// lexicographically first is used.
func ResolveNIR(visPath string) (string, error) {
	vis, err := camera.ParseFilename(visPath)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(visPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), "NIR") || !IsSupportedFormat(e.Name()) {
			continue
		}
		meta, err := camera.ParseFilename(e.Name())
		if err != nil {
			continue
		}
		if vis.Matches(meta) {
			candidates = append(candidates, e.Name())
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoNIR, filepath.Base(visPath))
	}
	sort.Strings(candidates)
	return filepath.Join(dir, candidates[0]), nil
}

// ListVIS returns the supported, non-NIR images in dir, sorted by name.
func ListVIS(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), "NIR") || !IsSupportedFormat(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
