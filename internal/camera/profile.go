package camera

import (
	"fmt"

	"phenotrace/internal/mask"
	"phenotrace/internal/roi"
)

// Vertical anchors the positioned NIR mask to the top or bottom edge.
type Vertical string

// Horizontal anchors the positioned NIR mask to the left or right edge.
type Horizontal string

const (
	Top    Vertical   = "top"
	Bottom Vertical   = "bottom"
	Left   Horizontal = "left"
	Right  Horizontal = "right"
)

// Alignment places a VIS mask on the NIR frame: scale it, then put its
// bounding frame OffsetX/OffsetY pixels in from the anchor corner.
type Alignment struct {
	Scale      float64    `json:"scale"`
	OffsetX    int        `json:"offset_x"`
	OffsetY    int        `json:"offset_y"`
	Vertical   Vertical   `json:"vertical"`
	Horizontal Horizontal `json:"horizontal"`
}

func (a Alignment) Validate() error {
	if a.Scale <= 0 {
		return fmt.Errorf("alignment scale must be positive, got %v", a.Scale)
	}
	if a.Vertical != Top && a.Vertical != Bottom {
		return fmt.Errorf("alignment vertical anchor must be top or bottom, got %q", a.Vertical)
	}
	if a.Horizontal != Left && a.Horizontal != Right {
		return fmt.Errorf("alignment horizontal anchor must be left or right, got %q", a.Horizontal)
	}
	return nil
}

// Profile holds the static constants for one camera at one zoom level.
// An empty Zoom marks the camera's fallback profile.
type Profile struct {
	Camera       Kind           `json:"camera"`
	Zoom         string         `json:"zoom,omitempty"`
	ROI          roi.Adjustment `json:"roi"`
	BoundaryLine *int           `json:"boundary_line,omitempty"`
	NIR          *Alignment     `json:"nir,omitempty"`
	RotateNIR    bool           `json:"rotate_nir"`
	Mask         mask.Recipe    `json:"mask"`
}

// Boundary returns the boundary line position, if the profile has one.
func (p Profile) Boundary() (int, bool) {
	if p.BoundaryLine == nil {
		return 0, false
	}
	return *p.BoundaryLine, true
}

// Alignment returns the NIR alignment or ErrNoAlignment.
func (p Profile) Alignment() (Alignment, error) {
	if p.NIR == nil {
		zoom := p.Zoom
		if zoom == "" {
			zoom = "default"
		}
		return Alignment{}, fmt.Errorf("%w: %s %s", ErrNoAlignment, p.Camera, zoom)
	}
	return *p.NIR, nil
}

func (p Profile) Validate() error {
	if p.Camera == KindUnknown {
		return fmt.Errorf("profile camera is required")
	}
	if p.BoundaryLine != nil && *p.BoundaryLine < 0 {
		return fmt.Errorf("%s %s: boundary line must not be negative", p.Camera, p.Zoom)
	}
	if p.NIR != nil {
		if err := p.NIR.Validate(); err != nil {
			return fmt.Errorf("%s %s: %w", p.Camera, p.Zoom, err)
		}
	}
	if p.Mask.FillSize < 0 || p.Mask.MedianKernel < 0 {
		return fmt.Errorf("%s %s: mask sizes must not be negative", p.Camera, p.Zoom)
	}
	for _, pass := range p.Mask.Passes {
		switch pass.Method {
		case mask.MethodMOG, mask.MethodMOG2, mask.MethodKNN:
		default:
			return fmt.Errorf("%s %s: unknown background method %q", p.Camera, p.Zoom, pass.Method)
		}
	}
	return nil
}

func line(y int) *int {
	return &y
}
