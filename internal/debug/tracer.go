// Package debug writes intermediate pipeline images and annotated overlays.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// Mode selects how intermediate images are handled.
type Mode string

const (
	ModeNone  Mode = ""
	ModePrint Mode = "print" // write every stage image to the output directory
)

// ParseMode accepts "", "none" and "print".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ModeNone, nil
	case "print":
		return ModePrint, nil
	}
	return ModeNone, fmt.Errorf("unknown debug mode %q", s)
}

// Tracer numbers the steps of one image run. A nil *Tracer is valid and
// records nothing.
type Tracer struct {
	RunID uuid.UUID
	Mode  Mode
	Dir   string
	base  string
	step  int
}

// NewTracer starts a trace for the image at imagePath with a fresh run ID.
func NewTracer(mode Mode, dir, imagePath string) *Tracer {
	base := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	return &Tracer{
		RunID: uuid.New(),
		Mode:  mode,
		Dir:   dir,
		base:  base,
	}
}

// Steps returns how many steps have been recorded.
func (t *Tracer) Steps() int {
	if t == nil {
		return 0
	}
	return t.step
}

// Step advances the counter and, in print mode, writes m as
// <image>_<step>_<name>.png. It returns the written path, or "" when nothing
// was written.
func (t *Tracer) Step(name string, m gocv.Mat) (string, error) {
	if t == nil {
		return "", nil
	}
	t.step++
	if t.Mode != ModePrint || m.Empty() {
		return "", nil
	}

	path := filepath.Join(t.Dir, fmt.Sprintf("%s_%02d_%s.png", t.base, t.step, name))
	if err := Write(path, m); err != nil {
		return "", err
	}
	return path, nil
}

// Write saves m to path, creating the parent directory when needed.
func Write(path string, m gocv.Mat) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if ok := gocv.IMWrite(path, m); !ok {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}
