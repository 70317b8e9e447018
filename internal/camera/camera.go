// Package camera describes the imaging rigs: camera identities parsed from
// filenames and the per-camera, per-zoom calibration profiles.
package camera

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrUnknownCamera = errors.New("unknown camera")
	ErrNoAlignment   = errors.New("no NIR alignment for camera/zoom")
	ErrBadFilename   = errors.New("unrecognized image filename")
)

// Kind identifies a camera position.
type Kind int

const (
	KindUnknown Kind = iota
	TopView
	SideView
)

func (k Kind) String() string {
	switch k {
	case TopView:
		return "TV"
	case SideView:
		return "SV"
	default:
		return "unknown"
	}
}

// ParseKind maps a filename tag ("TV", "SV") to a Kind.
func ParseKind(tag string) (Kind, error) {
	switch strings.ToUpper(tag) {
	case "TV":
		return TopView, nil
	case "SV":
		return SideView, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownCamera, tag)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k == KindUnknown {
		return nil, fmt.Errorf("%w: cannot encode", ErrUnknownCamera)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Metadata is what an image filename tells about how it was taken.
//
// Filenames are underscore-delimited: VIS_SV_90_z300_h1_g0_e82_117770.png
// for side view (modality, camera, angle, zoom, ...) and
// VIS_TV_z300_h1_g0_e82_117770.png for top view (modality, camera, zoom, ...).
type Metadata struct {
	Path     string
	Modality string
	Camera   Kind
	Angle    string // side view only
	Zoom     string
}

// ParseFilename extracts camera metadata from an image path.
func ParseFilename(path string) (Metadata, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	fields := strings.Split(name, "_")
	if len(fields) < 3 {
		return Metadata{}, fmt.Errorf("%w: %s", ErrBadFilename, base)
	}

	kind, err := ParseKind(fields[1])
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", base, err)
	}

	md := Metadata{Path: path, Modality: strings.ToUpper(fields[0]), Camera: kind}
	switch kind {
	case SideView:
		if len(fields) < 4 {
			return Metadata{}, fmt.Errorf("%w: %s: side view needs angle and zoom fields", ErrBadFilename, base)
		}
		md.Angle = fields[2]
		md.Zoom = fields[3]
	case TopView:
		md.Zoom = fields[2]
	}
	return md, nil
}

// Matches reports whether other shows the same view as md: same camera and,
// for side view, the same angle.
func (md Metadata) Matches(other Metadata) bool {
	if md.Camera != other.Camera {
		return false
	}
	if md.Camera == SideView && md.Angle != other.Angle {
		return false
	}
	return true
}
