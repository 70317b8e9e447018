package camera

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"phenotrace/internal/roi"
)

// Segmentation selects how a rig produces its source masks.
type Segmentation string

const (
	SegmentClassifier Segmentation = "classifier" // naive Bayes pixel classifier
	SegmentBackground Segmentation = "background" // subtraction against an empty-scene image
)

// Table is the full set of profiles for one imaging rig.
type Table struct {
	Name            string       `json:"name"`
	Segmentation    Segmentation `json:"segmentation"`
	ClassifierClass string       `json:"classifier_class,omitempty"`
	ROIMode         roi.Mode     `json:"roi_mode"`
	ColorBins       int          `json:"color_bins"`
	Profiles        []Profile    `json:"profiles"`
}

// Lookup returns the profile for a camera and zoom. A zoom without its own
// entry falls back to the camera's default profile (empty Zoom).
func (t *Table) Lookup(kind Kind, zoom string) (Profile, error) {
	var fallback *Profile
	for i := range t.Profiles {
		p := &t.Profiles[i]
		if p.Camera != kind {
			continue
		}
		if p.Zoom == zoom && zoom != "" {
			return *p, nil
		}
		if p.Zoom == "" {
			fallback = p
		}
	}
	if fallback == nil {
		return Profile{}, fmt.Errorf("%w: rig %s has no %s profile", ErrUnknownCamera, t.Name, kind)
	}
	return *fallback, nil
}

// HasNIR reports whether any profile of the rig carries an NIR alignment.
func (t *Table) HasNIR() bool {
	for _, p := range t.Profiles {
		if p.NIR != nil {
			return true
		}
	}
	return false
}

func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("rig name is required")
	}
	switch t.Segmentation {
	case SegmentClassifier:
		if t.ClassifierClass == "" {
			return fmt.Errorf("rig %s: classifier class is required", t.Name)
		}
	case SegmentBackground:
	default:
		return fmt.Errorf("rig %s: unknown segmentation %q", t.Name, t.Segmentation)
	}
	switch t.ROIMode {
	case roi.ModePartial, roi.ModeLargest:
	default:
		return fmt.Errorf("rig %s: unknown roi mode %q", t.Name, t.ROIMode)
	}
	if t.ColorBins <= 0 || t.ColorBins > 256 {
		return fmt.Errorf("rig %s: color bins must be in 1..256, got %d", t.Name, t.ColorBins)
	}
	if len(t.Profiles) == 0 {
		return fmt.Errorf("rig %s: at least one profile is required", t.Name)
	}

	seen := make(map[string]bool)
	for _, p := range t.Profiles {
		key := p.Camera.String() + "/" + p.Zoom
		if seen[key] {
			return fmt.Errorf("rig %s: duplicate profile %s", t.Name, key)
		}
		seen[key] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("rig %s: %w", t.Name, err)
		}
	}
	return nil
}

// SaveToFile saves the table to a JSON file.
func (t *Table) SaveToFile(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFromFile loads a rig table from a JSON file.
func LoadFromFile(path string) (*Table, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("profile file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat profile file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("profile file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, err
	}

	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rig table: %w", err)
	}

	return &table, nil
}

// Registry of known rigs
var registry = make(map[string]*Table)

// Register adds a rig table to the registry, replacing any table of the same name.
func Register(t *Table) {
	registry[t.Name] = t
}

// GetTable returns a rig table by name.
func GetTable(name string) (*Table, error) {
	if t, ok := registry[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown rig %q (known: %v)", name, ListTables())
}

// ListTables returns all registered rig names, sorted.
func ListTables() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	// Register built-in rigs
	Register(LT1Table())
	Register(TransectTable())
}
