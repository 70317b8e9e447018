// Command nircalib fits the VIS to NIR alignment for one camera and zoom from
// landmark pairs and prints it as a profile "nir" entry.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"phenotrace/internal/alignment"
	"phenotrace/internal/camera"

	"github.com/akamensky/argparse"
)

// Size is a frame size in pixels.
type Size struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Landmarks is the input file: both frame sizes and the matched points, with
// NIR points given in the rotated orientation for top view.
type Landmarks struct {
	VIS   Size                  `json:"vis"`
	NIR   Size                  `json:"nir"`
	Pairs []alignment.PointPair `json:"pairs"`
}

func main() {
	parser := argparse.NewParser("nircalib", "Fit VIS to NIR alignment from landmark pairs")
	input := parser.String("i", "input", &argparse.Options{Help: "Landmark JSON file", Required: true})
	tablePath := parser.String("t", "table", &argparse.Options{Help: "Rig table JSON to update in place", Default: ""})
	cameraTag := parser.String("", "camera", &argparse.Options{Help: "Camera of the profile to update (SV or TV)", Default: ""})
	zoom := parser.String("", "zoom", &argparse.Options{Help: "Zoom of the profile to update (empty for the default profile)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	f, err := os.Open(*input)
	check(err)
	lm, err := readLandmarks(f)
	f.Close()
	check(err)

	cal, err := alignment.Calibrate(lm.Pairs, lm.VIS.Cols, lm.VIS.Rows, lm.NIR.Cols, lm.NIR.Rows)
	check(err)

	fmt.Fprintf(os.Stderr, "pairs=%d scale=%.4f rms=%.3f px\n", len(lm.Pairs), cal.Alignment.Scale, cal.RMSError)
	out, err := json.MarshalIndent(cal.Alignment, "", "  ")
	check(err)
	fmt.Println(string(out))

	if *tablePath == "" {
		return
	}
	kind, err := camera.ParseKind(*cameraTag)
	check(err)
	table, err := camera.LoadFromFile(*tablePath)
	check(err)
	check(setAlignment(table, kind, *zoom, cal.Alignment))
	check(table.SaveToFile(*tablePath))
	fmt.Fprintf(os.Stderr, "updated %s %s in %s\n", kind, *zoom, *tablePath)
}

func readLandmarks(r io.Reader) (*Landmarks, error) {
	var lm Landmarks
	if err := json.NewDecoder(r).Decode(&lm); err != nil {
		return nil, fmt.Errorf("failed to parse landmarks: %w", err)
	}
	if lm.VIS.Cols <= 0 || lm.VIS.Rows <= 0 || lm.NIR.Cols <= 0 || lm.NIR.Rows <= 0 {
		return nil, fmt.Errorf("landmarks: frame sizes must be positive")
	}
	return &lm, nil
}

// setAlignment stores a on the profile with exactly this camera and zoom.
func setAlignment(table *camera.Table, kind camera.Kind, zoom string, a camera.Alignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	for i := range table.Profiles {
		p := &table.Profiles[i]
		if p.Camera == kind && p.Zoom == zoom {
			p.NIR = &a
			return nil
		}
	}
	return fmt.Errorf("%w: no %s profile for zoom %q in %s", camera.ErrUnknownCamera, kind, zoom, table.Name)
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
