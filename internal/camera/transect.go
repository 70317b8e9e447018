package camera

import (
	"phenotrace/internal/mask"
	"phenotrace/internal/roi"
)

var transectROI = roi.Adjustment{X: 600, Y: 250, Width: -600, Height: -750}

// TransectTable returns the transect rig profiles: side view only, background
// subtraction, no NIR camera.
func TransectTable() *Table {
	return &Table{
		Name:         "transect",
		Segmentation: SegmentBackground,
		ROIMode:      roi.ModePartial,
		ColorBins:    256,
		Profiles: []Profile{
			{
				Camera: SideView,
				ROI:    transectROI,
				Mask:   mask.Recipe{Passes: []mask.Pass{{Method: mask.MethodMOG}}},
			},
			{
				// Older z300 scenes: a single subtraction pass is clean enough.
				Camera:       SideView,
				Zoom:         "z300",
				ROI:          transectROI,
				BoundaryLine: line(690),
				Mask:         mask.Recipe{Passes: []mask.Pass{{Method: mask.MethodMOG}}},
			},
			{
				Camera:       SideView,
				Zoom:         "z1",
				ROI:          transectROI,
				BoundaryLine: line(700),
				Mask: mask.Recipe{
					Passes: []mask.Pass{
						{Method: mask.MethodMOG},
						// MOG2 picks up the pot rim below y=1300 as foreground.
						{Method: mask.MethodMOG2, Exclusions: []mask.Rect{{X1: 0, Y1: 1300, X2: mask.Edge, Y2: mask.Edge}}},
					},
					Exclusions:   []mask.Rect{{X1: 1100, Y1: 1356, X2: 1400, Y2: 1500}},
					MedianKernel: 11,
					FillSize:     100,
				},
			},
		},
	}
}
