package camera

import (
	"phenotrace/internal/mask"
	"phenotrace/internal/roi"
)

// LT1 rig: classifier segmentation, side and top view, with a co-registered
// NIR camera. NIR frames are 0.278 of the VIS resolution.

const lt1NIRScale = 0.278

var lt1ROI = roi.Adjustment{X: 500, Y: 250, Width: -500, Height: -250}

// LT1Table returns the lt1 rig profiles.
func LT1Table() *Table {
	recipe := mask.Recipe{FillSize: 50}

	return &Table{
		Name:            "lt1",
		Segmentation:    SegmentClassifier,
		ClassifierClass: "plant",
		ROIMode:         roi.ModePartial,
		ColorBins:       256,
		Profiles: []Profile{
			{
				// Top view alignment is the same at every zoom.
				Camera:    TopView,
				ROI:       lt1ROI,
				RotateNIR: true,
				Mask:      recipe,
				NIR: &Alignment{
					Scale: lt1NIRScale, OffsetX: 3, OffsetY: 7,
					Vertical: Bottom, Horizontal: Right,
				},
			},
			{
				Camera: SideView,
				ROI:    lt1ROI,
				Mask:   recipe,
			},
			{
				Camera:       SideView,
				Zoom:         "z300",
				ROI:          lt1ROI,
				BoundaryLine: line(680),
				Mask:         recipe,
				NIR: &Alignment{
					Scale: lt1NIRScale, OffsetX: 43, OffsetY: 6,
					Vertical: Top, Horizontal: Right,
				},
			},
			{
				Camera:       SideView,
				Zoom:         "z1",
				ROI:          lt1ROI,
				BoundaryLine: line(670),
				Mask:         recipe,
				NIR: &Alignment{
					Scale: lt1NIRScale, OffsetX: 39, OffsetY: 6,
					Vertical: Top, Horizontal: Right,
				},
			},
		},
	}
}
