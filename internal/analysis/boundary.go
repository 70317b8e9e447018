package analysis

import (
	"fmt"
	"strconv"

	"phenotrace/internal/object"
	"phenotrace/internal/results"
)

// Boundary splits the plant at a horizontal line positioned linePosition
// pixels above the bottom of the frame and measures the parts on each side.
func Boundary(obj *object.PlantObject, linePosition int) (results.Block, error) {
	if obj == nil {
		return results.Block{}, fmt.Errorf("boundary: %w", object.ErrNoContours)
	}

	rows, cols := obj.Mask.Rows(), obj.Mask.Cols()
	yLine := rows - linePosition
	if yLine < 0 || yLine > rows {
		return results.Block{}, fmt.Errorf("boundary line %d outside %d-row frame", linePosition, rows)
	}

	px := obj.Mask.ToBytes()
	var above, below int
	top, bottom := -1, -1
	for y := 0; y < rows; y++ {
		n := 0
		for _, v := range px[y*cols : (y+1)*cols] {
			if v != 0 {
				n++
			}
		}
		if n == 0 {
			continue
		}
		if top < 0 {
			top = y
		}
		bottom = y
		if y < yLine {
			above += n
		} else {
			below += n
		}
	}

	total := above + below
	var heightAbove, heightBelow int
	if above > 0 {
		heightAbove = yLine - top
	}
	if below > 0 {
		heightBelow = bottom - yLine + 1
	}

	b := results.NewBlock("BOUNDARY")
	b.Header += strconv.Itoa(linePosition)
	b.Add("height_above_bound", heightAbove)
	b.Add("height_below_bound", heightBelow)
	b.Add("above_bound_area", above)
	b.Add("percent_above_bound_area", percent(above, total))
	b.Add("below_bound_area", below)
	b.Add("percent_below_bound_area", percent(below, total))
	return b, nil
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
