package analysis

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotHistogram saves a bar chart of histogram counts to path. The image
// format follows the file extension.
func PlotHistogram(path, title string, counts []int) error {
	if len(counts) == 0 {
		return fmt.Errorf("plot %s: empty histogram", title)
	}

	values := make(plotter.Values, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Bin"
	p.Y.Label.Text = "Pixels"

	bars, err := plotter.NewBarChart(values, vg.Points(2))
	if err != nil {
		return fmt.Errorf("plot %s: %w", title, err)
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
