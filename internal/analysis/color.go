package analysis

import (
	"fmt"
	"math"
	"sort"

	"phenotrace/internal/results"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// channelNames lists histogram rows in output order: BGR, then LAB, then HSV.
var channelNames = []string{"blue", "green", "red", "lightness", "green-magenta", "blue-yellow", "hue", "saturation", "value"}

// Histograms holds per-channel masked histograms keyed by channel name.
type Histograms map[string][]int

// Color measures color distribution of img (BGR) under the plant mask.
func Color(img, m gocv.Mat, bins int) (results.Block, results.Block, Histograms, error) {
	if img.Channels() != 3 {
		return results.Block{}, results.Block{}, nil, fmt.Errorf("color: expected BGR image, got %d channels", img.Channels())
	}
	if bins <= 0 || bins > 256 {
		return results.Block{}, results.Block{}, nil, fmt.Errorf("color: bins must be in 1..256, got %d", bins)
	}

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(img, &lab, gocv.ColorBGRToLab)

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	hists := make(Histograms, len(channelNames))
	var hue gocv.Mat
	for i, src := range []gocv.Mat{img, lab, hsv} {
		planes := gocv.Split(src)
		for c, plane := range planes {
			h, err := histogram(plane, m, bins)
			if err != nil {
				closeAll(planes)
				return results.Block{}, results.Block{}, nil, err
			}
			hists[channelNames[i*3+c]] = h
		}
		if i == 2 {
			hue = planes[0].Clone()
		}
		closeAll(planes)
	}
	defer hue.Close()

	hist := results.NewBlock("HISTOGRAM")
	hist.Add("bin-number", bins)
	for _, name := range channelNames {
		hist.Add(name, hists[name])
	}

	mean, std, median := hueStats(maskedValues(hue, m))
	hueBlock := results.NewBlock("HUE")
	hueBlock.Add("hue_circular_mean", mean)
	hueBlock.Add("hue_circular_std", std)
	hueBlock.Add("hue_median", median)

	return hist, hueBlock, hists, nil
}

// histogram counts 8-bit values of a single-channel plane under m.
func histogram(plane, m gocv.Mat, bins int) ([]int, error) {
	hist := gocv.NewMat()
	defer hist.Close()

	if err := gocv.CalcHist([]gocv.Mat{plane}, []int{0}, m, &hist, []int{bins}, []float64{0, 256}, false); err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}

	out := make([]int, bins)
	for i := 0; i < bins; i++ {
		out[i] = int(hist.GetFloatAt(i, 0))
	}
	return out, nil
}

// maskedValues returns the plane values where m is set, in raster order.
func maskedValues(plane, m gocv.Mat) []float64 {
	px, mk := plane.ToBytes(), m.ToBytes()
	var vals []float64
	for i, v := range mk {
		if v != 0 {
			vals = append(vals, float64(px[i]))
		}
	}
	return vals
}

// hueStats returns circular mean and standard deviation (degrees) plus the
// median of OpenCV hue values (0-179, two degrees per step).
func hueStats(hues []float64) (mean, std, median float64) {
	if len(hues) == 0 {
		return 0, 0, 0
	}

	rad := make([]float64, len(hues))
	var sumSin, sumCos float64
	for i, h := range hues {
		rad[i] = h * 2 * math.Pi / 180
		sumSin += math.Sin(rad[i])
		sumCos += math.Cos(rad[i])
	}

	mean = stat.CircularMean(rad, nil) * 180 / math.Pi
	if mean < 0 {
		mean += 360
	}
	n := float64(len(hues))
	r := math.Min(1, math.Hypot(sumSin/n, sumCos/n))
	std = math.Sqrt(-2*math.Log(r)) * 180 / math.Pi
	if math.IsNaN(std) || math.IsInf(std, 0) {
		std = 0
	}

	sorted := make([]float64, len(hues))
	for i, h := range hues {
		sorted[i] = h * 2
	}
	sort.Float64s(sorted)
	median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return mean, std, median
}

func closeAll(mats []gocv.Mat) {
	for _, m := range mats {
		m.Close()
	}
}
