package analysis

import (
	"fmt"
	"sort"

	"phenotrace/internal/results"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// NIRIntensity measures the NIR signal under the plant mask. nir must be a
// single-channel image of the same size as m.
func NIRIntensity(nir, m gocv.Mat, bins int) (results.Block, []int, error) {
	if nir.Channels() != 1 {
		return results.Block{}, nil, fmt.Errorf("nir intensity: expected single-channel image, got %d channels", nir.Channels())
	}
	if nir.Rows() != m.Rows() || nir.Cols() != m.Cols() {
		return results.Block{}, nil, fmt.Errorf("nir intensity: mask %dx%d does not match image %dx%d", m.Cols(), m.Rows(), nir.Cols(), nir.Rows())
	}

	hist, err := histogram(nir, m, bins)
	if err != nil {
		return results.Block{}, nil, err
	}

	vals := maskedValues(nir, m)
	var mean, std, median float64
	if len(vals) > 0 {
		mean, std = stat.MeanStdDev(vals, nil)
		sort.Float64s(vals)
		median = stat.Quantile(0.5, stat.Empirical, vals, nil)
	}
	if len(vals) < 2 {
		std = 0
	}

	b := results.NewBlock("NIR")
	b.Add("bin-number", bins)
	b.Add("nir_mean", mean)
	b.Add("nir_median", median)
	b.Add("nir_std", std)
	b.Add("signal_values", hist)
	return b, hist, nil
}
