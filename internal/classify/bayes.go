// Package classify implements the naive Bayes pixel classifier used to
// separate plant pixels from background on classifier rigs.
//
// The model is a table of per-class probability density functions over the
// hue, saturation and value channels, one tab-separated row per class and
// channel:
//
//	class	channel	0	1	...	255
//	plant	hue	0.0012	0.0013	...
package classify

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"phenotrace/internal/mask"

	"gocv.io/x/gocv"
)

const levels = 256

var ErrUnknownClass = errors.New("unknown class")

// PDF holds the probability of each 8-bit level on the three HSV channels.
type PDF struct {
	Hue        [levels]float64
	Saturation [levels]float64
	Value      [levels]float64
}

// NaiveBayes assigns every pixel to the class with the highest product of
// channel probabilities.
type NaiveBayes struct {
	Classes []string // file order; ties go to the earlier class
	pdfs    []*PDF
}

// Load reads a PDF table from a file.
func Load(path string) (*NaiveBayes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open classifier table: %w", err)
	}
	defer f.Close()

	nb, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nb, nil
}

// Parse reads a PDF table. Every class needs all three channels.
func Parse(r io.Reader) (*NaiveBayes, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier table: %w", err)
	}

	nb := &NaiveBayes{}
	seen := make(map[string][3]bool)
	index := make(map[string]int)

	for line, rec := range records {
		if len(rec) == 0 || rec[0] == "class" {
			continue
		}
		if len(rec) != levels+2 {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line+1, levels+2, len(rec))
		}

		class := rec[0]
		i, ok := index[class]
		if !ok {
			i = len(nb.Classes)
			index[class] = i
			nb.Classes = append(nb.Classes, class)
			nb.pdfs = append(nb.pdfs, &PDF{})
		}

		var dst *[levels]float64
		var ch int
		switch strings.ToLower(rec[1]) {
		case "hue":
			dst, ch = &nb.pdfs[i].Hue, 0
		case "saturation":
			dst, ch = &nb.pdfs[i].Saturation, 1
		case "value":
			dst, ch = &nb.pdfs[i].Value, 2
		default:
			return nil, fmt.Errorf("line %d: unknown channel %q", line+1, rec[1])
		}

		for j := 0; j < levels; j++ {
			v, err := strconv.ParseFloat(rec[j+2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: level %d: %w", line+1, j, err)
			}
			dst[j] = v
		}

		s := seen[class]
		s[ch] = true
		seen[class] = s
	}

	if len(nb.Classes) == 0 {
		return nil, fmt.Errorf("classifier table has no classes")
	}
	for _, class := range nb.Classes {
		if s := seen[class]; !s[0] || !s[1] || !s[2] {
			return nil, fmt.Errorf("class %q is missing a channel", class)
		}
	}
	return nb, nil
}

// New builds a classifier from in-memory PDFs.
func New(classes []string, pdfs []*PDF) (*NaiveBayes, error) {
	if len(classes) == 0 || len(classes) != len(pdfs) {
		return nil, fmt.Errorf("need one PDF per class, got %d classes and %d PDFs", len(classes), len(pdfs))
	}
	return &NaiveBayes{Classes: classes, pdfs: pdfs}, nil
}

// Classify returns one mask per class for a BGR image.
func (nb *NaiveBayes) Classify(img gocv.Mat) (map[string]gocv.Mat, error) {
	labels, err := nb.label(img)
	if err != nil {
		return nil, err
	}

	masks := make(map[string]gocv.Mat, len(nb.Classes))
	for c, class := range nb.Classes {
		data := make([]byte, len(labels))
		for i, l := range labels {
			if int(l) == c {
				data[i] = 255
			}
		}
		m, err := mask.FromBytes(data, img.Rows(), img.Cols())
		if err != nil {
			for _, done := range masks {
				done.Close()
			}
			return nil, err
		}
		masks[class] = m
	}
	return masks, nil
}

// label returns the winning class index of every pixel, row-major.
func (nb *NaiveBayes) label(img gocv.Mat) ([]uint8, error) {
	if img.Channels() != 3 {
		return nil, fmt.Errorf("classify: expected BGR image, got %d channels", img.Channels())
	}
	if len(nb.Classes) > 255 {
		return nil, fmt.Errorf("classify: too many classes (%d)", len(nb.Classes))
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)
	px := hsv.ToBytes()

	n := img.Rows() * img.Cols()
	labels := make([]uint8, n)

	// Parallelize by pixel stripes
	numWorkers := runtime.NumCPU()
	perWorker := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		end := min(start+perWorker, n)
		if start >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				h, s, v := px[i*3], px[i*3+1], px[i*3+2]
				best, bestP := 0, -1.0
				for c, pdf := range nb.pdfs {
					p := pdf.Hue[h] * pdf.Saturation[s] * pdf.Value[v]
					if p > bestP {
						best, bestP = c, p
					}
				}
				labels[i] = uint8(best)
			}
		}(start, end)
	}
	wg.Wait()

	return labels, nil
}
