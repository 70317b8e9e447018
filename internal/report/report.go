// Package report renders an HTML summary of a batch run.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Entry summarizes one image run.
type Entry struct {
	Image   string
	Final   string // terminal pipeline state
	VISArea int
	NIRArea int
	Partial bool
	Err     string
}

// Summary collects entries from concurrent runs.
type Summary struct {
	Title   string
	Started time.Time

	mu      sync.Mutex
	entries []Entry
}

// NewSummary returns an empty summary stamped with the current time.
func NewSummary(title string) *Summary {
	return &Summary{Title: title, Started: time.Now()}
}

// Add records one image run.
func (s *Summary) Add(e Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

// Entries returns a copy of the recorded entries ordered by image path.
func (s *Summary) Entries() []Entry {
	s.mu.Lock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Image < out[j].Image })
	return out
}

// States counts entries per terminal state.
func (s *Summary) States() map[string]int {
	counts := make(map[string]int)
	for _, e := range s.Entries() {
		counts[e.Final]++
	}
	return counts
}

// Render writes the summary page: plant area per image and a tally of
// terminal states.
func (s *Summary) Render(w io.Writer) error {
	entries := s.Entries()
	subtitle := fmt.Sprintf("images=%d started=%s", len(entries), s.Started.Format(time.RFC3339))

	names := make([]string, len(entries))
	vis := make([]opts.BarData, len(entries))
	nir := make([]opts.BarData, len(entries))
	for i, e := range entries {
		names[i] = e.Image
		vis[i] = opts.BarData{Value: e.VISArea}
		nir[i] = opts.BarData{Value: e.NIRArea}
	}

	areas := charts.NewBar()
	areas.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: s.Title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: s.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "pixels"}),
	)
	areas.SetXAxis(names).
		AddSeries("VIS area", vis).
		AddSeries("NIR area", nir)

	counts := s.States()
	stateNames := make([]string, 0, len(counts))
	for name := range counts {
		stateNames = append(stateNames, name)
	}
	sort.Strings(stateNames)
	tally := make([]opts.BarData, len(stateNames))
	for i, name := range stateNames {
		tally[i] = opts.BarData{Value: counts[name]}
	}

	states := charts.NewBar()
	states.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Final states"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	states.SetXAxis(stateNames).
		AddSeries("images", tally,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.PageTitle = s.Title
	page.AddCharts(areas, states)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile renders the summary to path.
func (s *Summary) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := s.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
