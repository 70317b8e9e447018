package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"phenotrace/internal/alignment"
	"phenotrace/internal/camera"
	"phenotrace/internal/classify"
	"phenotrace/internal/debug"
	phimage "phenotrace/internal/image"
	"phenotrace/internal/mask"
	"phenotrace/internal/object"
	"phenotrace/internal/results"
	"phenotrace/pkg/colorutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// memorySink keeps records and run summaries in memory.
type memorySink struct {
	mu      sync.Mutex
	records []results.Record
	runs    []results.Run
}

func (s *memorySink) Write(_ context.Context, rec results.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) RecordRun(_ context.Context, run results.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// failingSink rejects every record.
type failingSink struct{}

func (failingSink) Write(context.Context, results.Record) error { return errors.New("disk full") }
func (failingSink) Close() error                                 { return nil }

// thresholdSegmenter treats every non-black pixel as plant.
func thresholdSegmenter(img gocv.Mat, recipe mask.Recipe) (gocv.Mat, error) {
	gray := alignment.ToGray(img)
	defer gray.Close()
	m := mask.Threshold(gray, 0, true)
	defer m.Close()
	return mask.Synthesize([]mask.Source{{Mask: m}}, recipe)
}

func emptySegmenter(img gocv.Mat, _ mask.Recipe) (gocv.Mat, error) {
	return mask.Empty(img.Rows(), img.Cols()), nil
}

// plantRect lies inside the lt1 ROI of a 1200x800 frame.
var plantRect = image.Rect(550, 300, 650, 500)

func writeVIS(t *testing.T, dir, name string) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 800, 1200, gocv.MatTypeCV8UC3)
	defer img.Close()
	gocv.Rectangle(&img, plantRect, colorutil.Green, -1)

	path := filepath.Join(dir, name)
	require.True(t, gocv.IMWrite(path, img))
	return path
}

func writeNIR(t *testing.T, dir, name string) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 0, 0, 0), 300, 400, gocv.MatTypeCV8UC1)
	defer img.Close()

	path := filepath.Join(dir, name)
	require.True(t, gocv.IMWrite(path, img))
	return path
}

type fixture struct {
	vis, nir *memorySink
	opts     Options
}

func newFixture(seg SegmenterFunc) *fixture {
	f := &fixture{vis: &memorySink{}, nir: &memorySink{}}
	f.opts = Options{
		Rig:       camera.LT1Table(),
		Segmenter: seg,
		Results:   f.vis,
		CoResults: f.nir,
		Runs:      f.vis,
	}
	return f
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(f.opts)
	require.NoError(t, err)
	return p
}

func headers(rec *results.Record) []string {
	var out []string
	for _, b := range rec.Blocks {
		out = append(out, b.Header)
	}
	return out
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "FilterROI", StateFilterROI.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateAlign.Terminal())
}

func TestNewValidates(t *testing.T) {
	f := newFixture(thresholdSegmenter)

	opts := f.opts
	opts.Rig = nil
	_, err := New(opts)
	assert.Error(t, err)

	opts = f.opts
	opts.Segmenter = nil
	_, err = New(opts)
	assert.Error(t, err)

	opts = f.opts
	opts.Results = nil
	_, err = New(opts)
	assert.Error(t, err)

	opts = f.opts
	opts.Debug = debug.ModePrint
	_, err = New(opts)
	assert.Error(t, err)
}

func TestSideViewZ300(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")
	nir := writeNIR(t, dir, "NIR_SV_90_z300_h1_g0_e65_1.png")

	f := newFixture(thresholdSegmenter)
	rep, err := f.pipeline(t).Run(context.Background(), vis)
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.Final)
	assert.False(t, rep.Partial)
	assert.Equal(t, 100*200, rep.VISArea)
	assert.Positive(t, rep.NIRArea)

	want := []string{"HEADER_SHAPES", "HEADER_BOUNDARY680", "HEADER_HISTOGRAM", "HEADER_HUE"}
	if diff := cmp.Diff(want, headers(rep.VIS)); diff != "" {
		t.Errorf("VIS blocks (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"HEADER_SHAPES", "HEADER_NIR"}, headers(rep.NIR))
	assert.Equal(t, nir, rep.NIR.Image)

	// Exactly one record per sink.
	require.Len(t, f.vis.records, 1)
	require.Len(t, f.nir.records, 1)
	assert.Equal(t, results.KindVIS, f.vis.records[0].Kind)
	assert.Equal(t, results.KindNIR, f.nir.records[0].Kind)
	assert.Equal(t, rep.RunID, f.nir.records[0].RunID)

	require.Len(t, f.vis.runs, 1)
	assert.Equal(t, "Done", f.vis.runs[0].FinalState)
	assert.Equal(t, "lt1", f.vis.runs[0].Rig)
}

func TestSideViewZ1WithoutNIR(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_0_z1_h1_g0_e82_1.png")

	f := newFixture(thresholdSegmenter)
	f.opts.CoResults = nil
	p := f.pipeline(t)
	assert.False(t, p.NIREnabled())

	rep, err := p.Run(context.Background(), vis)
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.Final)
	assert.Nil(t, rep.NIR)
	assert.Contains(t, headers(rep.VIS), "HEADER_BOUNDARY670")
	assert.Empty(t, f.nir.records)
}

func TestOtherZoomIsPartial(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z500_h1_g0_e82_1.png")
	writeNIR(t, dir, "NIR_SV_90_z500_h1_g0_e65_1.png")

	f := newFixture(thresholdSegmenter)
	rep, err := f.pipeline(t).Run(context.Background(), vis)
	require.Error(t, err)

	assert.ErrorIs(t, err, camera.ErrNoAlignment)
	var serr *StageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, StateAlign, serr.State)

	assert.Equal(t, StateFailed, rep.Final)
	assert.Equal(t, StateAlign, rep.FailedAt)
	assert.True(t, rep.Partial)

	// The fallback side-view profile has no boundary line.
	require.Len(t, f.vis.records, 1)
	assert.Equal(t, []string{"HEADER_SHAPES", "HEADER_HISTOGRAM", "HEADER_HUE"}, headers(&f.vis.records[0]))
	assert.Empty(t, f.nir.records)

	require.Len(t, f.vis.runs, 1)
	assert.True(t, f.vis.runs[0].Partial)
}

func TestMissingNIRFileIsPartial(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")

	f := newFixture(thresholdSegmenter)
	rep, err := f.pipeline(t).Run(context.Background(), vis)
	assert.ErrorIs(t, err, phimage.ErrNoNIR)
	assert.True(t, rep.Partial)
	assert.Len(t, f.vis.records, 1)
}

// backgroundOnly never assigns a pixel to the plant class.
func backgroundOnly(t *testing.T) *classify.NaiveBayes {
	t.Helper()
	background := &classify.PDF{}
	for i := range background.Hue {
		background.Hue[i] = 1.0 / 256
		background.Saturation[i] = 1.0 / 256
		background.Value[i] = 1.0 / 256
	}
	nb, err := classify.New([]string{"plant", "background"}, []*classify.PDF{{}, background})
	require.NoError(t, err)
	return nb
}

func TestEmptyMaskFailsAtCompose(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")

	seg, err := NewSegmenter(camera.LT1Table(), backgroundOnly(t), nil)
	require.NoError(t, err)

	f := newFixture(emptySegmenter)
	f.opts.Segmenter = seg
	f.opts.MinArea = 10
	rep, err := f.pipeline(t).Run(context.Background(), vis)

	assert.ErrorIs(t, err, object.ErrNoContours)
	assert.Equal(t, StateFailed, rep.Final)
	assert.Equal(t, StateCompose, rep.FailedAt)
	assert.Contains(t, err.Error(), "Compose")
	assert.Nil(t, rep.VIS)
	assert.False(t, rep.Partial)
	assert.NotEmpty(t, rep.Warnings)

	assert.Empty(t, f.vis.records)
	assert.Empty(t, f.nir.records)
}

func TestUnknownClassFailsAtSegment(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")

	f := newFixture(emptySegmenter)
	f.opts.Segmenter = &ClassifierSegmenter{Model: backgroundOnly(t), Class: "weed"}
	rep, err := f.pipeline(t).Run(context.Background(), vis)

	assert.ErrorIs(t, err, classify.ErrUnknownClass)
	assert.Equal(t, StateSegment, rep.FailedAt)
	assert.Empty(t, f.vis.records)
}

func TestNIRWriteFailureKeepsVISRows(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")
	writeNIR(t, dir, "NIR_SV_90_z300_h1_g0_e65_1.png")

	f := newFixture(thresholdSegmenter)
	f.opts.CoResults = failingSink{}
	rep, err := f.pipeline(t).Run(context.Background(), vis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write NIR rows")

	assert.Equal(t, StateFailed, rep.Final)
	assert.True(t, rep.Partial)
	require.NotNil(t, rep.VIS)
	assert.Nil(t, rep.NIR)

	require.Len(t, f.vis.records, 1)
	assert.Equal(t, rep.RunID, f.vis.records[0].RunID)
	require.Len(t, f.vis.runs, 1)
	assert.True(t, f.vis.runs[0].Partial)
}

func TestTopViewRotatesAndAnchorsNIR(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_TV_z300_h1_g0_e82_1.png")

	// Bright top half; after the 180 degree turn the plant lands on it.
	nir := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(20, 0, 0, 0), 300, 400, gocv.MatTypeCV8UC1)
	defer nir.Close()
	gocv.Rectangle(&nir, image.Rect(0, 0, 400, 150), color.RGBA{B: 200}, -1)
	require.True(t, gocv.IMWrite(filepath.Join(dir, "NIR_TV_z300_h1_g0_e65_1.png"), nir))

	f := newFixture(thresholdSegmenter)
	rep, err := f.pipeline(t).Run(context.Background(), vis)
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.Final)
	assert.Equal(t, 100*200, rep.VISArea)
	assert.Positive(t, rep.NIRArea)
	require.NotNil(t, rep.NIR)

	var nirBlock results.Block
	for _, b := range rep.NIR.Blocks {
		if b.Header == "HEADER_NIR" {
			nirBlock = b
		}
	}
	mean, ok := nirBlock.Value("nir_mean")
	require.True(t, ok)
	assert.InDelta(t, 200, mean, 0.5)

	// Bottom/right anchoring puts the plant right of and below the frame centre.
	shapes := rep.NIR.Blocks[0]
	cx, _ := shapes.Value("center-of-mass-x")
	cy, _ := shapes.Value("center-of-mass-y")
	assert.Greater(t, cx, 200.0)
	assert.Greater(t, cy, 150.0)
}

func TestUnknownCameraFailsAtLoad(t *testing.T) {
	f := newFixture(thresholdSegmenter)
	rep, err := f.pipeline(t).Run(context.Background(), filepath.Join(t.TempDir(), "VIS_XV_90_z300_1.png"))

	assert.ErrorIs(t, err, camera.ErrUnknownCamera)
	assert.Equal(t, StateLoad, rep.FailedAt)
	assert.Empty(t, f.vis.records)
}

func TestCancelledContext(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture(thresholdSegmenter)
	rep, err := f.pipeline(t).Run(ctx, vis)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateLoad, rep.FailedAt)
	assert.Empty(t, f.vis.records)
}

func TestDeterministicRows(t *testing.T) {
	dir := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")
	writeNIR(t, dir, "NIR_SV_90_z300_h1_g0_e65_1.png")

	f := newFixture(thresholdSegmenter)
	p := f.pipeline(t)
	a, err := p.Run(context.Background(), vis)
	require.NoError(t, err)
	b, err := p.Run(context.Background(), vis)
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	if diff := cmp.Diff(a.VIS.Blocks, b.VIS.Blocks); diff != "" {
		t.Errorf("VIS rows differ between runs:\n%s", diff)
	}
	if diff := cmp.Diff(a.NIR.Blocks, b.NIR.Blocks); diff != "" {
		t.Errorf("NIR rows differ between runs:\n%s", diff)
	}
}

func TestWriteImagesAndDebug(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	vis := writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png")
	writeNIR(t, dir, "NIR_SV_90_z300_h1_g0_e65_1.png")

	f := newFixture(thresholdSegmenter)
	f.opts.OutDir = out
	f.opts.WriteImages = true
	f.opts.Debug = debug.ModePrint
	rep, err := f.pipeline(t).Run(context.Background(), vis)
	require.NoError(t, err)
	assert.Empty(t, rep.Warnings)

	base := "VIS_SV_90_z300_h1_g0_e82_1"
	for _, name := range []string{
		base + "_annotated.png",
		base + "_hue_hist.png",
		base + "_nir_annotated.png",
		base + "_nir_hist.png",
		base + "_01_input.png",
		base + "_02_mask.png",
		base + "_03_roi.png",
		base + "_04_object.png",
		base + "_05_nir_mask.png",
	} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeVIS(t, dir, "VIS_SV_90_z300_h1_g0_e82_1.png"),
		writeVIS(t, dir, "VIS_SV_90_z500_h1_g0_e82_1.png"),
		filepath.Join(dir, "VIS_XV_90_z300_1.png"),
	}
	writeNIR(t, dir, "NIR_SV_90_z300_h1_g0_e65_1.png")

	f := newFixture(thresholdSegmenter)
	reports := f.pipeline(t).RunBatch(context.Background(), paths, 2)
	require.Len(t, reports, 3)

	assert.Equal(t, StateDone, reports[0].Final)
	assert.Equal(t, StateFailed, reports[1].Final)
	assert.True(t, reports[1].Partial)
	assert.Equal(t, StateFailed, reports[2].Final)
	assert.Equal(t, StateLoad, reports[2].FailedAt)

	for i, r := range reports {
		assert.Equal(t, paths[i], r.Image)
	}
	assert.Len(t, f.vis.records, 2)
	assert.Len(t, f.nir.records, 1)
	assert.Len(t, f.vis.runs, 3)
}

func TestBackgroundSegmenter(t *testing.T) {
	bg := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer bg.Close()
	fg := bg.Clone()
	defer fg.Close()
	gocv.Rectangle(&fg, image.Rect(20, 20, 50, 60), colorutil.White, -1)
	gocv.Rectangle(&fg, image.Rect(70, 70, 72, 72), colorutil.White, -1)

	table := camera.TransectTable()
	seg, err := NewSegmenter(table, nil, &bg)
	require.NoError(t, err)

	m, err := seg.Segment(fg, mask.Recipe{FillSize: 10})
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 30*40, mask.Count(m))

	_, err = NewSegmenter(table, nil, nil)
	assert.Error(t, err)
	_, err = NewSegmenter(camera.LT1Table(), nil, nil)
	assert.Error(t, err)
}
