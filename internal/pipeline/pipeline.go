// Package pipeline runs one VIS image, and its NIR partner, through
// segmentation, object composition, alignment and trait analysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"phenotrace/internal/alignment"
	"phenotrace/internal/camera"
	"phenotrace/internal/debug"
	phimage "phenotrace/internal/image"
	"phenotrace/internal/logger"
	"phenotrace/internal/object"
	"phenotrace/internal/results"
	"phenotrace/internal/roi"
	"phenotrace/pkg/geometry"

	"gocv.io/x/gocv"
)

const component = "Pipeline"

// Options configures a Pipeline. Rig, Segmenter and Results are required.
type Options struct {
	Rig       *camera.Table
	Segmenter Segmenter

	Results   results.Sink        // VIS rows
	CoResults results.Sink        // NIR rows; nil disables NIR analysis
	Runs      results.RunRecorder // optional per-image run summaries

	OutDir      string
	WriteImages bool
	Debug       debug.Mode

	MinArea int           // kept ROI area below this is flagged
	Timeout time.Duration // bounds a whole-image run; 0 means none

	Logger logger.Logger
}

// Report describes how one image run ended.
type Report struct {
	RunID    string
	Image    string
	Final    State
	FailedAt State // meaningful only when Final is StateFailed
	Partial  bool  // VIS rows written although the run failed later
	Warnings []string
	VIS      *results.Record
	NIR      *results.Record
	VISArea  int
	NIRArea  int
	Err      error
}

// Pipeline runs images against one rig. It is safe for concurrent use.
type Pipeline struct {
	opts Options
	log  logger.Logger
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Rig == nil {
		return nil, fmt.Errorf("pipeline: rig table is required")
	}
	if err := opts.Rig.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if opts.Segmenter == nil {
		return nil, fmt.Errorf("pipeline: segmenter is required")
	}
	if opts.Results == nil {
		return nil, fmt.Errorf("pipeline: result sink is required")
	}
	if opts.Debug == debug.ModePrint && opts.OutDir == "" {
		return nil, fmt.Errorf("pipeline: debug print needs an output directory")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop{}
	}
	return &Pipeline{opts: opts, log: log}, nil
}

// NIREnabled reports whether runs continue past AnalyzeVIS.
func (p *Pipeline) NIREnabled() bool {
	return p.opts.CoResults != nil && p.opts.Rig.HasNIR()
}

// Run processes one VIS image. The returned error is the run's *StageError,
// also stored in Report.Err; the report is never nil.
func (p *Pipeline) Run(ctx context.Context, path string) (*Report, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	tracer := debug.NewTracer(p.opts.Debug, p.opts.OutDir, path)
	r := &run{
		p:      p,
		ctx:    ctx,
		tracer: tracer,
		report: &Report{RunID: tracer.RunID.String(), Image: path, Final: StateLoad},
		fields: map[string]interface{}{
			"image":  filepath.Base(path),
			"run_id": tracer.RunID.String(),
			"rig":    p.opts.Rig.Name,
		},
	}
	defer r.close()

	start := time.Now()
	state := StateLoad
	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			return r.fail(state, err)
		}

		next, err := r.step(state)
		if err != nil {
			return r.fail(state, err)
		}
		p.log.Debug(component, "transition", r.with(map[string]interface{}{
			"from": state.String(),
			"to":   next.String(),
		}))
		state = next
	}

	if err := r.write(); err != nil {
		return r.fail(StateDone, err)
	}
	r.report.Final = StateDone
	r.record()
	p.log.Info(component, "image done", r.with(map[string]interface{}{
		"vis_area": r.report.VISArea,
		"nir_area": r.report.NIRArea,
		"steps":    tracer.Steps(),
		"elapsed":  time.Since(start),
	}))
	return r.report, nil
}

// run carries the intermediate products of one image.
type run struct {
	p      *Pipeline
	ctx    context.Context
	tracer *debug.Tracer
	report *Report
	fields map[string]interface{}

	frame     *phimage.Frame
	profile   camera.Profile
	region    geometry.RectInt
	candidate *gocv.Mat
	filtered  *roi.Result
	object    *object.PlantObject

	nirPath string
	aligned *alignment.Result

	visWritten bool
}

func (r *run) close() {
	if r.frame != nil {
		r.frame.Close()
	}
	r.dropCandidate()
	if r.filtered != nil {
		r.filtered.Close()
	}
	r.object.Close()
	if r.aligned != nil {
		r.aligned.Close()
	}
}

func (r *run) with(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(r.fields)+len(extra))
	for k, v := range r.fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (r *run) step(state State) (State, error) {
	switch state {
	case StateLoad:
		return StateSegment, r.load()
	case StateSegment:
		return StateFilterROI, r.segment()
	case StateFilterROI:
		return StateCompose, r.filterROI()
	case StateCompose:
		return StateAnalyzeVIS, r.compose()
	case StateAnalyzeVIS:
		if err := r.analyzeVIS(); err != nil {
			return StateFailed, err
		}
		if !r.p.NIREnabled() {
			return StateDone, nil
		}
		return StateAlign, nil
	case StateAlign:
		return StateAnalyzeNIR, r.align()
	case StateAnalyzeNIR:
		return StateDone, r.analyzeNIR()
	}
	return StateFailed, fmt.Errorf("no transition from %s", state)
}

// fail moves the run to Failed. A configuration gap on the NIR side still
// writes the VIS rows; every other failure writes nothing. VIS rows already
// in the sink when a later write fails leave the run partial.
func (r *run) fail(state State, err error) (*Report, error) {
	r.report.Final = StateFailed
	r.report.FailedAt = state
	r.report.NIR = nil

	switch {
	case r.visWritten:
		r.report.Partial = true
	case r.report.VIS != nil && partial(state, err):
		if werr := r.p.opts.Results.Write(r.ctx, *r.report.VIS); werr != nil {
			err = errors.Join(err, fmt.Errorf("write VIS rows: %w", werr))
		} else {
			r.report.Partial = true
		}
	}
	if !r.report.Partial {
		r.report.VIS = nil
	}

	serr := &StageError{State: state, Image: r.report.Image, Err: err}
	r.report.Err = serr
	r.record()
	r.p.log.Error(component, serr, r.with(map[string]interface{}{
		"state":   state.String(),
		"partial": r.report.Partial,
	}))
	return r.report, serr
}

func partial(state State, err error) bool {
	if state != StateAlign {
		return false
	}
	return errors.Is(err, camera.ErrNoAlignment) || errors.Is(err, phimage.ErrNoNIR)
}

func (r *run) record() {
	if r.p.opts.Runs == nil {
		return
	}
	run := results.Run{
		RunID:      r.report.RunID,
		Image:      r.report.Image,
		Rig:        r.p.opts.Rig.Name,
		FinalState: r.report.Final.String(),
		Partial:    r.report.Partial,
		FinishedAt: time.Now(),
	}
	if r.report.Err != nil {
		run.Err = r.report.Err.Error()
	}
	// A detached context so that a timed-out run is still recorded.
	if err := r.p.opts.Runs.RecordRun(context.Background(), run); err != nil {
		r.p.log.Warning(component, "failed to record run", r.with(map[string]interface{}{"error": err.Error()}))
	}
}

// write emits all rows once the machine has reached Done.
func (r *run) write() error {
	if err := r.p.opts.Results.Write(r.ctx, *r.report.VIS); err != nil {
		return fmt.Errorf("write VIS rows: %w", err)
	}
	r.visWritten = true
	if r.report.NIR != nil {
		if err := r.p.opts.CoResults.Write(r.ctx, *r.report.NIR); err != nil {
			return fmt.Errorf("write NIR rows: %w", err)
		}
	}
	return nil
}

func (r *run) warn(msg string, fields map[string]interface{}) {
	r.report.Warnings = append(r.report.Warnings, msg)
	r.p.log.Warning(component, msg, r.with(fields))
}

func (r *run) trace(name string, m gocv.Mat) {
	if _, err := r.tracer.Step(name, m); err != nil {
		r.warn("debug image not written", map[string]interface{}{"step": name, "error": err.Error()})
	}
}

func (r *run) outPath(suffix string) string {
	base := filepath.Base(r.report.Image)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(r.p.opts.OutDir, base+suffix)
}
