package pipeline

import (
	"fmt"
	"time"

	"phenotrace/internal/alignment"
	"phenotrace/internal/analysis"
	"phenotrace/internal/debug"
	phimage "phenotrace/internal/image"
	"phenotrace/internal/object"
	"phenotrace/internal/results"
	"phenotrace/internal/roi"

	"gocv.io/x/gocv"
)

func (r *run) load() error {
	frame, err := phimage.Load(r.report.Image)
	if err != nil {
		return err
	}
	r.frame = frame

	if frame.Mat.Channels() != 3 {
		bgr := toBGR(frame.Mat)
		frame.Mat.Close()
		frame.Mat = bgr
	}

	profile, err := r.p.opts.Rig.Lookup(frame.Meta.Camera, frame.Meta.Zoom)
	if err != nil {
		return err
	}
	r.profile = profile
	r.fields["camera"] = frame.Meta.Camera.String()
	r.fields["zoom"] = frame.Meta.Zoom

	r.trace("input", frame.Mat)
	return nil
}

func (r *run) segment() error {
	m, err := r.p.opts.Segmenter.Segment(r.frame.Mat, r.profile.Mask)
	if err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	r.candidate = &m
	r.trace("mask", m)
	return nil
}

func (r *run) filterROI() error {
	cols, rows := r.frame.Width(), r.frame.Height()

	region, err := roi.Define(cols, rows, r.profile.ROI)
	if err != nil {
		return err
	}
	r.region = region

	set, err := object.Find(*r.candidate)
	if err != nil {
		return err
	}
	r.dropCandidate()

	res, err := roi.Filter(set, region, r.p.opts.Rig.ROIMode, cols, rows)
	if err != nil {
		return err
	}
	r.filtered = res
	r.trace("roi", res.Mask)

	if res.Area < r.p.opts.MinArea {
		r.warn("kept ROI area below minimum", map[string]interface{}{
			"area":     res.Area,
			"min_area": r.p.opts.MinArea,
		})
	}
	return nil
}

func (r *run) compose() error {
	obj, err := object.Compose(r.filtered.Kept, r.frame.Width(), r.frame.Height())
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	r.object = obj
	r.trace("object", obj.Mask)
	return nil
}

func (r *run) analyzeVIS() error {
	shape, err := analysis.Shape(r.object)
	if err != nil {
		return err
	}
	blocks := []results.Block{shape}

	line, hasLine := r.profile.Boundary()
	if hasLine {
		b, err := analysis.Boundary(r.object, line)
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
	}

	hist, hue, hists, err := analysis.Color(r.frame.Mat, r.object.Mask, r.p.opts.Rig.ColorBins)
	if err != nil {
		return err
	}
	blocks = append(blocks, hist, hue)

	r.report.VIS = &results.Record{
		RunID:  r.report.RunID,
		Image:  r.report.Image,
		Kind:   results.KindVIS,
		Time:   time.Now(),
		Blocks: blocks,
	}
	r.report.VISArea = r.object.Area()

	if r.p.opts.WriteImages {
		ov := debug.Overlay{Object: r.object, ROI: r.region}
		if hasLine {
			ov.Boundary = &line
		}
		r.writeImage(r.frame.Mat, ov, "_annotated.png")
		r.writePlot("_hue_hist.png", "Hue", hists["hue"])
	}
	return nil
}

func (r *run) align() error {
	// A missing calibration is reported before looking for the NIR file.
	if _, err := r.profile.Alignment(); err != nil {
		return err
	}

	nirPath, err := phimage.ResolveNIR(r.report.Image)
	if err != nil {
		return err
	}
	r.nirPath = nirPath

	nir, err := phimage.Decode(nirPath)
	if err != nil {
		return err
	}
	defer nir.Close()

	res, err := alignment.Align(r.object.Mask, nir, r.profile)
	if err != nil {
		return err
	}
	r.aligned = res
	r.trace("nir_mask", res.Object.Mask)
	return nil
}

func (r *run) analyzeNIR() error {
	shape, err := analysis.Shape(r.aligned.Object)
	if err != nil {
		return fmt.Errorf("nir shape: %w", err)
	}
	intensity, hist, err := analysis.NIRIntensity(r.aligned.NIR, r.aligned.Object.Mask, r.p.opts.Rig.ColorBins)
	if err != nil {
		return err
	}

	r.report.NIR = &results.Record{
		RunID:  r.report.RunID,
		Image:  r.nirPath,
		Kind:   results.KindNIR,
		Time:   time.Now(),
		Blocks: []results.Block{shape, intensity},
	}
	r.report.NIRArea = r.aligned.Object.Area()

	if r.p.opts.WriteImages {
		r.writeImage(r.aligned.NIR, debug.Overlay{Object: r.aligned.Object}, "_nir_annotated.png")
		r.writePlot("_nir_hist.png", "NIR", hist)
	}
	return nil
}

func (r *run) dropCandidate() {
	if r.candidate != nil {
		r.candidate.Close()
		r.candidate = nil
	}
}

func (r *run) writeImage(img gocv.Mat, ov debug.Overlay, suffix string) {
	out := debug.Annotate(img, ov)
	defer out.Close()
	if err := debug.Write(r.outPath(suffix), out); err != nil {
		r.warn("output image not written", map[string]interface{}{"error": err.Error()})
	}
}

func (r *run) writePlot(suffix, title string, counts []int) {
	if err := analysis.PlotHistogram(r.outPath(suffix), title, counts); err != nil {
		r.warn("histogram plot not written", map[string]interface{}{"error": err.Error()})
	}
}

func toBGR(m gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	if m.Channels() == 4 {
		gocv.CvtColor(m, &dst, gocv.ColorBGRAToBGR)
	} else {
		gocv.CvtColor(m, &dst, gocv.ColorGrayToBGR)
	}
	return dst
}
