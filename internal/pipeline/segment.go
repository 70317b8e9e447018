package pipeline

import (
	"fmt"

	"phenotrace/internal/camera"
	"phenotrace/internal/classify"
	"phenotrace/internal/mask"

	"gocv.io/x/gocv"
)

// Segmenter turns a BGR VIS image into a cleaned candidate plant mask.
type Segmenter interface {
	Segment(img gocv.Mat, recipe mask.Recipe) (gocv.Mat, error)
}

// SegmenterFunc adapts a function to Segmenter.
type SegmenterFunc func(img gocv.Mat, recipe mask.Recipe) (gocv.Mat, error)

func (f SegmenterFunc) Segment(img gocv.Mat, recipe mask.Recipe) (gocv.Mat, error) {
	return f(img, recipe)
}

// ClassifierSegmenter keeps the pixels a naive Bayes model assigns to Class.
type ClassifierSegmenter struct {
	Model *classify.NaiveBayes
	Class string
}

func (s *ClassifierSegmenter) Segment(img gocv.Mat, recipe mask.Recipe) (gocv.Mat, error) {
	masks, err := s.Model.Classify(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer func() {
		for _, m := range masks {
			m.Close()
		}
	}()

	m, ok := masks[s.Class]
	if !ok {
		return gocv.NewMat(), fmt.Errorf("%w: %q (have %v)", classify.ErrUnknownClass, s.Class, s.Model.Classes)
	}
	return mask.Synthesize([]mask.Source{{Mask: m}}, recipe)
}

// BackgroundSegmenter subtracts an empty-scene image once per recipe pass and
// merges the passes.
type BackgroundSegmenter struct {
	Background gocv.Mat
}

func (s *BackgroundSegmenter) Segment(img gocv.Mat, recipe mask.Recipe) (gocv.Mat, error) {
	passes := recipe.Passes
	if len(passes) == 0 {
		passes = []mask.Pass{{Method: mask.MethodMOG}}
	}

	sources := make([]mask.Source, 0, len(passes))
	defer func() {
		for _, src := range sources {
			src.Mask.Close()
		}
	}()
	for _, pass := range passes {
		fg, err := mask.BackgroundSubtract(img, s.Background, pass.Method)
		if err != nil {
			return gocv.NewMat(), err
		}
		sources = append(sources, mask.Source{Mask: fg, Exclusions: pass.Exclusions})
	}
	return mask.Synthesize(sources, recipe)
}

// NewSegmenter picks the segmenter a rig table asks for. model is required
// for classifier rigs, background for background rigs.
func NewSegmenter(table *camera.Table, model *classify.NaiveBayes, background *gocv.Mat) (Segmenter, error) {
	switch table.Segmentation {
	case camera.SegmentClassifier:
		if model == nil {
			return nil, fmt.Errorf("rig %s: classifier segmentation needs a PDF file", table.Name)
		}
		return &ClassifierSegmenter{Model: model, Class: table.ClassifierClass}, nil
	case camera.SegmentBackground:
		if background == nil || background.Empty() {
			return nil, fmt.Errorf("rig %s: background segmentation needs a background image", table.Name)
		}
		return &BackgroundSegmenter{Background: *background}, nil
	}
	return nil, fmt.Errorf("rig %s: unknown segmentation %q", table.Name, table.Segmentation)
}
