// Command phenotrace segments plant images, measures their traits and maps
// the plant into the matching NIR image.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"phenotrace/internal/camera"
	"phenotrace/internal/classify"
	"phenotrace/internal/debug"
	phimage "phenotrace/internal/image"
	"phenotrace/internal/logger"
	"phenotrace/internal/pipeline"
	"phenotrace/internal/report"
	"phenotrace/internal/results"
	"phenotrace/internal/version"

	"github.com/akamensky/argparse"
	"gocv.io/x/gocv"
)

func main() {
	parser := argparse.NewParser("phenotrace", "Plant segmentation, trait analysis and VIS/NIR registration")
	imagePath := parser.String("i", "image", &argparse.Options{Help: "VIS image, or a directory of VIS images", Required: true})
	outDir := parser.String("o", "outdir", &argparse.Options{Help: "Output directory for images", Default: "."})
	resultPath := parser.String("r", "result", &argparse.Options{Help: "VIS result file (appended)", Required: true})
	coResultPath := parser.String("c", "coresult", &argparse.Options{Help: "NIR result file (appended); enables NIR analysis", Default: ""})
	pdfPath := parser.String("p", "pdfs", &argparse.Options{Help: "Naive Bayes PDF file for classifier rigs", Default: ""})
	bgPath := parser.String("b", "bgimg", &argparse.Options{Help: "Empty-scene image for background rigs", Default: ""})
	writeImg := parser.Flag("w", "writeimg", &argparse.Options{Help: "Write annotated images and histogram plots", Default: false})
	debugMode := parser.String("D", "debug", &argparse.Options{Help: "Debug mode: none or print", Default: "none"})
	rigName := parser.String("", "rig", &argparse.Options{Help: "Camera rig table: " + strings.Join(camera.ListTables(), ", "), Default: "lt1"})
	profilesPath := parser.String("", "profiles", &argparse.Options{Help: "JSON rig table replacing --rig", Default: ""})
	dbPath := parser.String("", "db", &argparse.Options{Help: "SQLite database for measurements and runs", Default: ""})
	jobs := parser.Int("j", "jobs", &argparse.Options{Help: "Images processed concurrently (0 = all CPUs)", Default: 0})
	timeout := parser.String("", "timeout", &argparse.Options{Help: "Per-image time limit, e.g. 2m (0 = none)", Default: "0"})
	minArea := parser.Int("", "min-area", &argparse.Options{Help: "Warn when the kept ROI area is below this many pixels", Default: 0})
	reportPath := parser.String("", "report", &argparse.Options{Help: "Write an HTML batch summary to this file", Default: ""})
	logLevel := parser.String("", "log-level", &argparse.Options{Help: "Log level: debug, info, warn, error", Default: "info"})
	parser.Flag("", "version", &argparse.Options{Help: "Print version and exit", Default: false})

	// --version must work without the required flags.
	for _, a := range os.Args[1:] {
		if a == "--version" {
			fmt.Println(version.String())
			return
		}
	}

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	level, err := logger.ParseLevel(*logLevel)
	check(err)
	log := logger.NewConsoleLogger(level)
	log.Info("Main", "starting", map[string]interface{}{"version": version.String()})

	cfg := config{
		imagePath:    *imagePath,
		outDir:       *outDir,
		resultPath:   *resultPath,
		coResultPath: *coResultPath,
		pdfPath:      *pdfPath,
		bgPath:       *bgPath,
		writeImg:     *writeImg,
		debugMode:    *debugMode,
		rigName:      *rigName,
		profilesPath: *profilesPath,
		dbPath:       *dbPath,
		jobs:         *jobs,
		timeout:      *timeout,
		minArea:      *minArea,
		reportPath:   *reportPath,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed, err := run(ctx, cfg, log)
	if err != nil {
		log.Error("Main", err, nil)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(2)
	}
}

type config struct {
	imagePath, outDir, resultPath, coResultPath string
	pdfPath, bgPath                             string
	writeImg                                    bool
	debugMode                                   string
	rigName, profilesPath, dbPath               string
	jobs                                        int
	timeout                                     string
	minArea                                     int
	reportPath                                  string
}

// run processes every input image and returns how many failed.
func run(ctx context.Context, cfg config, log *logger.ZerologAdapter) (int, error) {
	rig, err := loadRig(cfg)
	if err != nil {
		return 0, err
	}

	mode, err := debug.ParseMode(cfg.debugMode)
	if err != nil {
		return 0, err
	}
	limit, err := time.ParseDuration(cfg.timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid --timeout: %w", err)
	}
	if cfg.writeImg || mode == debug.ModePrint {
		if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
			return 0, fmt.Errorf("create output directory: %w", err)
		}
	}

	seg, closeSeg, err := buildSegmenter(rig, cfg)
	if err != nil {
		return 0, err
	}
	defer closeSeg()

	var closers []results.Sink
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warning("Main", "close result store", map[string]interface{}{"error": err.Error()})
			}
		}
	}()

	visTSV, err := results.OpenTSV(cfg.resultPath)
	if err != nil {
		return 0, err
	}
	closers = append(closers, visTSV)
	visSink := results.MultiSink{visTSV}

	var nirSink results.Sink
	if cfg.coResultPath != "" {
		nirTSV, err := results.OpenTSV(cfg.coResultPath)
		if err != nil {
			return 0, err
		}
		closers = append(closers, nirTSV)
		nirSink = nirTSV
	}

	opts := pipeline.Options{
		Rig:         rig,
		Segmenter:   seg,
		Results:     visSink,
		OutDir:      cfg.outDir,
		WriteImages: cfg.writeImg,
		Debug:       mode,
		MinArea:     cfg.minArea,
		Timeout:     limit,
		Logger:      log.With(map[string]interface{}{"version": version.Version}),
	}

	if cfg.dbPath != "" {
		db, err := results.OpenSQLite(cfg.dbPath)
		if err != nil {
			return 0, err
		}
		closers = append(closers, db)
		opts.Results = append(visSink, db)
		if nirSink != nil {
			nirSink = results.MultiSink{nirSink, db}
		}
		opts.Runs = db
	}
	opts.CoResults = nirSink

	p, err := pipeline.New(opts)
	if err != nil {
		return 0, err
	}

	paths, err := inputs(cfg.imagePath)
	if err != nil {
		return 0, err
	}
	log.Info("Main", "processing", map[string]interface{}{
		"images": len(paths),
		"rig":    rig.Name,
		"nir":    p.NIREnabled(),
	})

	reports := p.RunBatch(ctx, paths, cfg.jobs)

	summary := report.NewSummary("phenotrace " + rig.Name)
	failed := 0
	for _, r := range reports {
		entry := report.Entry{
			Image:   filepath.Base(r.Image),
			Final:   r.Final.String(),
			VISArea: r.VISArea,
			NIRArea: r.NIRArea,
			Partial: r.Partial,
		}
		if r.Err != nil {
			failed++
			entry.Err = r.Err.Error()
			fmt.Fprintf(os.Stderr, "FAILED %s\n", r.Err)
		}
		summary.Add(entry)
	}

	if cfg.reportPath != "" {
		if err := summary.WriteFile(cfg.reportPath); err != nil {
			return failed, err
		}
		log.Info("Main", "report written", map[string]interface{}{"path": cfg.reportPath})
	}
	return failed, nil
}

func loadRig(cfg config) (*camera.Table, error) {
	if cfg.profilesPath != "" {
		return camera.LoadFromFile(cfg.profilesPath)
	}
	return camera.GetTable(cfg.rigName)
}

// buildSegmenter loads the classifier model or background image the rig
// needs. The returned func releases the background image.
func buildSegmenter(rig *camera.Table, cfg config) (pipeline.Segmenter, func(), error) {
	var model *classify.NaiveBayes
	if cfg.pdfPath != "" {
		m, err := classify.Load(cfg.pdfPath)
		if err != nil {
			return nil, nil, err
		}
		model = m
	}

	closeFn := func() {}
	var bg *gocv.Mat
	if cfg.bgPath != "" {
		frame, err := phimage.Decode(cfg.bgPath)
		if err != nil {
			return nil, nil, err
		}
		if frame.Channels() != 3 {
			bgr := gocv.NewMat()
			gocv.CvtColor(frame, &bgr, gocv.ColorGrayToBGR)
			frame.Close()
			frame = bgr
		}
		bg = &frame
		closeFn = func() { frame.Close() }
	}

	seg, err := pipeline.NewSegmenter(rig, model, bg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return seg, closeFn, nil
}

func inputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	paths, err := phimage.ListVIS(path)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no VIS images in %s", path)
	}
	return paths, nil
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
