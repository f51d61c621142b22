package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wudi/ocrkit/batch"
	"github.com/wudi/ocrkit/document"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr/tesseract"
	"github.com/wudi/ocrkit/raster"
)

type options struct {
	inputPath  string
	configPath string
	language   string
	modes      []int
	passes     int
	batchSize  int
	maxPages   int
	dpi        int
	verbose    bool
}

// fileConfig mirrors the flag surface for users who prefer a config file.
// Flags given on the command line win over file values.
type fileConfig struct {
	Language  string `yaml:"language"`
	Modes     []int  `yaml:"modes"`
	Passes    *int   `yaml:"passes"`
	BatchSize int    `yaml:"batch_size"`
	MaxPages  int    `yaml:"max_pages"`
	DPI       int    `yaml:"dpi"`
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ocrkit: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "ocrkit: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("ocrkit", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ocrkit [flags] <image-or-pdf>\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "YAML config file; flags override its values")
	lang := fs.String("lang", "", "Tesseract language code (default eng)")
	modes := fs.String("modes", "", "Comma-separated page segmentation modes to try")
	passes := fs.Int("passes", -1, "Preprocessing passes per image (default 2)")
	batchSize := fs.Int("batch", 0, "Pages rasterized per batch for PDFs (default 5)")
	maxPages := fs.Int("max-pages", 0, "Stop after this many PDF pages (0 = all)")
	dpi := fs.Int("dpi", 0, "Rasterization resolution for PDFs (default 200)")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, fmt.Errorf("missing input path")
	}
	opts.inputPath = fs.Arg(0)
	opts.configPath = *configPath
	opts.passes = -1
	opts.verbose = *verbose

	if opts.configPath != "" {
		fc, err := loadFileConfig(opts.configPath)
		if err != nil {
			return options{}, err
		}
		opts.language = fc.Language
		opts.modes = fc.Modes
		if fc.Passes != nil {
			opts.passes = *fc.Passes
		}
		opts.batchSize = fc.BatchSize
		opts.maxPages = fc.MaxPages
		opts.dpi = fc.DPI
	}

	if *lang != "" {
		opts.language = *lang
	}
	if *modes != "" {
		parsed, err := parseModes(*modes)
		if err != nil {
			return options{}, err
		}
		opts.modes = parsed
	}
	if *passes >= 0 {
		opts.passes = *passes
	}
	if *batchSize > 0 {
		opts.batchSize = *batchSize
	}
	if *maxPages > 0 {
		opts.maxPages = *maxPages
	}
	if *dpi > 0 {
		opts.dpi = *dpi
	}
	return opts, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return fc, nil
}

func parseModes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	modes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid segmentation mode %q", p)
		}
		modes = append(modes, n)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no segmentation modes in %q", s)
	}
	return modes, nil
}

func run(opts options) error {
	log, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}

	cfg := document.DefaultConfig()
	if opts.language != "" {
		cfg.Language = opts.language
	}
	if len(opts.modes) > 0 {
		cfg.Modes = opts.modes
	}
	if opts.passes >= 0 {
		cfg.Passes = opts.passes
	}

	engine := tesseract.New()
	proc, err := document.NewProcessor(engine, cfg, document.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build processor: %w", err)
	}

	data, err := os.ReadFile(opts.inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	ctx := context.Background()
	var result interface{}
	if strings.EqualFold(filepath.Ext(opts.inputPath), ".pdf") {
		result, err = runPDF(ctx, proc, data, opts, log)
	} else {
		result, err = proc.Process(ctx, data, filepath.Base(opts.inputPath))
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Printf("%s\n", out)
	return nil
}

func runPDF(ctx context.Context, proc *document.Processor, data []byte, opts options, log observability.Logger) (*batch.Result, error) {
	rastCfg := raster.Config{DPI: opts.dpi}
	driver := batch.NewDriver(proc, raster.NewPoppler(rastCfg), batch.Config{
		BatchSize: opts.batchSize,
		MaxPages:  opts.maxPages,
	}, batch.WithLogger(log))
	return driver.Process(ctx, data)
}

func newLogger(verbose bool) (observability.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.OutputPaths = []string{"stderr"}
	zl, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return observability.NewZap(zl), nil
}
