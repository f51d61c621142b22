package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Config selects the poppler binaries and render resolution.
type Config struct {
	Pdftoppm string // binary name or absolute path; empty means "pdftoppm"
	Pdfinfo  string // binary name or absolute path; empty means "pdfinfo"
	DPI      int    // render resolution; 0 means 200
}

// Runner executes an external command in dir and returns its stdout.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Option configures a Poppler rasterizer.
type Option func(*Poppler)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r Runner) Option {
	return func(p *Poppler) { p.runner = r }
}

// Poppler rasterizes PDFs by shelling out to pdftoppm, the same renderer the
// usual Python pdf2image stack wraps.
type Poppler struct {
	cfg    Config
	runner Runner
}

// NewPoppler builds a poppler-backed rasterizer.
func NewPoppler(cfg Config, opts ...Option) *Poppler {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	p := &Poppler{cfg: cfg, runner: execRunner{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PageCount writes the document to a scratch file and asks pdfinfo.
func (p *Poppler) PageCount(ctx context.Context, pdf []byte) (int, error) {
	dir, path, err := scratchPDF(pdf)
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	out, err := p.runner.Run(ctx, dir, p.cfg.Pdfinfo, path)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: %w", err)
	}
	n, err := parsePageCount(out)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: %w", err)
	}
	return n, nil
}

// Rasterize renders pages [first, last] to PNG at the configured DPI.
func (p *Poppler) Rasterize(ctx context.Context, pdf []byte, first, last int) ([][]byte, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("invalid page range %d-%d", first, last)
	}
	dir, path, err := scratchPDF(pdf)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	_, runErr := p.runner.Run(ctx, dir, p.cfg.Pdftoppm,
		"-png",
		"-r", strconv.Itoa(p.cfg.DPI),
		"-f", strconv.Itoa(first),
		"-l", strconv.Itoa(last),
		path, filepath.Join(dir, "page"))

	images, err := collectPages(dir)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		// pdftoppm reports ranges past the document end as an error; the
		// contract is an empty result. A missing binary is still fatal.
		if runErr != nil && errors.Is(runErr, exec.ErrNotFound) {
			return nil, fmt.Errorf("pdftoppm: %w", runErr)
		}
		return nil, nil
	}
	if runErr != nil {
		return nil, fmt.Errorf("pdftoppm: %w", runErr)
	}
	return images, nil
}

func scratchPDF(pdf []byte) (dir, path string, err error) {
	dir, err = os.MkdirTemp("", "ocrkit-raster-")
	if err != nil {
		return "", "", fmt.Errorf("scratch dir: %w", err)
	}
	path = filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("write scratch pdf: %w", err)
	}
	return dir, path, nil
}

func parsePageCount(out []byte) (int, error) {
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("malformed page count %q", line)
		}
		return n, nil
	}
	return 0, errors.New("no page count in output")
}

// collectPages reads the pdftoppm outputs (page-<n>.png) in page order.
func collectPages(dir string) ([][]byte, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool {
		return pageNumber(paths[i]) < pageNumber(paths[j])
	})
	images := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		images = append(images, data)
	}
	return images, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndexByte(base, '-')
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
