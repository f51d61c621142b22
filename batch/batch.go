// Package batch drives multi-page documents through the per-image pipeline
// in bounded-size batches so a document with hundreds of pages never has more
// than one batch of rasterized images alive at once.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/wudi/ocrkit/document"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/raster"
)

// PageProcessor is the per-image pipeline the driver feeds rasterized pages.
// *document.Processor satisfies it.
type PageProcessor interface {
	Process(ctx context.Context, data []byte, filename string) (*document.Outcome, error)
}

// Config holds the driver tunables.
type Config struct {
	// BatchSize is how many consecutive pages are rasterized and processed
	// before their buffers are released. 0 means the default of 5.
	BatchSize int
	// MaxPages bounds total work; 0 means the whole document.
	MaxPages int
}

// DefaultConfig returns the driver defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 5}
}

// PageResult is one page's winning recognition, in document order.
type PageResult struct {
	Page        int     `json:"page"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	PageSegMode int     `json:"psm"`
}

// Result aggregates a multi-page run. Pages is always in ascending page
// order; TotalPages may be less than the document's real page count when a
// batch failed and the run stopped early.
type Result struct {
	Pages      []PageResult  `json:"pages"`
	TotalPages int           `json:"total_pages"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l observability.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// Driver applies the per-image pipeline to every page of a PDF.
type Driver struct {
	proc PageProcessor
	rast raster.Rasterizer
	cfg  Config
	log  observability.Logger
}

// NewDriver builds a batch driver over the given processor and rasterizer.
func NewDriver(proc PageProcessor, rast raster.Rasterizer, cfg Config, opts ...Option) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	d := &Driver{proc: proc, rast: rast, cfg: cfg, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process runs every page of pdf through the pipeline, batch by batch.
// Batch-level errors are logged, not raised: the run stops early and the
// pages already processed are returned as a partial result. This is distinct
// from the per-image policy, where any strategy failure fails the page.
func (d *Driver) Process(ctx context.Context, pdf []byte) (*Result, error) {
	start := time.Now()

	total, err := d.rast.PageCount(ctx, pdf)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	limit := total
	if d.cfg.MaxPages > 0 && d.cfg.MaxPages < limit {
		limit = d.cfg.MaxPages
	}

	res := &Result{}
	for first := 1; first <= limit; first += d.cfg.BatchSize {
		last := first + d.cfg.BatchSize - 1
		if last > limit {
			last = limit
		}

		pages, err := d.processBatch(ctx, pdf, first, last)
		res.Pages = append(res.Pages, pages...)
		if err != nil {
			d.log.Error("batch failed, stopping with partial results",
				observability.Int("first_page", first),
				observability.Int("last_page", last),
				observability.Int("pages_done", len(res.Pages)),
				observability.Error("err", err))
			break
		}
		if len(pages) == 0 {
			// Rasterizer produced nothing: end of document.
			break
		}
	}

	res.TotalPages = len(res.Pages)
	res.Elapsed = time.Since(start)
	d.log.Info("multi-page run complete",
		observability.Int("pages", res.TotalPages),
		observability.Duration("elapsed", res.Elapsed))
	return res, nil
}

// processBatch rasterizes one page range and processes it in page order. It
// returns the pages completed before any failure, so a mid-batch error still
// surfaces the earlier pages. Each page's image buffer is dropped as soon as
// the page is done; the batch itself is the unit of peak memory.
func (d *Driver) processBatch(ctx context.Context, pdf []byte, first, last int) ([]PageResult, error) {
	images, err := d.rast.Rasterize(ctx, pdf, first, last)
	if err != nil {
		return nil, fmt.Errorf("rasterize pages %d-%d: %w", first, last, err)
	}

	pages := make([]PageResult, 0, len(images))
	for i := range images {
		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		default:
		}
		page := first + i
		out, err := d.proc.Process(ctx, images[i], fmt.Sprintf("page-%d.png", page))
		images[i] = nil
		if err != nil {
			return pages, fmt.Errorf("page %d: %w", page, err)
		}
		pages = append(pages, PageResult{
			Page:        page,
			Text:        out.Best.Text,
			Confidence:  out.Best.Confidence,
			PageSegMode: out.Best.PageSegMode,
		})
		d.log.Debug("page processed",
			observability.Int("page", page),
			observability.Float64("confidence", out.Best.Confidence))
	}
	return pages, nil
}
