// Package document orchestrates recognition strategies over single images:
// it loads raw bytes, runs one strategy per requested segmentation mode, and
// picks the winning candidate by quality score.
package document

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/preprocess"
	"github.com/wudi/ocrkit/quality"
)

// Config holds per-processor settings. Values are fixed at construction; the
// processor keeps no mutable state across calls.
type Config struct {
	// Modes are the requested segmentation modes. Invalid entries are
	// filtered out; an empty result falls back to ocr.DefaultModes.
	Modes []int
	// Language is the trained-data tag passed to the engine.
	Language string
	// Passes is the preprocessing pass count applied before each strategy.
	Passes int

	Preprocess preprocess.Config
	Quality    quality.Config
}

// DefaultConfig returns the documented defaults: modes 1/3/6/12, English,
// two preprocessing passes.
func DefaultConfig() Config {
	return Config{
		Modes:      ocr.DefaultModes(),
		Language:   ocr.DefaultLanguage,
		Passes:     ocr.DefaultPasses,
		Preprocess: preprocess.DefaultConfig(),
		Quality:    quality.DefaultConfig(),
	}
}

// Attempt summarizes one losing (or winning) strategy for observability.
type Attempt struct {
	Text        string        `json:"text"`
	Confidence  float64       `json:"confidence"`
	PageSegMode int           `json:"psm"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Outcome is the terminal value of one image's processing: the winning
// candidate plus a summary of every attempted strategy. Losers stay visible;
// they just are not the answer.
type Outcome struct {
	Best     Candidate     `json:"best"`
	Attempts []Attempt     `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor's logger.
func WithLogger(l observability.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// Processor runs the configured strategies over one image per call and
// selects the best candidate. Strategies run strictly sequentially: the
// engine is treated as a single shared local resource.
type Processor struct {
	cfg      Config
	engine   ocr.Engine
	runner   *Runner
	assessor *quality.Assessor
	log      observability.Logger

	verifyOnce sync.Once
	verifyErr  error
}

// NewProcessor builds a Processor around engine. The engine is verified
// reachable on first use; verification failure is fatal and not retried.
func NewProcessor(engine ocr.Engine, cfg Config, opts ...Option) (*Processor, error) {
	assessor, err := quality.New(cfg.Quality)
	if err != nil {
		return nil, err
	}
	p := &Processor{
		cfg:      cfg,
		engine:   engine,
		assessor: assessor,
		log:      observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.runner = NewRunner(engine, preprocess.New(cfg.Preprocess, preprocess.WithLogger(p.log)), p.log)
	return p, nil
}

// Process loads one image from raw bytes and runs every validated
// segmentation mode over it, returning the winner together with all attempt
// summaries. Any per-mode failure fails the whole call; there is no partial
// candidate list.
func (p *Processor) Process(ctx context.Context, data []byte, filename string) (*Outcome, error) {
	start := time.Now()

	p.verifyOnce.Do(func() { p.verifyErr = p.engine.Verify(ctx) })
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}

	modes := ocr.ValidModes(p.cfg.Modes)
	if len(modes) == 0 {
		modes = ocr.DefaultModes()
	}

	src, err := loadImage(data, filename)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	candidates := make([]Candidate, 0, len(modes))
	for _, mode := range modes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		cand, err := p.runner.Run(ctx, src, ocr.Config{
			PageSegMode: mode,
			Language:    p.cfg.Language,
			Passes:      p.cfg.Passes,
		})
		if err != nil {
			return nil, fmt.Errorf("segmentation mode %d: %w", mode, err)
		}
		candidates = append(candidates, cand)
	}

	inputs := make([]quality.Input, len(candidates))
	attempts := make([]Attempt, len(candidates))
	for i, c := range candidates {
		inputs[i] = quality.Input{Text: c.Text, Confidence: c.Confidence}
		attempts[i] = Attempt{
			Text:        c.Text,
			Confidence:  c.Confidence,
			PageSegMode: c.PageSegMode,
			Elapsed:     c.Elapsed,
		}
	}
	best := p.assessor.Best(inputs)

	elapsed := time.Since(start)
	p.log.Info("document processed",
		observability.String("file", filename),
		observability.Int("winning_psm", candidates[best].PageSegMode),
		observability.Float64("confidence", candidates[best].Confidence),
		observability.Duration("elapsed", elapsed))

	return &Outcome{
		Best:     candidates[best],
		Attempts: attempts,
		Elapsed:  elapsed,
	}, nil
}
