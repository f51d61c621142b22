package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/preprocess"
)

// Candidate is one recognition strategy's output for a given image. It is
// created once per strategy execution and never mutated by the pipeline; the
// caller that receives it owns it.
type Candidate struct {
	Text string `json:"text"`
	// Confidence is the arithmetic mean of the retained word confidences in
	// [0,100]; 0 when no words survive filtering.
	Confidence  float64          `json:"confidence"`
	PageSegMode int              `json:"psm"`
	Trace       preprocess.Trace `json:"preprocessing,omitempty"`
	Elapsed     time.Duration    `json:"elapsed"`
	// Page is set by multi-page drivers; zero for single images.
	Page int `json:"page,omitempty"`
}

// Runner executes one recognition strategy: a number of preprocessing passes
// followed by a single engine invocation.
type Runner struct {
	engine ocr.Engine
	pre    *preprocess.Preprocessor
	log    observability.Logger
}

// NewRunner builds a strategy runner over the given engine and preprocessor.
func NewRunner(engine ocr.Engine, pre *preprocess.Preprocessor, log observability.Logger) *Runner {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Runner{engine: engine, pre: pre, log: log}
}

// Run executes cfg against a private copy of src; src itself is never
// mutated. The preprocessing passes chain on each other's output, and
// intermediate buffers are released as soon as the next stage owns them.
func (r *Runner) Run(ctx context.Context, src gocv.Mat, cfg ocr.Config) (Candidate, error) {
	start := time.Now()

	work := src.Clone()
	var trace preprocess.Trace
	for i := 0; i < cfg.Passes; i++ {
		next, metrics, err := r.pre.Run(work)
		work.Close()
		if err != nil {
			return Candidate{}, fmt.Errorf("preprocessing pass %d: %w", i+1, err)
		}
		metrics.Pass = i + 1
		trace = append(trace, metrics)
		work = next
	}

	encoded, err := encodePNG(work)
	work.Close()
	if err != nil {
		return Candidate{}, err
	}

	r.log.Debug("running recognition strategy",
		observability.Int("psm", cfg.PageSegMode),
		observability.String("language", cfg.Language),
		observability.Int("passes", cfg.Passes))

	words, err := r.engine.Recognize(ctx, encoded, cfg)
	if err != nil {
		return Candidate{}, fmt.Errorf("recognize: %w", err)
	}

	texts, mean := filterWords(words)
	return Candidate{
		Text:        strings.Join(texts, " "),
		Confidence:  mean,
		PageSegMode: cfg.PageSegMode,
		Trace:       trace,
		Elapsed:     time.Since(start),
	}, nil
}

// filterWords drops tokens whose trimmed text is empty or whose confidence is
// the engine's "not applicable" sentinel, and returns the survivors with
// their mean confidence (0 when none survive).
func filterWords(words []ocr.Word) ([]string, float64) {
	texts := make([]string, 0, len(words))
	var sum float64
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" || w.Confidence < 0 {
			continue
		}
		texts = append(texts, text)
		sum += w.Confidence
	}
	if len(texts) == 0 {
		return nil, 0
	}
	return texts, sum / float64(len(texts))
}

func encodePNG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
