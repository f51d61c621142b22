package ocr

import (
	"context"
	"errors"
)

// ErrEngineUnavailable reports that the recognition engine is not installed
// or reachable. It is returned by Verify and is fatal: callers must not start
// processing documents against an engine that failed verification.
var ErrEngineUnavailable = errors.New("recognition engine unavailable")

// ConfidenceNotApplicable is the sentinel confidence engines report for
// tokens that carry no usable confidence (layout markers, empty cells).
// Callers drop such tokens before averaging.
const ConfidenceNotApplicable = -1.0

// Segmentation mode bounds. Modes outside this range are rejected by
// ValidModes. The values follow Tesseract's page segmentation modes, which
// every in-tree engine implements; other engines map them as they see fit.
const (
	MinSegMode = 0
	MaxSegMode = 13
)

// DefaultLanguage is the language used when a Config leaves it empty.
const DefaultLanguage = "eng"

// DefaultPasses is the preprocessing pass count used when a Config leaves it
// at zero and the caller did not explicitly ask for raw input.
const DefaultPasses = 2

// DefaultModes returns the segmentation modes tried when the caller supplies
// none: automatic with orientation detection, fully automatic, single uniform
// block, and sparse text.
func DefaultModes() []int {
	return []int{1, 3, 6, 12}
}

// ValidModes filters the requested segmentation modes down to the known-valid
// range, preserving order. The result may be empty.
func ValidModes(modes []int) []int {
	valid := make([]int, 0, len(modes))
	for _, m := range modes {
		if m >= MinSegMode && m <= MaxSegMode {
			valid = append(valid, m)
		}
	}
	return valid
}

// Config describes one recognition strategy: which segmentation mode the
// engine should assume, which language data to load, and how many
// preprocessing passes to run before recognition. Configs are immutable;
// one value per attempted strategy.
type Config struct {
	// PageSegMode is the engine's page segmentation mode.
	PageSegMode int
	// Language is the trained-data tag (e.g. "eng", "heb").
	Language string
	// Passes is the number of preprocessing passes applied before the engine
	// sees the image. Zero means the image is recognized as loaded.
	Passes int
}

// Region describes a rectangular area in pixel coordinates with the origin in
// the upper-left corner of the image.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Word is a single recognized token with its confidence in [0,100] (or
// ConfidenceNotApplicable) and its bounding box in image coordinates.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Bounds     Region  `json:"bounds"`
}

// Engine is the recognition provider contract: one encoded image in, word
// tokens out. Engines are assumed to wrap a single shared local resource and
// are therefore invoked strictly sequentially by the pipeline.
type Engine interface {
	Name() string
	// Verify checks that the engine is installed and reachable. It is called
	// once before first use; errors wrap ErrEngineUnavailable.
	Verify(ctx context.Context) error
	// Recognize runs the engine over PNG-encoded image bytes with the given
	// configuration and returns every token it found, unfiltered.
	Recognize(ctx context.Context, image []byte, cfg Config) ([]Word, error)
}
