package preprocess

import "time"

// PassMetrics records what a single preprocessing pass did to an image. It is
// written once when the pass completes and never mutated afterwards.
type PassMetrics struct {
	// Pass is the 1-based pass number, set by the caller driving the passes.
	Pass int `json:"pass"`

	ContrastFactor float64 `json:"contrast_factor"`

	OriginalWidth  int     `json:"original_width"`
	OriginalHeight int     `json:"original_height"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	ScaleFactor    float64 `json:"scale_factor"`

	// NoiseLevel is the intensity standard deviation used to derive the
	// denoising kernel size.
	NoiseLevel float64 `json:"noise_level"`
	KernelSize int     `json:"kernel_size"`

	Deskewed  bool    `json:"deskewed"`
	SkewAngle float64 `json:"skew_angle"`

	Elapsed time.Duration `json:"elapsed"`
}

// Trace is the append-only log of preprocessing passes applied to one image,
// ordered and indexed by pass number.
type Trace []PassMetrics
