// Package preprocess normalizes scanned images before recognition. One pass
// runs a fixed sequence of transforms (grayscale, dynamic contrast stretch,
// resize, adaptive threshold, adaptive denoise, deskew, histogram
// equalization) and records what it did in a PassMetrics entry. Passes can be
// chained: each operates on the previous pass's output.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/wudi/ocrkit/observability"
)

// ErrPrimitive reports that an image primitive failed. It aborts the whole
// pass and is fatal for the current image; callers do not retry.
var ErrPrimitive = errors.New("image primitive failed")

// Config holds the preprocessing tunables. The zero value is not usable; use
// DefaultConfig as a base.
type Config struct {
	// ContrastCap bounds the dynamic contrast enhancement factor.
	ContrastCap float64
	// BaseWidth is the width every image is resized to, preserving aspect.
	BaseWidth int
	// DeskewThreshold is the minimum absolute skew angle, in degrees, that
	// triggers rotation.
	DeskewThreshold float64
}

// DefaultConfig returns the preprocessing defaults.
func DefaultConfig() Config {
	return Config{
		ContrastCap:     3.0,
		BaseWidth:       1000,
		DeskewThreshold: 0.5,
	}
}

// Preprocessor applies normalization passes to images. It is stateless across
// calls and never mutates its input.
type Preprocessor struct {
	cfg Config
	log observability.Logger
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger sets the logger used for per-step diagnostics.
func WithLogger(l observability.Logger) Option {
	return func(p *Preprocessor) { p.log = l }
}

// New constructs a Preprocessor from cfg.
func New(cfg Config, opts ...Option) *Preprocessor {
	p := &Preprocessor{cfg: cfg, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run applies one full preprocessing pass to src and returns a new image the
// caller owns (and must Close), together with the metrics for the pass. src
// is left untouched. Any primitive failure aborts the pass with an error
// wrapping ErrPrimitive.
func (p *Preprocessor) Run(src gocv.Mat) (gocv.Mat, PassMetrics, error) {
	start := time.Now()
	var m PassMetrics

	if src.Empty() {
		return gocv.Mat{}, m, fmt.Errorf("%w: empty source image", ErrPrimitive)
	}

	cur, err := grayscale(src)
	if err != nil {
		return gocv.Mat{}, m, err
	}

	if cur, err = p.stretchContrast(cur, &m); err != nil {
		return gocv.Mat{}, m, err
	}
	if cur, err = p.resize(cur, &m); err != nil {
		return gocv.Mat{}, m, err
	}
	if cur, err = threshold(cur); err != nil {
		return gocv.Mat{}, m, err
	}
	if cur, err = denoise(cur, &m); err != nil {
		return gocv.Mat{}, m, err
	}
	if cur, err = p.deskew(cur, &m); err != nil {
		return gocv.Mat{}, m, err
	}
	if cur, err = equalize(cur); err != nil {
		return gocv.Mat{}, m, err
	}

	m.Elapsed = time.Since(start)
	p.log.Debug("preprocessing pass complete",
		observability.Float64("contrast_factor", m.ContrastFactor),
		observability.Float64("noise_level", m.NoiseLevel),
		observability.Float64("skew_angle", m.SkewAngle),
		observability.Duration("elapsed", m.Elapsed))
	return cur, m, nil
}

// grayscale reduces src to a single intensity channel. The returned Mat is
// always a fresh allocation, even when src is already single-channel.
func grayscale(src gocv.Mat) (gocv.Mat, error) {
	if src.Channels() == 1 {
		return src.Clone(), nil
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: grayscale conversion produced no image", ErrPrimitive)
	}
	return dst, nil
}

// stretchContrast applies a linear contrast stretch sized from the 2nd/98th
// intensity percentiles. A zero spread leaves the image unchanged with a
// recorded factor of 1.0.
func (p *Preprocessor) stretchContrast(cur gocv.Mat, m *PassMetrics) (gocv.Mat, error) {
	defer cur.Close()

	lo, hi := intensityPercentiles(cur, 2, 98)
	spread := hi - lo
	if spread <= 0 {
		m.ContrastFactor = 1.0
		return cur.Clone(), nil
	}

	factor := math.Min(255.0/spread, p.cfg.ContrastCap)
	m.ContrastFactor = factor

	// Stretch around the image mean so mid-gray stays put, matching the
	// enhancement the recognition engine was tuned against.
	mean := cur.Mean().Val1
	dst := gocv.NewMat()
	cur.ConvertToWithParams(&dst, gocv.MatTypeCV8U, float32(factor), float32((1-factor)*mean))
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: contrast stretch produced no image", ErrPrimitive)
	}
	return dst, nil
}

// intensityPercentiles computes the lo-th and hi-th intensity percentiles
// from a 256-bin histogram of a single-channel image.
func intensityPercentiles(m gocv.Mat, lo, hi float64) (float64, float64) {
	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.CalcHist([]gocv.Mat{m}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false)

	total := float64(m.Rows() * m.Cols())
	loTarget := total * lo / 100.0
	hiTarget := total * hi / 100.0

	loVal, hiVal := -1.0, -1.0
	cum := 0.0
	for i := 0; i < 256; i++ {
		cum += float64(hist.GetFloatAt(i, 0))
		if loVal < 0 && cum >= loTarget {
			loVal = float64(i)
		}
		if hiVal < 0 && cum >= hiTarget {
			hiVal = float64(i)
			break
		}
	}
	if loVal < 0 {
		loVal = 0
	}
	if hiVal < 0 {
		hiVal = 255
	}
	return loVal, hiVal
}

// resize scales the image to the configured base width, preserving aspect
// ratio, with Lanczos resampling.
func (p *Preprocessor) resize(cur gocv.Mat, m *PassMetrics) (gocv.Mat, error) {
	defer cur.Close()

	w, h := cur.Cols(), cur.Rows()
	scale := float64(p.cfg.BaseWidth) / float64(w)
	newH := int(float64(h) * scale)
	if newH < 1 {
		newH = 1
	}

	m.OriginalWidth, m.OriginalHeight = w, h
	m.Width, m.Height = p.cfg.BaseWidth, newH
	m.ScaleFactor = scale

	dst := gocv.NewMat()
	gocv.Resize(cur, &dst, image.Pt(p.cfg.BaseWidth, newH), 0, 0, gocv.InterpolationLanczos4)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: resize produced no image", ErrPrimitive)
	}
	return dst, nil
}

// threshold binarizes with an adaptive Gaussian threshold whose block size is
// derived from the image dimensions: clamp(3, min(w,h)/100*2+1, 11).
func threshold(cur gocv.Mat) (gocv.Mat, error) {
	defer cur.Close()

	short := cur.Cols()
	if cur.Rows() < short {
		short = cur.Rows()
	}
	block := short/100*2 + 1
	if block < 3 {
		block = 3
	}
	if block > 11 {
		block = 11
	}
	if block%2 == 0 {
		block++
	}

	dst := gocv.NewMat()
	gocv.AdaptiveThreshold(cur, &dst, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, block, 2)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: adaptive threshold produced no image", ErrPrimitive)
	}
	return dst, nil
}

// denoise estimates noise as the intensity standard deviation, derives a
// kernel size clamp(3, noise/10, 7), and runs non-local-means denoising with
// a search window three times that kernel.
func denoise(cur gocv.Mat, m *PassMetrics) (gocv.Mat, error) {
	defer cur.Close()

	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()
	gocv.MeanStdDev(cur, &meanMat, &stdMat)
	noise := stdMat.GetDoubleAt(0, 0)

	kernel := int(noise / 10)
	if kernel < 3 {
		kernel = 3
	}
	if kernel > 7 {
		kernel = 7
	}
	m.NoiseLevel = noise
	m.KernelSize = kernel

	dst := gocv.NewMat()
	gocv.FastNlMeansDenoisingWithParams(cur, &dst, 10, kernel, kernel*3)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: denoise produced no image", ErrPrimitive)
	}
	return dst, nil
}

// deskew rotates the image by the angle of the minimum-area rectangle around
// its foreground pixels. Blank images and angles under the threshold are left
// untouched.
func (p *Preprocessor) deskew(cur gocv.Mat, m *PassMetrics) (gocv.Mat, error) {
	defer cur.Close()

	if gocv.CountNonZero(cur) == 0 {
		m.Deskewed = false
		m.SkewAngle = 0
		return cur.Clone(), nil
	}

	nonZero := gocv.NewMat()
	defer nonZero.Close()
	gocv.FindNonZero(cur, &nonZero)
	points := gocv.NewPointVectorFromMat(nonZero)
	defer points.Close()

	angle := gocv.MinAreaRect(points).Angle
	if math.Abs(angle) < p.cfg.DeskewThreshold {
		m.Deskewed = false
		m.SkewAngle = angle
		return cur.Clone(), nil
	}

	// minAreaRect reports angles in (-90, 90]; fold steep values into the
	// complementary rotation so text is straightened, not flipped.
	switch {
	case angle < -45:
		angle = -(90 + angle)
	case angle > 45:
		angle = 90 - angle
	default:
		angle = -angle
	}
	m.Deskewed = true
	m.SkewAngle = angle

	center := image.Pt(cur.Cols()/2, cur.Rows()/2)
	rotation := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer rotation.Close()

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(cur, &dst, rotation, image.Pt(cur.Cols(), cur.Rows()),
		gocv.InterpolationCubic, gocv.BorderReplicate, color.RGBA{})
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: rotation produced no image", ErrPrimitive)
	}
	return dst, nil
}

func equalize(cur gocv.Mat) (gocv.Mat, error) {
	defer cur.Close()

	dst := gocv.NewMat()
	gocv.EqualizeHist(cur, &dst)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, fmt.Errorf("%w: histogram equalization produced no image", ErrPrimitive)
	}
	return dst, nil
}
