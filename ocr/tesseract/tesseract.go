// Package tesseract implements ocr.Engine on top of the gosseract client.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/ocrkit/ocr"
)

// Engine is a Tesseract-backed recognition engine. A fresh gosseract client
// is created per call; Tesseract itself is a single shared native resource,
// so calls are expected to run sequentially.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Verify checks that the Tesseract library is linked and trained language
// data is installed. It must be called once before first use; failure is
// fatal for the whole pipeline.
func (e *Engine) Verify(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c := e.clientFactory()
	defer c.Close()

	if v := c.Version(); v == "" {
		return fmt.Errorf("%w: tesseract library not linked", ocr.ErrEngineUnavailable)
	}
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("%w: list languages: %v", ocr.ErrEngineUnavailable, err)
	}
	if len(langs) == 0 {
		return fmt.Errorf("%w: no trained language data installed", ocr.ErrEngineUnavailable)
	}
	return nil
}

// Recognize runs Tesseract over PNG-encoded image bytes and returns one Word
// per recognized token with its confidence in [0,100].
func (e *Engine) Recognize(ctx context.Context, image []byte, cfg ocr.Config) ([]ocr.Word, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = ocr.DefaultLanguage
	}
	if err := c.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language %q: %w", lang, err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		return nil, fmt.Errorf("set page segmentation mode %d: %w", cfg.PageSegMode, err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}
	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ocr.Word{
			Text:       b.Word,
			Confidence: b.Confidence,
			Bounds: ocr.Region{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
		})
	}
	return words, nil
}
