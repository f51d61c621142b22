package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/wudi/ocrkit/ocr"
)

// requireTesseract skips when the native library or its language data is not
// installed on the host running the tests.
func requireTesseract(t *testing.T) *Engine {
	t.Helper()
	e := New()
	if err := e.Verify(context.Background()); err != nil {
		t.Skipf("tesseract not available: %v", err)
	}
	return e
}

func TestEngineName(t *testing.T) {
	if got := New().Name(); got != "tesseract" {
		t.Fatalf("Name() = %q", got)
	}
}

func TestVerifyHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().Verify(ctx); err != context.Canceled {
		t.Fatalf("Verify with canceled context = %v, want context.Canceled", err)
	}
}

func TestRecognizeBlankImage(t *testing.T) {
	e := requireTesseract(t)

	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}

	words, err := e.Recognize(context.Background(), buf.Bytes(), ocr.Config{PageSegMode: 6})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	for _, w := range words {
		if w.Text != "" && w.Confidence > 50 {
			t.Fatalf("blank image produced confident word %+v", w)
		}
	}
}
