package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	"golang.org/x/image/tiff"

	// webp has no OpenCV codec in some builds; register the Go decoder so the
	// fallback path can handle it.
	_ "golang.org/x/image/webp"
)

// ErrLoad reports that raw bytes could not be decoded as an image. It is
// fatal for the current call.
var ErrLoad = errors.New("image load failed")

// loadImage decodes raw document bytes into a Mat the caller owns. The
// filename is only a format hint. TIFF streams are normalized to their first
// frame as an explicit pre-step, since recognition operates on exactly one
// frame per page; formats OpenCV cannot decode fall back to the registered Go
// decoders.
func loadImage(data []byte, filename string) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: empty input", ErrLoad)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".tif" || ext == ".tiff" {
		img, err := tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("%w: decode tiff: %v", ErrLoad, err)
		}
		return matFromImage(img)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if err == nil {
		mat.Close()
	}

	img, decErr := imaging.Decode(bytes.NewReader(data))
	if decErr != nil {
		return gocv.Mat{}, fmt.Errorf("%w: decode: %v", ErrLoad, decErr)
	}
	return matFromImage(img)
}

func matFromImage(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: convert frame: %v", ErrLoad, err)
	}
	return mat, nil
}
