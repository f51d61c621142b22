// Package raster renders PDF page ranges to encoded images. The pipeline
// consumes PDFs only through this boundary; it never parses PDF objects
// itself.
package raster

import "context"

// Rasterizer converts PDF bytes into per-page images.
type Rasterizer interface {
	// PageCount reports the document's total page count.
	PageCount(ctx context.Context, pdf []byte) (int, error)
	// Rasterize renders the 1-indexed inclusive page range [first, last] and
	// returns one encoded image per page, in page order. A range entirely
	// past the document end yields an empty slice, not an error.
	Rasterize(ctx context.Context, pdf []byte, first, last int) ([][]byte, error)
}
