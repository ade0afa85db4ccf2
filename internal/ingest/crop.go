package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/folio-health/folio/internal/types"
)

// CropRegion cuts a detected region out of a page raster and returns
// it as PNG bytes. The box is clamped to the page bounds first.
func CropRegion(pagePath string, box types.BoundingBox) ([]byte, error) {
	f, err := os.Open(pagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open page raster: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page raster: %w", err)
	}

	bounds := img.Bounds()
	clamped := box.Clamp(bounds.Dx(), bounds.Dy())
	if clamped.Empty() {
		return nil, fmt.Errorf("region %v has no area on page", box)
	}

	rect := image.Rect(
		bounds.Min.X+clamped.X1,
		bounds.Min.Y+clamped.Y1,
		bounds.Min.X+clamped.X2,
		bounds.Min.Y+clamped.Y2,
	)

	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("page raster image type %T does not support cropping", img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
