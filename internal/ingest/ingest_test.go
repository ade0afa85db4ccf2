package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/types"
)

// testPNG renders a w×h image with a distinct pixel so crops are
// verifiable.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(0, 0, color.Black)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func testGate(t *testing.T) (*Gate, *home.Dir) {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create home: %v", err)
	}
	return New(Config{}, h), h
}

func TestIngest_Rejections(t *testing.T) {
	g, _ := testGate(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload []byte
		source  types.SourceType
	}{
		{"empty upload", nil, types.SourceLabReport},
		{"unknown source type", testPNG(t, 10, 10), types.SourceType("fax")},
		{"unsupported media type", []byte("plain text, not a document"), types.SourceLabReport},
		{"corrupt pdf", []byte("%PDF-1.4 this is not a real pdf"), types.SourceLabReport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := g.Ingest(ctx, tt.payload, "patient-a", tt.source)
			var ingErr *IngestionError
			if !errors.As(err, &ingErr) {
				t.Errorf("expected IngestionError, got %v", err)
			}
		})
	}

	t.Run("oversize upload", func(t *testing.T) {
		small := New(Config{MaxUploadBytes: 10}, nil)
		_, _, err := small.Ingest(ctx, testPNG(t, 10, 10), "patient-a", types.SourceLabReport)
		var ingErr *IngestionError
		if !errors.As(err, &ingErr) {
			t.Errorf("expected IngestionError, got %v", err)
		}
	})
}

func TestIngest_PNG(t *testing.T) {
	g, h := testGate(t)

	doc, pages, err := g.Ingest(context.Background(), testPNG(t, 120, 80), "patient-a", types.SourceLabReport)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if doc.Status != types.DocStatusIngested {
		t.Errorf("expected ingested status, got %s", doc.Status)
	}
	if doc.PageCount != 1 || len(pages) != 1 {
		t.Fatalf("expected single page, got %d", len(pages))
	}
	if pages[0].PageNo != 1 {
		t.Errorf("expected page 1, got %d", pages[0].PageNo)
	}
	if pages[0].Width != 120 || pages[0].Height != 80 {
		t.Errorf("expected 120x80, got %dx%d", pages[0].Width, pages[0].Height)
	}
	if pages[0].Path != h.PagePath(doc.ID, 1) {
		t.Errorf("unexpected page path %s", pages[0].Path)
	}
	if _, err := os.Stat(pages[0].Path); err != nil {
		t.Errorf("expected page raster on disk: %v", err)
	}
}

func TestIngest_JPEG(t *testing.T) {
	g, _ := testGate(t)

	// Re-encode the test image as JPEG
	img, err := png.Decode(bytes.NewReader(testPNG(t, 60, 40)))
	if err != nil {
		t.Fatalf("failed to decode test PNG: %v", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode JPEG: %v", err)
	}

	doc, pages, err := g.Ingest(context.Background(), buf.Bytes(), "patient-a", types.SourceOther)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if doc.PageCount != 1 || pages[0].Width != 60 || pages[0].Height != 40 {
		t.Errorf("unexpected pages: %+v", pages)
	}
}

func TestReingest(t *testing.T) {
	g, h := testGate(t)
	ctx := context.Background()

	doc, pages, err := g.Ingest(ctx, testPNG(t, 120, 80), "patient-a", types.SourceLabReport)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected single page, got %d", len(pages))
	}

	// Leftovers from a previous, longer raster set and its crops.
	stalePage := h.PagePath(doc.ID, 2)
	if err := os.WriteFile(stalePage, testPNG(t, 10, 10), 0o644); err != nil {
		t.Fatalf("failed to write stale page: %v", err)
	}
	if err := h.EnsureCropsDir(doc.ID); err != nil {
		t.Fatalf("failed to create crops dir: %v", err)
	}

	newPages, err := g.Reingest(ctx, doc, testPNG(t, 60, 40))
	if err != nil {
		t.Fatalf("Reingest failed: %v", err)
	}
	if len(newPages) != 1 {
		t.Fatalf("expected single page, got %d", len(newPages))
	}
	if newPages[0].Path != pages[0].Path {
		t.Errorf("expected raster overwritten in place, got %s", newPages[0].Path)
	}
	if newPages[0].Width != 60 || newPages[0].Height != 40 {
		t.Errorf("expected 60x40 replacement, got %dx%d", newPages[0].Width, newPages[0].Height)
	}

	if _, err := os.Stat(stalePage); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected stale page removed, got %v", err)
	}
	if _, err := os.Stat(h.CropsDir(doc.ID)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected crops removed, got %v", err)
	}

	t.Run("rejects invalid payload", func(t *testing.T) {
		_, err := g.Reingest(ctx, doc, []byte("plain text, not a document"))
		var ingErr *IngestionError
		if !errors.As(err, &ingErr) {
			t.Errorf("expected IngestionError, got %v", err)
		}
	})
}

func TestCropRegion(t *testing.T) {
	g, h := testGate(t)

	doc, pages, err := g.Ingest(context.Background(), testPNG(t, 100, 100), "patient-a", types.SourceLabReport)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	pagePath := pages[0].Path

	t.Run("crops to box size", func(t *testing.T) {
		crop, err := CropRegion(pagePath, types.BoundingBox{X1: 10, Y1: 10, X2: 40, Y2: 30})
		if err != nil {
			t.Fatalf("CropRegion failed: %v", err)
		}
		img, err := png.Decode(bytes.NewReader(crop))
		if err != nil {
			t.Fatalf("crop is not valid PNG: %v", err)
		}
		if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 20 {
			t.Errorf("expected 30x20 crop, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
		}
	})

	t.Run("overshooting box is clamped", func(t *testing.T) {
		crop, err := CropRegion(pagePath, types.BoundingBox{X1: 90, Y1: 90, X2: 150, Y2: 150})
		if err != nil {
			t.Fatalf("CropRegion failed: %v", err)
		}
		img, err := png.Decode(bytes.NewReader(crop))
		if err != nil {
			t.Fatalf("crop is not valid PNG: %v", err)
		}
		if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 10 {
			t.Errorf("expected 10x10 clamped crop, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
		}
	})

	t.Run("box outside page has no area", func(t *testing.T) {
		if _, err := CropRegion(pagePath, types.BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300}); err == nil {
			t.Error("expected error for box outside page")
		}
	})

	t.Run("missing page raster", func(t *testing.T) {
		if _, err := CropRegion(h.PagePath(doc.ID, 99), types.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}); err == nil {
			t.Error("expected error for missing raster")
		}
	})
}
