// Package ingest validates uploaded clinical documents and rasterizes
// them into per-page PNG images for the detection pipeline. Uploads
// that fail validation are rejected before anything is persisted.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/tiff"

	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/types"
)

// IngestionError marks an upload as unprocessable. Ingestion failures
// are fatal for the upload; nothing is retried or persisted.
type IngestionError struct {
	Reason string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("ingestion rejected: %s", e.Reason)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Config holds ingestion gate settings.
type Config struct {
	MaxUploadBytes int64
	MaxPages       int
	RasterDPI      int
	PdftoppmPath   string
	Logger         *slog.Logger
}

// Gate validates uploads and produces page rasters.
type Gate struct {
	maxUploadBytes int64
	maxPages       int
	rasterDPI      int
	pdftoppmPath   string
	home           *home.Dir
	logger         *slog.Logger
}

// New creates an ingestion gate with defaults applied.
func New(cfg Config, homeDir *home.Dir) *Gate {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20 // 50 MB
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.RasterDPI <= 0 {
		cfg.RasterDPI = 220
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gate{
		maxUploadBytes: cfg.MaxUploadBytes,
		maxPages:       cfg.MaxPages,
		rasterDPI:      cfg.RasterDPI,
		pdftoppmPath:   cfg.PdftoppmPath,
		home:           homeDir,
		logger:         cfg.Logger.With("component", "ingest"),
	}
}

// acceptedTypes are the upload media types the gate admits.
var acceptedTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
}

// Ingest validates an upload and rasterizes it into page PNGs under
// the home directory. On success the returned document is in the
// ingested state with its pages recorded.
func (g *Gate) Ingest(ctx context.Context, payload []byte, patientID string, sourceType types.SourceType) (*types.Document, []types.Page, error) {
	if !sourceType.Valid() {
		return nil, nil, &IngestionError{Reason: fmt.Sprintf("unknown source type %q", sourceType)}
	}
	mediaType, err := g.validatePayload(payload)
	if err != nil {
		return nil, nil, err
	}

	docID := uuid.NewString()
	if err := g.home.EnsurePagesDir(docID); err != nil {
		return nil, nil, fmt.Errorf("failed to create pages directory: %w", err)
	}

	var pages []types.Page
	start := time.Now()
	if mediaType == "application/pdf" {
		pages, err = g.rasterizePDF(ctx, docID, payload)
	} else {
		pages, err = g.normalizeImage(docID, payload, mediaType)
	}
	if err != nil {
		os.RemoveAll(g.home.PagesDir(docID))
		return nil, nil, err
	}

	doc := &types.Document{
		ID:         docID,
		PatientID:  patientID,
		SourceType: sourceType,
		PageCount:  len(pages),
		Status:     types.DocStatusIngested,
		IngestedAt: time.Now().UTC(),
	}

	g.logger.Info("document ingested",
		"document_id", docID,
		"media_type", mediaType,
		"pages", len(pages),
		"duration", time.Since(start))

	return doc, pages, nil
}

// Reingest replaces an existing document's page rasters with a new
// upload. Rasters are overwritten in place keyed by page number, so
// repeating the same upload is idempotent.
func (g *Gate) Reingest(ctx context.Context, doc *types.Document, payload []byte) ([]types.Page, error) {
	mediaType, err := g.validatePayload(payload)
	if err != nil {
		return nil, err
	}
	if err := g.home.EnsurePagesDir(doc.ID); err != nil {
		return nil, fmt.Errorf("failed to create pages directory: %w", err)
	}

	var pages []types.Page
	start := time.Now()
	if mediaType == "application/pdf" {
		pages, err = g.rasterizePDF(ctx, doc.ID, payload)
	} else {
		pages, err = g.normalizeImage(doc.ID, payload, mediaType)
	}
	if err != nil {
		return nil, err
	}

	// Drop rasters past the new page count when the replacement is
	// shorter, and crops cut from the previous rasters.
	for pageNo := len(pages) + 1; ; pageNo++ {
		if err := os.Remove(g.home.PagePath(doc.ID, pageNo)); err != nil {
			break
		}
	}
	os.RemoveAll(g.home.CropsDir(doc.ID))

	g.logger.Info("document re-ingested",
		"document_id", doc.ID,
		"media_type", mediaType,
		"pages", len(pages),
		"duration", time.Since(start))

	return pages, nil
}

// validatePayload applies the gate's size and media type checks.
func (g *Gate) validatePayload(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", &IngestionError{Reason: "empty upload"}
	}
	if int64(len(payload)) > g.maxUploadBytes {
		return "", &IngestionError{
			Reason: fmt.Sprintf("upload of %d bytes exceeds limit of %d", len(payload), g.maxUploadBytes),
		}
	}

	mediaType := http.DetectContentType(payload)
	if !acceptedTypes[mediaType] {
		return "", &IngestionError{Reason: fmt.Sprintf("unsupported media type %q", mediaType)}
	}
	return mediaType, nil
}

// rasterizePDF validates the PDF and renders each page to PNG at the
// configured DPI via pdftoppm.
func (g *Gate) rasterizePDF(ctx context.Context, docID string, payload []byte) ([]types.Page, error) {
	pageCount, err := api.PageCount(bytes.NewReader(payload), nil)
	if err != nil {
		return nil, &IngestionError{Reason: "invalid PDF", Err: err}
	}
	if pageCount == 0 {
		return nil, &IngestionError{Reason: "PDF has no pages"}
	}
	if pageCount > g.maxPages {
		return nil, &IngestionError{
			Reason: fmt.Sprintf("PDF has %d pages, limit is %d", pageCount, g.maxPages),
		}
	}

	// pdftoppm reads from a file, so spill the payload to a temp path.
	tmp, err := os.CreateTemp("", "folio-upload-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	pages := make([]types.Page, 0, pageCount)
	for pageNo := 1; pageNo <= pageCount; pageNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pagePath := g.home.PagePath(docID, pageNo)
		outPrefix := pagePath[:len(pagePath)-len(filepath.Ext(pagePath))]

		cmd := exec.CommandContext(ctx, g.pdftoppmPath,
			"-png",
			"-f", strconv.Itoa(pageNo),
			"-l", strconv.Itoa(pageNo),
			"-r", strconv.Itoa(g.rasterDPI),
			"-singlefile",
			tmp.Name(), outPrefix)
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, &IngestionError{
				Reason: fmt.Sprintf("failed to rasterize page %d: %s", pageNo, bytes.TrimSpace(out)),
				Err:    err,
			}
		}

		w, h, err := pngDimensions(pagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read rasterized page %d: %w", pageNo, err)
		}

		pages = append(pages, types.Page{
			DocumentID: docID,
			PageNo:     pageNo,
			Path:       pagePath,
			Width:      w,
			Height:     h,
		})
	}
	return pages, nil
}

// normalizeImage decodes a single-image upload and re-encodes it as
// the document's only page PNG.
func (g *Gate) normalizeImage(docID string, payload []byte, mediaType string) ([]types.Page, error) {
	var (
		img image.Image
		err error
	)
	switch mediaType {
	case "image/png":
		img, err = png.Decode(bytes.NewReader(payload))
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(payload))
	case "image/tiff":
		img, err = tiff.Decode(bytes.NewReader(payload))
	default:
		return nil, &IngestionError{Reason: fmt.Sprintf("unsupported image type %q", mediaType)}
	}
	if err != nil {
		return nil, &IngestionError{Reason: "invalid image", Err: err}
	}

	pagePath := g.home.PagePath(docID, 1)
	f, err := os.Create(pagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create page file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}

	bounds := img.Bounds()
	return []types.Page{{
		DocumentID: docID,
		PageNo:     1,
		Path:       pagePath,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}}, nil
}

// pngDimensions reads just the image header for width and height.
func pngDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
