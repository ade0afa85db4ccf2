package capability

import (
	"context"
	"time"

	"github.com/folio-health/folio/internal/types"
)

// Detector locates labeled regions of interest on a page image.
type Detector interface {
	// Name returns the detector identifier (e.g., "yolo-http", "mock").
	Name() string

	// DetectRegions finds candidate field regions on a rendered page.
	// Returned boxes are in page pixel coordinates.
	DetectRegions(ctx context.Context, image []byte, pageNum int) ([]Detection, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// Recognizer extracts text from a cropped region image.
// Separate from Detector because it has different rate limiting, retry
// patterns, and result handling (free text vs geometry).
type Recognizer interface {
	// Name returns the recognizer identifier (e.g., "ocr-http", "openai-vision").
	Name() string

	// RecognizeText reads the text content of a region crop.
	RecognizeText(ctx context.Context, crop []byte, hint string) (*Recognition, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// Detection is a single region proposal from a detector.
type Detection struct {
	Box        types.BoundingBox `json:"box"`
	Label      string            `json:"label"`
	Confidence float64           `json:"confidence"`
}

// Recognition is the text read from a single region crop.
type Recognition struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
}
