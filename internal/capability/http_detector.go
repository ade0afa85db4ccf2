package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/folio-health/folio/internal/types"
)

const (
	HTTPDetectorName = "detector-http"

	// detectPath is the inference endpoint on the detector service.
	detectPath = "/v1/detect"
)

// HTTPDetectorConfig holds configuration for the HTTP detector client.
type HTTPDetectorConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	RateLimit float64 // Requests per second (default: 5.0)
	Retries   int
}

// HTTPDetector implements Detector against a remote region detection
// service (a hosted YOLO-style model behind a JSON API).
type HTTPDetector struct {
	baseURL   string
	apiKey    string
	model     string
	rateLimit float64
	retries   int
	client    *http.Client
}

// NewHTTPDetector creates a new HTTP detector client.
func NewHTTPDetector(cfg HTTPDetectorConfig) *HTTPDetector {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5.0
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}

	return &HTTPDetector{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		rateLimit: cfg.RateLimit,
		retries:   cfg.Retries,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the detector identifier.
func (d *HTTPDetector) Name() string {
	return HTTPDetectorName
}

// RequestsPerSecond returns the configured rate limit.
func (d *HTTPDetector) RequestsPerSecond() float64 {
	return d.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (d *HTTPDetector) MaxRetries() int {
	return d.retries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (d *HTTPDetector) RetryDelayBase() time.Duration {
	return 2 * time.Second
}

// DetectRegions sends a page image to the detection service and
// returns the proposed regions in page pixel coordinates.
func (d *HTTPDetector) DetectRegions(ctx context.Context, image []byte, pageNum int) ([]Detection, error) {
	reqBody := detectRequest{
		Model: d.model,
		Image: base64.StdEncoding.EncodeToString(image),
	}

	resp, err := d.doRequest(ctx, detectPath, reqBody)
	if err != nil {
		return nil, &DetectionError{Provider: d.Name(), PageNum: pageNum, Err: err}
	}

	detections := make([]Detection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		detections = append(detections, Detection{
			Box: types.BoundingBox{
				X1: int(math.Round(det.X1)),
				Y1: int(math.Round(det.Y1)),
				X2: int(math.Round(det.X2)),
				Y2: int(math.Round(det.Y2)),
			},
			Label:      det.Label,
			Confidence: det.Confidence,
		})
	}
	return detections, nil
}

// doRequest makes an HTTP request to the detection service.
func (d *HTTPDetector) doRequest(ctx context.Context, path string, body any) (*detectResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp detectErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var detResp detectResponse
	if err := json.Unmarshal(respBody, &detResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &detResp, nil
}

// Detection service API types

type detectRequest struct {
	Model string `json:"model,omitempty"`
	Image string `json:"image"` // base64 PNG
}

type detectResponse struct {
	Model      string            `json:"model,omitempty"`
	Detections []detectDetection `json:"detections"`
}

type detectDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}

type detectErrorResponse struct {
	Error string `json:"error"`
}

// Verify interface
var _ Detector = (*HTTPDetector)(nil)
