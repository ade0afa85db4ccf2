package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	HTTPRecognizerName = "ocr-http"

	// recognizePath is the inference endpoint on the OCR service.
	recognizePath = "/v1/recognize"
)

// HTTPRecognizerConfig holds configuration for the HTTP OCR client.
type HTTPRecognizerConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	RateLimit float64 // Requests per second (default: 10.0)
	Retries   int
}

// HTTPRecognizer implements Recognizer against a remote OCR service
// that reads small region crops.
type HTTPRecognizer struct {
	baseURL   string
	apiKey    string
	model     string
	rateLimit float64
	retries   int
	client    *http.Client
}

// NewHTTPRecognizer creates a new HTTP OCR client.
func NewHTTPRecognizer(cfg HTTPRecognizerConfig) *HTTPRecognizer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}

	return &HTTPRecognizer{
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

// Name returns the recognizer identifier.
func (r *HTTPRecognizer) Name() string {
	return HTTPRecognizerName
}

// RequestsPerSecond returns the configured rate limit.
func (r *HTTPRecognizer) RequestsPerSecond() float64 {
	return r.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (r *HTTPRecognizer) MaxRetries() int {
	return r.retries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (r *HTTPRecognizer) RetryDelayBase() time.Duration {
	return time.Second
}

// RecognizeText reads the text content of a region crop. The hint is
// the detector label, which the service may use to bias decoding.
func (r *HTTPRecognizer) RecognizeText(ctx context.Context, crop []byte, hint string) (*Recognition, error) {
	start := time.Now()

	reqBody := recognizeRequest{
		Model: r.model,
		Image: base64.StdEncoding.EncodeToString(crop),
		Hint:  hint,
	}

	resp, err := r.doRequest(ctx, recognizePath, reqBody)
	if err != nil {
		return nil, &RecognitionError{Provider: r.Name(), Err: err}
	}

	return &Recognition{
		Text:       resp.Text,
		Confidence: resp.Confidence,
		Duration:   time.Since(start),
	}, nil
}

// doRequest makes an HTTP request to the OCR service.
func (r *HTTPRecognizer) doRequest(ctx context.Context, path string, body any) (*recognizeResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp recognizeErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("OCR error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("OCR error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var recResp recognizeResponse
	if err := json.Unmarshal(respBody, &recResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &recResp, nil
}

// OCR service API types

type recognizeRequest struct {
	Model string `json:"model,omitempty"`
	Image string `json:"image"` // base64 PNG
	Hint  string `json:"hint,omitempty"`
}

type recognizeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type recognizeErrorResponse struct {
	Error string `json:"error"`
}

// Verify interface
var _ Recognizer = (*HTTPRecognizer)(nil)
