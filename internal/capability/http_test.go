package capability

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPDetector_DetectRegions(t *testing.T) {
	t.Run("successful detection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Verify request
			if r.URL.Path != "/v1/detect" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != "POST" {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}

			var req detectRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			if req.Model != "folio-regions-v2" {
				t.Errorf("unexpected model: %s", req.Model)
			}
			img, err := base64.StdEncoding.DecodeString(req.Image)
			if err != nil || string(img) != "fake png bytes" {
				t.Errorf("image payload not base64 round-tripped: %v", err)
			}

			resp := detectResponse{
				Model: "folio-regions-v2",
				Detections: []detectDetection{
					{Label: "glucose", Confidence: 0.92, X1: 100.4, Y1: 200.6, X2: 300.2, Y2: 250.9},
				},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		d := NewHTTPDetector(HTTPDetectorConfig{
			BaseURL: server.URL,
			APIKey:  "test-key",
			Model:   "folio-regions-v2",
		})

		got, err := d.DetectRegions(context.Background(), []byte("fake png bytes"), 1)
		if err != nil {
			t.Fatalf("DetectRegions() error = %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 detection, got %d", len(got))
		}
		if got[0].Label != "glucose" || got[0].Confidence != 0.92 {
			t.Errorf("unexpected detection: %+v", got[0])
		}
		// Coordinates are rounded to pixels
		if got[0].Box.X1 != 100 || got[0].Box.Y1 != 201 || got[0].Box.X2 != 300 || got[0].Box.Y2 != 251 {
			t.Errorf("unexpected box: %+v", got[0].Box)
		}
	})

	t.Run("service error surfaces message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(detectErrorResponse{Error: "image too large"})
		}))
		defer server.Close()

		d := NewHTTPDetector(HTTPDetectorConfig{BaseURL: server.URL})

		_, err := d.DetectRegions(context.Background(), []byte("x"), 3)
		var detErr *DetectionError
		if !errors.As(err, &detErr) {
			t.Fatalf("expected DetectionError, got %v", err)
		}
		if detErr.PageNum != 3 {
			t.Errorf("expected page 3 in error, got %d", detErr.PageNum)
		}
		if !strings.Contains(err.Error(), "image too large") {
			t.Errorf("expected service message in error, got %v", err)
		}
	})
}

func TestHTTPRecognizer_RecognizeText(t *testing.T) {
	t.Run("successful read", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/recognize" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}

			var req recognizeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			if req.Hint != "glucose" {
				t.Errorf("expected hint glucose, got %q", req.Hint)
			}

			json.NewEncoder(w).Encode(recognizeResponse{Text: "95 mg/dL", Confidence: 0.88})
		}))
		defer server.Close()

		rec := NewHTTPRecognizer(HTTPRecognizerConfig{BaseURL: server.URL})

		got, err := rec.RecognizeText(context.Background(), []byte("crop"), "glucose")
		if err != nil {
			t.Fatalf("RecognizeText() error = %v", err)
		}
		if got.Text != "95 mg/dL" || got.Confidence != 0.88 {
			t.Errorf("unexpected recognition: %+v", got)
		}
		if got.Duration == 0 {
			t.Error("expected non-zero duration")
		}
	})

	t.Run("service error wraps RecognitionError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(recognizeErrorResponse{Error: "rate limited"})
		}))
		defer server.Close()

		rec := NewHTTPRecognizer(HTTPRecognizerConfig{BaseURL: server.URL})

		if _, err := rec.RecognizeText(context.Background(), []byte("crop"), "glucose"); !IsRecognitionError(err) {
			t.Errorf("expected RecognitionError, got %v", err)
		}
	})
}
