package capability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	MockDetectorName   = "mock-detector"
	MockRecognizerName = "mock-recognizer"
)

// MockDetector is a Detector for testing. Detections are scripted per
// page so pipeline runs are fully deterministic.
type MockDetector struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailFirst  int // Fail the first N calls (0 = never)
	ByPage     map[int][]Detection

	// Rate limiting
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	// State
	callCount atomic.Int64
}

// NewMockDetector creates a new mock detector with sensible defaults.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		ByPage:     make(map[int][]Detection),
		RPS:        100,
		Retries:    3,
		RetryDelay: time.Millisecond,
	}
}

// Name returns the detector identifier.
func (d *MockDetector) Name() string { return MockDetectorName }

// RequestsPerSecond returns the rate limit.
func (d *MockDetector) RequestsPerSecond() float64 { return d.RPS }

// MaxRetries returns the maximum retry attempts.
func (d *MockDetector) MaxRetries() int { return d.Retries }

// RetryDelayBase returns the base delay between retries.
func (d *MockDetector) RetryDelayBase() time.Duration { return d.RetryDelay }

// Calls returns how many times DetectRegions was invoked.
func (d *MockDetector) Calls() int { return int(d.callCount.Load()) }

// DetectRegions returns the scripted detections for the page.
func (d *MockDetector) DetectRegions(ctx context.Context, image []byte, pageNum int) ([]Detection, error) {
	count := d.callCount.Add(1)

	if d.Latency > 0 {
		select {
		case <-time.After(d.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if d.ShouldFail || (d.FailFirst > 0 && int(count) <= d.FailFirst) {
		return nil, &DetectionError{
			Provider: d.Name(),
			PageNum:  pageNum,
			Err:      fmt.Errorf("mock detector configured to fail"),
		}
	}

	// Copy so callers cannot mutate the script.
	src := d.ByPage[pageNum]
	out := make([]Detection, len(src))
	copy(out, src)
	return out, nil
}

// MockRecognizer is a Recognizer for testing. Reads are scripted by
// detector label hint.
type MockRecognizer struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailFirst  int // Fail the first N calls (0 = never)
	ByHint     map[string]Recognition
	Fallback   Recognition // Returned when the hint has no script

	// Rate limiting
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	// State
	callCount atomic.Int64
}

// NewMockRecognizer creates a new mock recognizer with sensible defaults.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{
		ByHint:     make(map[string]Recognition),
		Fallback:   Recognition{Text: "mock text", Confidence: 0.95},
		RPS:        100,
		Retries:    3,
		RetryDelay: time.Millisecond,
	}
}

// Name returns the recognizer identifier.
func (r *MockRecognizer) Name() string { return MockRecognizerName }

// RequestsPerSecond returns the rate limit.
func (r *MockRecognizer) RequestsPerSecond() float64 { return r.RPS }

// MaxRetries returns the maximum retry attempts.
func (r *MockRecognizer) MaxRetries() int { return r.Retries }

// RetryDelayBase returns the base delay between retries.
func (r *MockRecognizer) RetryDelayBase() time.Duration { return r.RetryDelay }

// Calls returns how many times RecognizeText was invoked.
func (r *MockRecognizer) Calls() int { return int(r.callCount.Load()) }

// RecognizeText returns the scripted read for the hint.
func (r *MockRecognizer) RecognizeText(ctx context.Context, crop []byte, hint string) (*Recognition, error) {
	count := r.callCount.Add(1)

	if r.Latency > 0 {
		select {
		case <-time.After(r.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if r.ShouldFail || (r.FailFirst > 0 && int(count) <= r.FailFirst) {
		return nil, &RecognitionError{
			Provider: r.Name(),
			Err:      fmt.Errorf("mock recognizer configured to fail"),
		}
	}

	rec, ok := r.ByHint[hint]
	if !ok {
		rec = r.Fallback
	}
	return &rec, nil
}

// Verify interfaces
var _ Detector = (*MockDetector)(nil)
var _ Recognizer = (*MockRecognizer)(nil)
