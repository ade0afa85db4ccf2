package capability

import (
	"context"
	"strings"
	"testing"
)

func TestRegistry_Resolution(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterDetector(NewMockDetector())
	reg.RegisterRecognizer(NewMockRecognizer())

	t.Run("resolves registered detector", func(t *testing.T) {
		d, err := reg.Detector(MockDetectorName)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Name() != MockDetectorName {
			t.Errorf("expected %s, got %s", MockDetectorName, d.Name())
		}
	})

	t.Run("resolves registered recognizer", func(t *testing.T) {
		r, err := reg.Recognizer(MockRecognizerName)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Name() != MockRecognizerName {
			t.Errorf("expected %s, got %s", MockRecognizerName, r.Name())
		}
	})

	t.Run("unknown detector lists known names", func(t *testing.T) {
		_, err := reg.Detector("nope")
		if err == nil {
			t.Fatal("expected error for unknown detector")
		}
		if !strings.Contains(err.Error(), MockDetectorName) {
			t.Errorf("expected error to list known detectors, got %v", err)
		}
	})

	t.Run("unknown recognizer errors", func(t *testing.T) {
		if _, err := reg.Recognizer("nope"); err == nil {
			t.Error("expected error for unknown recognizer")
		}
	})
}

func TestRegistry_Providers(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterDetector(NewMockDetector())
	reg.RegisterRecognizer(NewMockRecognizer())

	detectors, recognizers := reg.Providers()
	if len(detectors) != 1 || detectors[0] != MockDetectorName {
		t.Errorf("unexpected detectors: %v", detectors)
	}
	if len(recognizers) != 1 || recognizers[0] != MockRecognizerName {
		t.Errorf("unexpected recognizers: %v", recognizers)
	}
}

func TestRegistry_Wait(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterDetector(NewMockDetector())

	t.Run("waits on registered provider", func(t *testing.T) {
		if err := reg.Wait(context.Background(), MockDetectorName); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown provider is a no-op", func(t *testing.T) {
		if err := reg.Wait(context.Background(), "nope"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("limiter status covers providers", func(t *testing.T) {
		status := reg.LimiterStatus()
		if _, ok := status[MockDetectorName]; !ok {
			t.Errorf("expected limiter status for %s, got %v", MockDetectorName, status)
		}
	})
}

func TestMockDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("returns scripted detections", func(t *testing.T) {
		d := NewMockDetector()
		d.ByPage[1] = []Detection{{Label: "glucose", Confidence: 0.9}}

		got, err := d.DetectRegions(ctx, nil, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Label != "glucose" {
			t.Errorf("unexpected detections: %v", got)
		}

		empty, err := d.DetectRegions(ctx, nil, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("expected no detections for unscripted page, got %v", empty)
		}
	})

	t.Run("fail first N calls", func(t *testing.T) {
		d := NewMockDetector()
		d.FailFirst = 2

		for i := 0; i < 2; i++ {
			if _, err := d.DetectRegions(ctx, nil, 1); !IsDetectionError(err) {
				t.Errorf("call %d: expected DetectionError, got %v", i+1, err)
			}
		}
		if _, err := d.DetectRegions(ctx, nil, 1); err != nil {
			t.Errorf("third call should succeed, got %v", err)
		}
		if d.Calls() != 3 {
			t.Errorf("expected 3 calls, got %d", d.Calls())
		}
	})
}

func TestMockRecognizer(t *testing.T) {
	ctx := context.Background()

	t.Run("scripted by hint with fallback", func(t *testing.T) {
		r := NewMockRecognizer()
		r.ByHint["glucose"] = Recognition{Text: "95 mg/dL", Confidence: 0.9}

		got, err := r.RecognizeText(ctx, nil, "glucose")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Text != "95 mg/dL" {
			t.Errorf("expected scripted text, got %q", got.Text)
		}

		fb, err := r.RecognizeText(ctx, nil, "unknown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fb.Text != r.Fallback.Text {
			t.Errorf("expected fallback text, got %q", fb.Text)
		}
	})

	t.Run("failure wraps RecognitionError", func(t *testing.T) {
		r := NewMockRecognizer()
		r.ShouldFail = true

		if _, err := r.RecognizeText(ctx, nil, "glucose"); !IsRecognitionError(err) {
			t.Errorf("expected RecognitionError, got %v", err)
		}
	})
}
