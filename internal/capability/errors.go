package capability

import (
	"errors"
	"fmt"
)

// DetectionError wraps a detector failure. Detection failures are
// transient from the pipeline's point of view and are retried.
type DetectionError struct {
	Provider string
	PageNum  int
	Err      error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed (provider=%s page=%d): %v", e.Provider, e.PageNum, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// RecognitionError wraps a text recognition failure. Like detection
// failures these are retried before the job is failed.
type RecognitionError struct {
	Provider string
	RegionID string
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed (provider=%s region=%s): %v", e.Provider, e.RegionID, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// IsDetectionError reports whether err is (or wraps) a DetectionError.
func IsDetectionError(err error) bool {
	var de *DetectionError
	return errors.As(err, &de)
}

// IsRecognitionError reports whether err is (or wraps) a RecognitionError.
func IsRecognitionError(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re)
}
