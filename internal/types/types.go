// Package types defines the domain model shared across the pipeline:
// documents, pages, detected regions, extracted fields, structured
// records, and processing jobs.
package types

import "time"

// SourceType classifies where an uploaded document came from.
type SourceType string

const (
	SourceLabReport       SourceType = "lab_report"
	SourceEmbryologySheet SourceType = "embryology_sheet"
	SourcePrescription    SourceType = "prescription"
	SourceOther           SourceType = "other"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceLabReport, SourceEmbryologySheet, SourcePrescription, SourceOther:
		return true
	}
	return false
}

// DocumentStatus tracks a document's lifecycle.
type DocumentStatus string

const (
	DocStatusIngested   DocumentStatus = "ingested"
	DocStatusProcessing DocumentStatus = "processing"
	DocStatusProcessed  DocumentStatus = "processed"
	DocStatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded clinical document. The raster payload is
// immutable once ingested; re-processing only ever appends record versions.
type Document struct {
	ID         string         `json:"id"`
	PatientID  string         `json:"patient_id"`
	SourceType SourceType     `json:"source_type"`
	PageCount  int            `json:"page_count"`
	Status     DocumentStatus `json:"status"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// Page is one rasterized page of a document.
type Page struct {
	DocumentID string `json:"document_id"`
	PageNo     int    `json:"page_no"` // 1-indexed
	Path       string `json:"path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// BoundingBox is an axis-aligned box in page pixel coordinates.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the box width in pixels.
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Empty reports whether the box has no area.
func (b BoundingBox) Empty() bool { return b.X2 <= b.X1 || b.Y2 <= b.Y1 }

// Clamp returns the box clipped to a w×h page. Detector output may
// slightly overshoot page bounds; clamped boxes are what get cropped.
func (b BoundingBox) Clamp(w, h int) BoundingBox {
	c := b
	if c.X1 < 0 {
		c.X1 = 0
	}
	if c.Y1 < 0 {
		c.Y1 = 0
	}
	if c.X2 > w {
		c.X2 = w
	}
	if c.Y2 > h {
		c.Y2 = h
	}
	if c.X2 < c.X1 {
		c.X2 = c.X1
	}
	if c.Y2 < c.Y1 {
		c.Y2 = c.Y1
	}
	return c
}

// Region is a detected sub-area of a page believed to contain a
// clinically relevant value. Regions belong to exactly one page and are
// never reassigned.
type Region struct {
	ID            string      `json:"id"`
	PageNo        int         `json:"page_no"`
	Box           BoundingBox `json:"bounding_box"`
	DetectorLabel string      `json:"detector_label"`
	DetectorConf  float64     `json:"detector_confidence"`
}

// ExtractedField is a canonical field value extracted from one region,
// with full provenance back to the detection and raw OCR text.
type ExtractedField struct {
	RegionID      string      `json:"region_id"`
	Field         string      `json:"canonical_field_name"`
	PageNo        int         `json:"page_no"`
	Box           BoundingBox `json:"bounding_box"`
	DetectorLabel string      `json:"detector_label"`
	DetectorConf  float64     `json:"detector_confidence"`
	RawText       string      `json:"raw_text"`
	Normalized    *string     `json:"normalized_value"` // nil when normalization failed
	Numeric       *float64    `json:"numeric_value,omitempty"`
	Unit          string      `json:"unit,omitempty"`
	OCRConf       float64     `json:"ocr_confidence"`
}

// CombinedConf is the detection confidence multiplied by the OCR
// confidence. It drives duplicate-field selection and record scoring.
func (f *ExtractedField) CombinedConf() float64 {
	return f.DetectorConf * f.OCRConf
}

// FlagCode marks a validation finding on a structured record. Flagged
// records are still persisted; flags exist for human review.
type FlagCode string

const (
	FlagMissingRequiredField FlagCode = "MISSING_REQUIRED_FIELD"
	FlagOutOfRange           FlagCode = "OUT_OF_RANGE"
	FlagUnparseableValue     FlagCode = "UNPARSEABLE_VALUE"
	FlagLowConfidence        FlagCode = "LOW_CONFIDENCE"
)

// StructuredRecord is an immutable, versioned snapshot of a document's
// extracted structured data. Versions are strictly increasing and
// gap-free per document; records are never updated in place.
type StructuredRecord struct {
	DocumentID        string                    `json:"document_id"`
	Version           int                       `json:"version"`
	Fields            map[string]ExtractedField `json:"fields"`
	OverallConfidence float64                   `json:"overall_confidence"`
	ValidationFlags   []FlagCode                `json:"validation_flags"`
	UnmappedRegions   int                       `json:"unmapped_regions"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// Flagged reports whether the record carries the given flag.
func (r *StructuredRecord) Flagged(code FlagCode) bool {
	for _, f := range r.ValidationFlags {
		if f == code {
			return true
		}
	}
	return false
}

// JobState is the lifecycle state of a processing job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// JobStage names the pipeline stage a job last reached.
type JobStage string

const (
	StageQueued    JobStage = "queued"
	StageDetect    JobStage = "detect"
	StageRecognize JobStage = "recognize"
	StageMap       JobStage = "map"
	StageValidate  JobStage = "validate"
	StagePersist   JobStage = "persist"
)

// Job tracks one pipeline run over a document.
type Job struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	Stage        JobStage   `json:"stage"`
	State        JobState   `json:"state"`
	AttemptCount int        `json:"attempt_count"`
	LastError    string     `json:"last_error,omitempty"`
	Version      *int       `json:"version,omitempty"` // set on success
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// CompletionEvent is emitted when a job reaches a terminal state so
// downstream consumers know new data (or a failure) is available.
type CompletionEvent struct {
	JobID           string     `json:"job_id"`
	DocumentID      string     `json:"document_id"`
	Status          JobState   `json:"status"`
	Version         *int       `json:"version"` // nil unless succeeded
	ValidationFlags []FlagCode `json:"validation_flags,omitempty"`
	Error           string     `json:"error,omitempty"`
}
