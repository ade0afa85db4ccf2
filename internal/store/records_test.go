package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/folio-health/folio/internal/types"
)

func testRecord(documentID string) *types.StructuredRecord {
	norm := "95"
	num := 95.0
	return &types.StructuredRecord{
		DocumentID:        documentID,
		OverallConfidence: 0.81,
		ValidationFlags:   []types.FlagCode{types.FlagLowConfidence},
		UnmappedRegions:   2,
		Fields: map[string]types.ExtractedField{
			"glucose": {
				RegionID:      "r1",
				Field:         "glucose",
				PageNo:        1,
				Box:           types.BoundingBox{X1: 10, Y1: 20, X2: 100, Y2: 50},
				DetectorLabel: "glucose",
				DetectorConf:  0.9,
				RawText:       "95 mg/dL",
				Normalized:    &norm,
				Numeric:       &num,
				Unit:          "mg/dL",
				OCRConf:       0.9,
			},
			"clinician": {
				RegionID:      "r2",
				Field:         "clinician",
				PageNo:        1,
				DetectorLabel: "clinician",
				DetectorConf:  0.7,
				RawText:       "illegible",
				OCRConf:       0.3,
			},
		},
	}
}

func TestAppendRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1", "patient-a")

	t.Run("first append gets version 1", func(t *testing.T) {
		rec := testRecord("doc-1")
		v, err := s.AppendRecord(ctx, rec)
		if err != nil {
			t.Fatalf("AppendRecord failed: %v", err)
		}
		if v != 1 {
			t.Errorf("expected version 1, got %d", v)
		}
		if rec.Version != 1 {
			t.Errorf("expected record version set to 1, got %d", rec.Version)
		}
	})

	t.Run("subsequent appends increment", func(t *testing.T) {
		for want := 2; want <= 4; want++ {
			v, err := s.AppendRecord(ctx, testRecord("doc-1"))
			if err != nil {
				t.Fatalf("AppendRecord failed: %v", err)
			}
			if v != want {
				t.Errorf("expected version %d, got %d", want, v)
			}
		}
	})

	t.Run("round trip preserves fields and provenance", func(t *testing.T) {
		got, err := s.GetRecord(ctx, "doc-1", 1)
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}

		if len(got.Fields) != 2 {
			t.Fatalf("expected 2 fields, got %d", len(got.Fields))
		}
		g := got.Fields["glucose"]
		if g.Normalized == nil || *g.Normalized != "95" {
			t.Errorf("expected normalized 95, got %v", g.Normalized)
		}
		if g.Numeric == nil || *g.Numeric != 95 {
			t.Errorf("expected numeric 95, got %v", g.Numeric)
		}
		if g.Box != (types.BoundingBox{X1: 10, Y1: 20, X2: 100, Y2: 50}) {
			t.Errorf("bounding box not preserved: %+v", g.Box)
		}
		c := got.Fields["clinician"]
		if c.Normalized != nil {
			t.Errorf("expected nil normalized for unparseable field, got %v", *c.Normalized)
		}
		if !got.Flagged(types.FlagLowConfidence) {
			t.Errorf("expected LOW_CONFIDENCE flag, got %v", got.ValidationFlags)
		}
	})
}

func TestAppendRecord_ConcurrentNoGaps(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1", "patient-a")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendRecord(ctx, testRecord("doc-1")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append failed: %v", err)
	}

	versions, err := s.ListVersions(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != n {
		t.Fatalf("expected %d versions, got %d", n, len(versions))
	}
	for i, rec := range versions {
		if rec.Version != i+1 {
			t.Errorf("gap in versions: position %d has version %d", i, rec.Version)
		}
	}
}

func TestGetLatestRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1", "patient-a")

	t.Run("no records returns ErrNotFound", func(t *testing.T) {
		if _, err := s.GetLatestRecord(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returns highest version", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if _, err := s.AppendRecord(ctx, testRecord("doc-1")); err != nil {
				t.Fatalf("AppendRecord failed: %v", err)
			}
		}

		got, err := s.GetLatestRecord(ctx, "doc-1")
		if err != nil {
			t.Fatalf("GetLatestRecord failed: %v", err)
		}
		if got.Version != 3 {
			t.Errorf("expected version 3, got %d", got.Version)
		}
	})
}

func TestLatestRecordsByPatient(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		id := fmt.Sprintf("doc-%d", i)
		testDocument(t, s, id, "patient-a")
		for v := 0; v < i; v++ {
			if _, err := s.AppendRecord(ctx, testRecord(id)); err != nil {
				t.Fatalf("AppendRecord failed: %v", err)
			}
		}
	}
	testDocument(t, s, "doc-other", "patient-b")
	if _, err := s.AppendRecord(ctx, testRecord("doc-other")); err != nil {
		t.Fatalf("AppendRecord failed: %v", err)
	}

	recs, err := s.LatestRecordsByPatient(ctx, "patient-a")
	if err != nil {
		t.Fatalf("LatestRecordsByPatient failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	byDoc := make(map[string]int)
	for _, r := range recs {
		byDoc[r.DocumentID] = r.Version
		if len(r.Fields) == 0 {
			t.Errorf("expected fields loaded for %s", r.DocumentID)
		}
	}
	if byDoc["doc-1"] != 1 || byDoc["doc-2"] != 2 {
		t.Errorf("expected latest versions {doc-1:1 doc-2:2}, got %v", byDoc)
	}
}
