package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/folio-health/folio/internal/api"
	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/ingest"
	"github.com/folio-health/folio/internal/store"
	"github.com/folio-health/folio/internal/svcctx"
	"github.com/folio-health/folio/internal/types"
)

// testServer serves the full endpoint set against a real temp store
// and ingestion gate.
func testServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create home: %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("failed to ensure home: %v", err)
	}

	st, err := store.Open(h.DatabasePath())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	services := &svcctx.Services{
		Store: st,
		Gate:  ingest.New(ingest.Config{}, h),
		Home:  h,
	}

	registry := api.NewRegistry()
	for _, ep := range All() {
		registry.Register(ep)
	}

	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
		return next
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	}))
	t.Cleanup(server.Close)
	return server, st
}

func seedRecord(t *testing.T, st *store.Store, docID, patientID string, versions int) {
	t.Helper()
	ctx := context.Background()

	if err := st.CreateDocument(ctx, &types.Document{
		ID:         docID,
		PatientID:  patientID,
		SourceType: types.SourceLabReport,
		PageCount:  1,
		Status:     types.DocStatusProcessed,
		IngestedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to create document: %v", err)
	}

	norm := "95"
	num := 95.0
	for v := 0; v < versions; v++ {
		rec := &types.StructuredRecord{
			DocumentID:        docID,
			OverallConfidence: 0.81,
			Fields: map[string]types.ExtractedField{
				"glucose": {
					RegionID: "r1", Field: "glucose", PageNo: 1,
					DetectorLabel: "glucose", DetectorConf: 0.9,
					RawText: "95 mg/dL", Normalized: &norm, Numeric: &num,
					Unit: "mg/dL", OCRConf: 0.9,
				},
			},
		}
		if _, err := st.AppendRecord(ctx, rec); err != nil {
			t.Fatalf("failed to append record: %v", err)
		}
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testServer(t)

	var resp HealthResponse
	getJSON(t, server.URL+"/health", http.StatusOK, &resp)
	if resp.Status != "ok" {
		t.Errorf("expected ok, got %s", resp.Status)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, _ := testServer(t)

	var resp HealthResponse
	getJSON(t, server.URL+"/ready", http.StatusOK, &resp)
	if resp.Status != "ok" || resp.Store != "ok" {
		t.Errorf("unexpected readiness: %+v", resp)
	}
}

func TestGetRecordEndpoint(t *testing.T) {
	server, st := testServer(t)
	seedRecord(t, st, "doc-1", "patient-a", 3)

	t.Run("specific version", func(t *testing.T) {
		var rec types.StructuredRecord
		getJSON(t, server.URL+"/api/documents/doc-1/records/2", http.StatusOK, &rec)
		if rec.Version != 2 {
			t.Errorf("expected version 2, got %d", rec.Version)
		}
		if _, ok := rec.Fields["glucose"]; !ok {
			t.Errorf("expected glucose field, got %v", rec.Fields)
		}
	})

	t.Run("latest", func(t *testing.T) {
		var rec types.StructuredRecord
		getJSON(t, server.URL+"/api/documents/doc-1/records/latest", http.StatusOK, &rec)
		if rec.Version != 3 {
			t.Errorf("expected version 3, got %d", rec.Version)
		}
	})

	t.Run("invalid version", func(t *testing.T) {
		getJSON(t, server.URL+"/api/documents/doc-1/records/zero", http.StatusBadRequest, nil)
		getJSON(t, server.URL+"/api/documents/doc-1/records/0", http.StatusBadRequest, nil)
	})

	t.Run("missing version", func(t *testing.T) {
		getJSON(t, server.URL+"/api/documents/doc-1/records/99", http.StatusNotFound, nil)
	})

	t.Run("unknown document", func(t *testing.T) {
		getJSON(t, server.URL+"/api/documents/nope/records/latest", http.StatusNotFound, nil)
	})
}

func TestListRecordVersionsEndpoint(t *testing.T) {
	server, st := testServer(t)
	seedRecord(t, st, "doc-1", "patient-a", 2)

	var recs []types.StructuredRecord
	getJSON(t, server.URL+"/api/documents/doc-1/records", http.StatusOK, &recs)
	if len(recs) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(recs))
	}
	if recs[0].Version != 1 || recs[1].Version != 2 {
		t.Errorf("expected ascending versions, got %v", recs)
	}

	t.Run("no versions is empty list", func(t *testing.T) {
		var empty []types.StructuredRecord
		getJSON(t, server.URL+"/api/documents/other/records", http.StatusOK, &empty)
		if empty == nil || len(empty) != 0 {
			t.Errorf("expected empty list, got %v", empty)
		}
	})
}

func TestPatientRecordsEndpoint(t *testing.T) {
	server, st := testServer(t)
	seedRecord(t, st, "doc-1", "patient-a", 2)
	seedRecord(t, st, "doc-2", "patient-b", 1)

	var recs []types.StructuredRecord
	getJSON(t, server.URL+"/api/patients/patient-a/records", http.StatusOK, &recs)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].DocumentID != "doc-1" || recs[0].Version != 2 {
		t.Errorf("expected latest record of doc-1, got %+v", recs[0])
	}
}

// testPagePNG renders a white w×h page image.
func testPagePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

// uploadDoc posts a multipart upload and decodes the response when the
// status indicates success.
func uploadDoc(t *testing.T, serverURL string, fields map[string]string, payload []byte, wantStatus int) UploadResponse {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "page.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	mw.Close()

	resp, err := http.Post(serverURL+"/api/documents", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("upload status = %d, want %d", resp.StatusCode, wantStatus)
	}

	var out UploadResponse
	if wantStatus < 300 {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("failed to decode upload response: %v", err)
		}
	}
	return out
}

func TestUploadDocumentEndpoint(t *testing.T) {
	server, st := testServer(t)
	ctx := context.Background()

	t.Run("new document", func(t *testing.T) {
		resp := uploadDoc(t, server.URL, map[string]string{
			"patient_id":  "patient-a",
			"source_type": "lab_report",
		}, testPagePNG(t, 80, 60), http.StatusAccepted)

		if resp.DocumentID == "" || resp.PageCount != 1 {
			t.Fatalf("unexpected upload response: %+v", resp)
		}
		doc, err := st.GetDocument(ctx, resp.DocumentID)
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if doc.Status != types.DocStatusIngested || doc.PatientID != "patient-a" {
			t.Errorf("unexpected document: %+v", doc)
		}
	})

	t.Run("missing patient_id", func(t *testing.T) {
		uploadDoc(t, server.URL, nil, testPagePNG(t, 10, 10), http.StatusBadRequest)
	})

	t.Run("rejected payload", func(t *testing.T) {
		uploadDoc(t, server.URL, map[string]string{"patient_id": "patient-a"},
			[]byte("plain text, not a document"), http.StatusBadRequest)
	})

	t.Run("reingest existing document", func(t *testing.T) {
		first := uploadDoc(t, server.URL, map[string]string{
			"patient_id": "patient-b",
		}, testPagePNG(t, 80, 60), http.StatusAccepted)

		second := uploadDoc(t, server.URL, map[string]string{
			"document_id": first.DocumentID,
		}, testPagePNG(t, 40, 30), http.StatusAccepted)

		if second.DocumentID != first.DocumentID {
			t.Errorf("expected same document, got %s", second.DocumentID)
		}
		page, err := st.GetPage(ctx, first.DocumentID, 1)
		if err != nil {
			t.Fatalf("GetPage failed: %v", err)
		}
		if page.Width != 40 || page.Height != 30 {
			t.Errorf("expected replaced raster 40x30, got %dx%d", page.Width, page.Height)
		}
		doc, err := st.GetDocument(ctx, first.DocumentID)
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if doc.PageCount != 1 || doc.Status != types.DocStatusIngested {
			t.Errorf("unexpected document after re-ingest: %+v", doc)
		}
	})

	t.Run("reingest unknown document", func(t *testing.T) {
		uploadDoc(t, server.URL, map[string]string{"document_id": "nope"},
			testPagePNG(t, 10, 10), http.StatusNotFound)
	})
}

func TestDocumentEndpoints(t *testing.T) {
	server, st := testServer(t)
	seedRecord(t, st, "doc-1", "patient-a", 1)

	t.Run("get document", func(t *testing.T) {
		var doc types.Document
		getJSON(t, server.URL+"/api/documents/doc-1", http.StatusOK, &doc)
		if doc.PatientID != "patient-a" {
			t.Errorf("unexpected document: %+v", doc)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		getJSON(t, server.URL+"/api/documents/nope", http.StatusNotFound, nil)
	})

	t.Run("list by patient", func(t *testing.T) {
		var docs []types.Document
		getJSON(t, server.URL+"/api/documents?patient_id=patient-a", http.StatusOK, &docs)
		if len(docs) != 1 {
			t.Errorf("expected 1 document, got %d", len(docs))
		}
	})
}
