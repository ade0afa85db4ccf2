package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/folio-health/folio/internal/api"
	"github.com/folio-health/folio/internal/ingest"
	"github.com/folio-health/folio/internal/pipeline"
	"github.com/folio-health/folio/internal/store"
	"github.com/folio-health/folio/internal/svcctx"
	"github.com/folio-health/folio/internal/types"
)

// UploadResponse is returned after a successful document upload.
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	PageCount  int    `json:"page_count"`
	Status     string `json:"status"`
	JobID      string `json:"job_id,omitempty"`
}

// UploadDocumentEndpoint handles POST /api/documents with a multipart upload.
type UploadDocumentEndpoint struct{}

var _ api.Endpoint = (*UploadDocumentEndpoint)(nil)

func (e *UploadDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents", e.handler
}

func (e *UploadDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload a clinical document
//	@Description	Upload a PDF or image for extraction
//	@Tags			documents
//	@Accept			mpfd
//	@Produce		json
//	@Param			file		formData	file	true	"PDF or image to ingest"
//	@Param			patient_id	formData	string	false	"Patient identifier (required for new documents)"
//	@Param			source_type	formData	string	false	"lab_report, embryology_sheet, prescription, other"
//	@Param			document_id	formData	string	false	"Re-ingest into an existing document"
//	@Param			process		formData	bool	false	"Start extraction immediately"
//	@Success		202	{object}	UploadResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/documents [post]
func (e *UploadDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 64 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	process := r.FormValue("process") == "true"

	gate := svcctx.GateFrom(r.Context())
	st := svcctx.StoreFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())

	var (
		doc   *types.Document
		pages []types.Page
	)
	if existingID := r.FormValue("document_id"); existingID != "" {
		// Re-ingest: overwrite the existing document's pages in place.
		doc, err = st.GetDocument(r.Context(), existingID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		pages, err = gate.Reingest(r.Context(), doc, payload)
		if err != nil {
			var ingErr *ingest.IngestionError
			if errors.As(err, &ingErr) {
				writeError(w, http.StatusBadRequest, ingErr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("ingestion failed: %v", err))
			return
		}

		for _, page := range pages {
			if err := st.UpsertPage(r.Context(), &page); err != nil {
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store page: %v", err))
				return
			}
		}
		if err := st.DeletePagesAbove(r.Context(), doc.ID, len(pages)); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to prune pages: %v", err))
			return
		}
		if err := st.UpdateDocumentIngest(r.Context(), doc.ID, len(pages)); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to update document: %v", err))
			return
		}
		doc.PageCount = len(pages)
		doc.Status = types.DocStatusIngested
	} else {
		patientID := r.FormValue("patient_id")
		if patientID == "" {
			writeError(w, http.StatusBadRequest, "patient_id is required")
			return
		}
		sourceType := types.SourceType(r.FormValue("source_type"))
		if sourceType == "" {
			sourceType = types.SourceOther
		}

		doc, pages, err = gate.Ingest(r.Context(), payload, patientID, sourceType)
		if err != nil {
			var ingErr *ingest.IngestionError
			if errors.As(err, &ingErr) {
				writeError(w, http.StatusBadRequest, ingErr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("ingestion failed: %v", err))
			return
		}

		if err := st.CreateDocument(r.Context(), doc); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store document: %v", err))
			return
		}
		for _, page := range pages {
			if err := st.UpsertPage(r.Context(), &page); err != nil {
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store page: %v", err))
				return
			}
		}
	}

	resp := UploadResponse{
		DocumentID: doc.ID,
		PageCount:  doc.PageCount,
		Status:     string(doc.Status),
	}

	if process {
		scheduler := svcctx.SchedulerFrom(r.Context())
		job, err := scheduler.Submit(r.Context(), doc.ID)
		if err != nil {
			// Ingest succeeded; report the document but note the run didn't start.
			if logger != nil {
				logger.Error("failed to submit extraction job", "error", err, "document_id", doc.ID)
			}
		} else {
			resp.JobID = job.ID
			resp.Status = string(types.DocStatusProcessing)
		}
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (e *UploadDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		patientID  string
		sourceType string
		documentID string
		process    bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a clinical document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			fields := map[string]string{
				"patient_id":  patientID,
				"source_type": sourceType,
				"document_id": documentID,
				"process":     strconv.FormatBool(process),
			}
			var resp UploadResponse
			if err := client.Upload(cmd.Context(), "/api/documents", args[0], fields, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&patientID, "patient", "", "patient identifier (required for new documents)")
	cmd.Flags().StringVar(&sourceType, "source", "other", "source type: lab_report, embryology_sheet, prescription, other")
	cmd.Flags().StringVar(&documentID, "document", "", "re-ingest into an existing document")
	cmd.Flags().BoolVar(&process, "process", true, "start extraction immediately")
	return cmd
}

// ListDocumentsEndpoint handles GET /api/documents.
type ListDocumentsEndpoint struct{}

var _ api.Endpoint = (*ListDocumentsEndpoint)(nil)

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents", e.handler
}

func (e *ListDocumentsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List documents
//	@Tags		documents
//	@Produce	json
//	@Param		patient_id	query		string	false	"Filter by patient"
//	@Param		limit		query		int		false	"Max results (default 100)"
//	@Success	200	{array}		types.Document
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/documents [get]
func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	docs, err := svcctx.StoreFrom(r.Context()).ListDocuments(r.Context(), r.URL.Query().Get("patient_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []types.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var patientID string
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/documents"
			if patientID != "" {
				path += "?patient_id=" + patientID
			}
			var docs []types.Document
			if err := client.Get(cmd.Context(), path, &docs); err != nil {
				return err
			}
			return api.Output(docs)
		},
	}
	cmd.Flags().StringVar(&patientID, "patient", "", "filter by patient identifier")
	return cmd
}

// GetDocumentEndpoint handles GET /api/documents/{id}.
type GetDocumentEndpoint struct{}

var _ api.Endpoint = (*GetDocumentEndpoint)(nil)

func (e *GetDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}", e.handler
}

func (e *GetDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a document
//	@Tags		documents
//	@Produce	json
//	@Param		id	path		string	true	"Document ID"
//	@Success	200	{object}	types.Document
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/documents/{id} [get]
func (e *GetDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	doc, err := svcctx.StoreFrom(r.Context()).GetDocument(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (e *GetDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "document <id>",
		Short: "Get a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var doc types.Document
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0], &doc); err != nil {
				return err
			}
			return api.Output(doc)
		},
	}
}

// ProcessDocumentEndpoint handles POST /api/documents/{id}/process.
type ProcessDocumentEndpoint struct{}

var _ api.Endpoint = (*ProcessDocumentEndpoint)(nil)

func (e *ProcessDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/{id}/process", e.handler
}

func (e *ProcessDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start an extraction run
//	@Description	Queues a pipeline run; rejects if one is already active for the document
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		202	{object}	types.Job
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/documents/{id}/process [post]
func (e *ProcessDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scheduler := svcctx.SchedulerFrom(r.Context())

	job, err := scheduler.Submit(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, pipeline.ErrJobActive):
		writeError(w, http.StatusConflict, "document already has an active job")
	case errors.Is(err, pipeline.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "job queue is full")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (e *ProcessDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "process <document-id>",
		Short: "Start an extraction run for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var job types.Job
			if err := client.Post(cmd.Context(), "/api/documents/"+args[0]+"/process", nil, &job); err != nil {
				return err
			}
			return api.Output(job)
		},
	}
}

// GetPageEndpoint handles GET /api/documents/{id}/pages/{page} and
// serves the rasterized page image.
type GetPageEndpoint struct{}

var _ api.Endpoint = (*GetPageEndpoint)(nil)

func (e *GetPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/pages/{page}", e.handler
}

func (e *GetPageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a page raster
//	@Tags		documents
//	@Produce	png
//	@Param		id		path	string	true	"Document ID"
//	@Param		page	path	int		true	"Page number (1-indexed)"
//	@Success	200
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/documents/{id}/pages/{page} [get]
func (e *GetPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	pageNo, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || pageNo < 1 {
		writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}

	page, err := svcctx.StoreFrom(r.Context()).GetPage(r.Context(), r.PathValue("id"), pageNo)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, page.Path)
}

func (e *GetPageEndpoint) Command(_ func() string) *cobra.Command {
	// Binary responses don't fit the structured output model.
	return nil
}
