package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/folio-health/folio/internal/api"
	"github.com/folio-health/folio/internal/store"
	"github.com/folio-health/folio/internal/svcctx"
	"github.com/folio-health/folio/internal/types"
)

// GetRecordEndpoint handles GET /api/documents/{id}/records/{version}.
// The version may be a number or the literal "latest".
type GetRecordEndpoint struct{}

var _ api.Endpoint = (*GetRecordEndpoint)(nil)

func (e *GetRecordEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/records/{version}", e.handler
}

func (e *GetRecordEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a structured record
//	@Tags		records
//	@Produce	json
//	@Param		id		path		string	true	"Document ID"
//	@Param		version	path		string	true	"Record version or 'latest'"
//	@Success	200	{object}	types.StructuredRecord
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/documents/{id}/records/{version} [get]
func (e *GetRecordEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	docID := r.PathValue("id")
	versionArg := r.PathValue("version")

	var (
		rec *types.StructuredRecord
		err error
	)
	if versionArg == "latest" {
		rec, err = st.GetLatestRecord(r.Context(), docID)
	} else {
		version, convErr := strconv.Atoi(versionArg)
		if convErr != nil || version < 1 {
			writeError(w, http.StatusBadRequest, "version must be a positive integer or 'latest'")
			return
		}
		rec, err = st.GetRecord(r.Context(), docID, version)
	}

	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *GetRecordEndpoint) Command(getServerURL func() string) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "record <document-id>",
		Short: "Get a document's structured record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var rec types.StructuredRecord
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0]+"/records/"+version, &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
	cmd.Flags().StringVar(&version, "version", "latest", "record version or 'latest'")
	return cmd
}

// ListRecordVersionsEndpoint handles GET /api/documents/{id}/records.
type ListRecordVersionsEndpoint struct{}

var _ api.Endpoint = (*ListRecordVersionsEndpoint)(nil)

func (e *ListRecordVersionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/records", e.handler
}

func (e *ListRecordVersionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List record versions for a document
//	@Tags		records
//	@Produce	json
//	@Param		id	path		string	true	"Document ID"
//	@Success	200	{array}		types.StructuredRecord
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/documents/{id}/records [get]
func (e *ListRecordVersionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	recs, err := svcctx.StoreFrom(r.Context()).ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []types.StructuredRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (e *ListRecordVersionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <document-id>",
		Short: "List record versions for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var recs []types.StructuredRecord
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0]+"/records", &recs); err != nil {
				return err
			}
			return api.Output(recs)
		},
	}
}

// PatientRecordsEndpoint handles GET /api/patients/{id}/records,
// returning the latest record per document for a patient.
type PatientRecordsEndpoint struct{}

var _ api.Endpoint = (*PatientRecordsEndpoint)(nil)

func (e *PatientRecordsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/patients/{id}/records", e.handler
}

func (e *PatientRecordsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Latest records for a patient
//	@Tags		records
//	@Produce	json
//	@Param		id	path		string	true	"Patient ID"
//	@Success	200	{array}		types.StructuredRecord
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/patients/{id}/records [get]
func (e *PatientRecordsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	recs, err := svcctx.StoreFrom(r.Context()).LatestRecordsByPatient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []types.StructuredRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (e *PatientRecordsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "patient <patient-id>",
		Short: "Get the latest records for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var recs []types.StructuredRecord
			if err := client.Get(cmd.Context(), "/api/patients/"+args[0]+"/records", &recs); err != nil {
				return err
			}
			return api.Output(recs)
		},
	}
}
