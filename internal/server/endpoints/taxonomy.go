package endpoints

import (
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/folio-health/folio/internal/api"
	"github.com/folio-health/folio/internal/svcctx"
	"github.com/folio-health/folio/internal/taxonomy"
)

// TaxonomyEndpoint handles GET /api/taxonomy.
type TaxonomyEndpoint struct{}

var _ api.Endpoint = (*TaxonomyEndpoint)(nil)

func (e *TaxonomyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/taxonomy", e.handler
}

func (e *TaxonomyEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get the active field taxonomy
//	@Tags		taxonomy
//	@Produce	json
//	@Success	200	{array}		taxonomy.Entry
//	@Router		/api/taxonomy [get]
func (e *TaxonomyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	tax := svcctx.TaxonomyFrom(r.Context())
	writeJSON(w, http.StatusOK, tax.Entries())
}

func (e *TaxonomyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "taxonomy",
		Short: "Show the active field taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var entries []taxonomy.Entry
			if err := client.Get(cmd.Context(), "/api/taxonomy", &entries); err != nil {
				return err
			}
			return api.Output(entries)
		},
	}
}

// MetricsSummaryEndpoint handles GET /api/metrics/summary.
type MetricsSummaryEndpoint struct{}

var _ api.Endpoint = (*MetricsSummaryEndpoint)(nil)

func (e *MetricsSummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/summary", e.handler
}

func (e *MetricsSummaryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Capability call metrics
//	@Tags		metrics
//	@Produce	json
//	@Param		hours	query		int	false	"Trailing window in hours (default 24)"
//	@Success	200	{array}		metrics.ProviderSummary
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/metrics/summary [get]
func (e *MetricsSummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	if hours <= 0 {
		hours = 24
	}

	summary, err := svcctx.MetricsFrom(r.Context()).Summary(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (e *MetricsSummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show capability call metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var summary []map[string]any
			path := "/api/metrics/summary?hours=" + strconv.Itoa(hours)
			if err := client.Get(cmd.Context(), path, &summary); err != nil {
				return err
			}
			return api.Output(summary)
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "trailing window in hours")
	return cmd
}
