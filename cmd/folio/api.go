package main

import (
	"github.com/spf13/cobra"

	"github.com/folio-health/folio/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Folio server via HTTP.

These commands require a running server (folio serve).
Use --server to specify a custom server URL.

Examples:
  folio api health                       # Check server health
  folio api docs upload report.pdf       # Upload a document
  folio api records record <doc-id>      # Get the latest structured record`,
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Document management commands",
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Structured record commands",
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Pipeline job commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8580", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.TaxonomyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.MetricsSummaryEndpoint{}).Command(getServerURL))

	// Documents as subcommand group
	docsCmd.AddCommand((&endpoints.UploadDocumentEndpoint{}).Command(getServerURL))
	docsCmd.AddCommand((&endpoints.ListDocumentsEndpoint{}).Command(getServerURL))
	docsCmd.AddCommand((&endpoints.GetDocumentEndpoint{}).Command(getServerURL))
	docsCmd.AddCommand((&endpoints.ProcessDocumentEndpoint{}).Command(getServerURL))

	// Records as subcommand group
	recordsCmd.AddCommand((&endpoints.GetRecordEndpoint{}).Command(getServerURL))
	recordsCmd.AddCommand((&endpoints.ListRecordVersionsEndpoint{}).Command(getServerURL))
	recordsCmd.AddCommand((&endpoints.PatientRecordsEndpoint{}).Command(getServerURL))

	// Jobs as subcommand group
	jobsCmd.AddCommand((&endpoints.ListJobsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.GetJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.CancelJobEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(docsCmd)
	apiCmd.AddCommand(recordsCmd)
	apiCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(apiCmd)
}
