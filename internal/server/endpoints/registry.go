package endpoints

import (
	"github.com/folio-health/folio/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Document endpoints
		&UploadDocumentEndpoint{},
		&ListDocumentsEndpoint{},
		&GetDocumentEndpoint{},
		&ProcessDocumentEndpoint{},
		&GetPageEndpoint{},

		// Record endpoints
		&GetRecordEndpoint{},
		&ListRecordVersionsEndpoint{},
		&PatientRecordsEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&CancelJobEndpoint{},

		// Taxonomy and metrics endpoints
		&TaxonomyEndpoint{},
		&MetricsSummaryEndpoint{},
	}
}
