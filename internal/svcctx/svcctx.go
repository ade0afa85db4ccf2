// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/folio-health/folio/internal/capability"
	"github.com/folio-health/folio/internal/config"
	"github.com/folio-health/folio/internal/events"
	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/ingest"
	"github.com/folio-health/folio/internal/metrics"
	"github.com/folio-health/folio/internal/pipeline"
	"github.com/folio-health/folio/internal/store"
	"github.com/folio-health/folio/internal/taxonomy"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store     *store.Store
	Gate      *ingest.Gate
	Registry  *capability.Registry
	Scheduler *pipeline.Scheduler
	Taxonomy  *taxonomy.Taxonomy
	Events    *events.Bus
	Metrics   *metrics.Recorder
	ConfigMgr *config.Manager
	Logger    *slog.Logger
	Home      *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the record store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// GateFrom extracts the ingestion gate from context.
func GateFrom(ctx context.Context) *ingest.Gate {
	if s := ServicesFrom(ctx); s != nil {
		return s.Gate
	}
	return nil
}

// RegistryFrom extracts the capability registry from context.
func RegistryFrom(ctx context.Context) *capability.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// SchedulerFrom extracts the pipeline scheduler from context.
func SchedulerFrom(ctx context.Context) *pipeline.Scheduler {
	if s := ServicesFrom(ctx); s != nil {
		return s.Scheduler
	}
	return nil
}

// TaxonomyFrom extracts the field taxonomy from context.
func TaxonomyFrom(ctx context.Context) *taxonomy.Taxonomy {
	if s := ServicesFrom(ctx); s != nil {
		return s.Taxonomy
	}
	return nil
}

// EventsFrom extracts the event bus from context.
func EventsFrom(ctx context.Context) *events.Bus {
	if s := ServicesFrom(ctx); s != nil {
		return s.Events
	}
	return nil
}

// MetricsFrom extracts the metrics recorder from context.
func MetricsFrom(ctx context.Context) *metrics.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Metrics
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
