// Package metrics records capability call outcomes in the store so
// operators can see provider health and throughput without an external
// metrics stack.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Recorder writes capability call samples.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecorder creates a recorder backed by the store database.
func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		db:     db,
		logger: logger.With("component", "metrics"),
	}
}

// RecordCall logs one capability invocation. Failures to record are
// logged and swallowed; metrics never fail a pipeline run.
func (r *Recorder) RecordCall(ctx context.Context, provider, operation, documentID string, success bool, duration time.Duration) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO capability_calls (provider, operation, document_id, success, duration_ms, called_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		provider, operation, documentID, success, duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		r.logger.Warn("failed to record capability call",
			"provider", provider,
			"operation", operation,
			"error", err)
	}
}

// ProviderSummary aggregates call outcomes for one provider+operation.
type ProviderSummary struct {
	Provider      string  `json:"provider"`
	Operation     string  `json:"operation"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Summary aggregates capability calls over the trailing window.
func (r *Recorder) Summary(ctx context.Context, window time.Duration) ([]ProviderSummary, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, operation,
		        COUNT(*),
		        SUM(CASE WHEN success THEN 0 ELSE 1 END),
		        AVG(duration_ms)
		 FROM capability_calls
		 WHERE called_at >= ?
		 GROUP BY provider, operation
		 ORDER BY provider, operation`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderSummary
	for rows.Next() {
		var s ProviderSummary
		if err := rows.Scan(&s.Provider, &s.Operation, &s.Calls, &s.Failures, &s.AvgDurationMS); err != nil {
			return nil, err
		}
		if s.Calls > 0 {
			s.SuccessRate = float64(s.Calls-s.Failures) / float64(s.Calls)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
