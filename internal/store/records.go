package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/folio-health/folio/internal/types"
)

// AppendRecord persists a structured record as the next version for
// its document and returns the assigned version number. The version is
// assigned inside the same transaction that inserts the record, so
// concurrent appends to one document can never produce gaps or
// duplicates. The record's fields are written atomically with the
// record row; a failed append leaves no partial state.
func (s *Store) AppendRecord(ctx context.Context, rec *types.StructuredRecord) (int, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var version int
	err := retry.Do(
		func() error {
			return s.inTx(ctx, func(tx *sql.Tx) error {
				row := tx.QueryRowContext(ctx,
					`SELECT COALESCE(MAX(version), 0) + 1 FROM records WHERE document_id = ?`,
					rec.DocumentID)
				if err := row.Scan(&version); err != nil {
					return err
				}

				flags := make([]string, len(rec.ValidationFlags))
				for i, f := range rec.ValidationFlags {
					flags[i] = string(f)
				}

				if _, err := tx.ExecContext(ctx,
					`INSERT INTO records (document_id, version, overall_confidence, validation_flags, unmapped_regions, created_at)
					 VALUES (?, ?, ?, ?, ?, ?)`,
					rec.DocumentID, version, rec.OverallConfidence,
					strings.Join(flags, ","), rec.UnmappedRegions, rec.CreatedAt); err != nil {
					return err
				}

				for _, f := range sortedFields(rec.Fields) {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO record_fields
						 (document_id, version, field, region_id, page_no, x1, y1, x2, y2,
						  detector_label, detector_conf, raw_text, normalized, numeric_value, unit, ocr_conf)
						 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
						rec.DocumentID, version, f.Field, f.RegionID, f.PageNo,
						f.Box.X1, f.Box.Y1, f.Box.X2, f.Box.Y2,
						f.DetectorLabel, f.DetectorConf, f.RawText,
						f.Normalized, f.Numeric, f.Unit, f.OCRConf); err != nil {
						return err
					}
				}
				return nil
			})
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// UNIQUE violations mean a concurrent append won the version;
			// re-running the transaction assigns the next one.
			return isBusyError(err) || strings.Contains(err.Error(), "UNIQUE constraint failed")
		}),
	)
	if err != nil {
		return 0, &PersistenceError{Op: "append record", Err: err}
	}

	rec.Version = version
	return version, nil
}

// GetRecord fetches one version of a document's structured record.
func (s *Store) GetRecord(ctx context.Context, documentID string, version int) (*types.StructuredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document_id, version, overall_confidence, validation_flags, unmapped_regions, created_at
		 FROM records WHERE document_id = ? AND version = ?`, documentID, version)
	return s.scanRecord(ctx, row)
}

// GetLatestRecord fetches the highest-version record for a document.
func (s *Store) GetLatestRecord(ctx context.Context, documentID string) (*types.StructuredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document_id, version, overall_confidence, validation_flags, unmapped_regions, created_at
		 FROM records WHERE document_id = ?
		 ORDER BY version DESC LIMIT 1`, documentID)
	return s.scanRecord(ctx, row)
}

// ListVersions returns the record versions available for a document in
// ascending order, without their fields.
func (s *Store) ListVersions(ctx context.Context, documentID string) ([]types.StructuredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, version, overall_confidence, validation_flags, unmapped_regions, created_at
		 FROM records WHERE document_id = ? ORDER BY version`, documentID)
	if err != nil {
		return nil, &PersistenceError{Op: "list versions", Err: err}
	}
	defer rows.Close()

	var out []types.StructuredRecord
	for rows.Next() {
		var rec types.StructuredRecord
		var flags string
		if err := rows.Scan(&rec.DocumentID, &rec.Version, &rec.OverallConfidence,
			&flags, &rec.UnmappedRegions, &rec.CreatedAt); err != nil {
			return nil, &PersistenceError{Op: "scan record", Err: err}
		}
		rec.ValidationFlags = parseFlags(flags)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestRecordsByPatient returns the latest record per document for all
// of a patient's documents, newest document first.
func (s *Store) LatestRecordsByPatient(ctx context.Context, patientID string) ([]types.StructuredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.document_id, r.version, r.overall_confidence, r.validation_flags, r.unmapped_regions, r.created_at
		 FROM records r
		 JOIN documents d ON d.id = r.document_id
		 WHERE d.patient_id = ?
		   AND r.version = (SELECT MAX(version) FROM records WHERE document_id = r.document_id)
		 ORDER BY d.ingested_at DESC`, patientID)
	if err != nil {
		return nil, &PersistenceError{Op: "latest records by patient", Err: err}
	}
	defer rows.Close()

	var out []types.StructuredRecord
	for rows.Next() {
		var rec types.StructuredRecord
		var flags string
		if err := rows.Scan(&rec.DocumentID, &rec.Version, &rec.OverallConfidence,
			&flags, &rec.UnmappedRegions, &rec.CreatedAt); err != nil {
			return nil, &PersistenceError{Op: "scan record", Err: err}
		}
		rec.ValidationFlags = parseFlags(flags)
		if err := s.loadFields(ctx, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) scanRecord(ctx context.Context, row *sql.Row) (*types.StructuredRecord, error) {
	var rec types.StructuredRecord
	var flags string
	err := row.Scan(&rec.DocumentID, &rec.Version, &rec.OverallConfidence,
		&flags, &rec.UnmappedRegions, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get record", Err: err}
	}
	rec.ValidationFlags = parseFlags(flags)

	if err := s.loadFields(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) loadFields(ctx context.Context, rec *types.StructuredRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, region_id, page_no, x1, y1, x2, y2,
		        detector_label, detector_conf, raw_text, normalized, numeric_value, unit, ocr_conf
		 FROM record_fields WHERE document_id = ? AND version = ?`,
		rec.DocumentID, rec.Version)
	if err != nil {
		return &PersistenceError{Op: "load record fields", Err: err}
	}
	defer rows.Close()

	rec.Fields = make(map[string]types.ExtractedField)
	for rows.Next() {
		var f types.ExtractedField
		if err := rows.Scan(&f.Field, &f.RegionID, &f.PageNo,
			&f.Box.X1, &f.Box.Y1, &f.Box.X2, &f.Box.Y2,
			&f.DetectorLabel, &f.DetectorConf, &f.RawText,
			&f.Normalized, &f.Numeric, &f.Unit, &f.OCRConf); err != nil {
			return &PersistenceError{Op: "scan record field", Err: err}
		}
		rec.Fields[f.Field] = f
	}
	return rows.Err()
}

func parseFlags(s string) []types.FlagCode {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]types.FlagCode, 0, len(parts))
	for _, p := range parts {
		out = append(out, types.FlagCode(p))
	}
	return out
}

func sortedFields(m map[string]types.ExtractedField) []types.ExtractedField {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]types.ExtractedField, 0, len(m))
	for _, name := range names {
		out = append(out, m[name])
	}
	return out
}
