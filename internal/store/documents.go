package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/folio-health/folio/internal/types"
)

// CreateDocument inserts a new document row.
func (s *Store) CreateDocument(ctx context.Context, doc *types.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, patient_id, source_type, page_count, status, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.PatientID, doc.SourceType, doc.PageCount, doc.Status, doc.IngestedAt)
	if err != nil {
		return &PersistenceError{Op: "create document", Err: err}
	}
	return nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, source_type, page_count, status, ingested_at
		 FROM documents WHERE id = ?`, id)

	var doc types.Document
	err := row.Scan(&doc.ID, &doc.PatientID, &doc.SourceType, &doc.PageCount, &doc.Status, &doc.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get document", Err: err}
	}
	return &doc, nil
}

// ListDocuments returns documents newest first, optionally filtered by patient.
func (s *Store) ListDocuments(ctx context.Context, patientID string, limit int) ([]types.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, patient_id, source_type, page_count, status, ingested_at
	          FROM documents`
	args := []any{}
	if patientID != "" {
		query += ` WHERE patient_id = ?`
		args = append(args, patientID)
	}
	query += ` ORDER BY ingested_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "list documents", Err: err}
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(&doc.ID, &doc.PatientID, &doc.SourceType, &doc.PageCount, &doc.Status, &doc.IngestedAt); err != nil {
			return nil, &PersistenceError{Op: "scan document", Err: err}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus moves a document through its lifecycle.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return &PersistenceError{Op: "update document status", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentIngest resets a document's page count and returns it
// to the ingested state after a re-ingest.
func (s *Store) UpdateDocumentIngest(ctx context.Context, id string, pageCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET page_count = ?, status = ?, ingested_at = ? WHERE id = ?`,
		pageCount, types.DocStatusIngested, time.Now().UTC(), id)
	if err != nil {
		return &PersistenceError{Op: "update document ingest", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPage records a rasterized page. Re-ingesting the same page is
// idempotent; the raster path and dimensions simply win.
func (s *Store) UpsertPage(ctx context.Context, page *types.Page) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (document_id, page_no, path, width, height)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (document_id, page_no)
		 DO UPDATE SET path = excluded.path, width = excluded.width, height = excluded.height`,
		page.DocumentID, page.PageNo, page.Path, page.Width, page.Height)
	if err != nil {
		return &PersistenceError{Op: "upsert page", Err: err}
	}
	return nil
}

// DeletePagesAbove removes page rows past a re-ingested document's
// new page count.
func (s *Store) DeletePagesAbove(ctx context.Context, documentID string, maxPageNo int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pages WHERE document_id = ? AND page_no > ?`, documentID, maxPageNo)
	if err != nil {
		return &PersistenceError{Op: "delete pages", Err: err}
	}
	return nil
}

// GetPages returns a document's pages in page order.
func (s *Store) GetPages(ctx context.Context, documentID string) ([]types.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, page_no, path, width, height
		 FROM pages WHERE document_id = ? ORDER BY page_no`, documentID)
	if err != nil {
		return nil, &PersistenceError{Op: "get pages", Err: err}
	}
	defer rows.Close()

	var pages []types.Page
	for rows.Next() {
		var p types.Page
		if err := rows.Scan(&p.DocumentID, &p.PageNo, &p.Path, &p.Width, &p.Height); err != nil {
			return nil, &PersistenceError{Op: "scan page", Err: err}
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetPage returns one page of a document.
func (s *Store) GetPage(ctx context.Context, documentID string, pageNo int) (*types.Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document_id, page_no, path, width, height
		 FROM pages WHERE document_id = ? AND page_no = ?`, documentID, pageNo)

	var p types.Page
	err := row.Scan(&p.DocumentID, &p.PageNo, &p.Path, &p.Width, &p.Height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get page", Err: err}
	}
	return &p, nil
}
