package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Repository stores document records in po_documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert records a generated document.
func (r *Repository) Insert(ctx context.Context, doc Document) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO po_documents (id, po_id, po_number, po_status, object_key, url, size_bytes, generated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		doc.ID, doc.POID, doc.PONumber, doc.Status, doc.Key, doc.URL, doc.Size, doc.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert po document: %w", err)
	}
	return nil
}

// Latest returns the newest document of poID.
func (r *Repository) Latest(ctx context.Context, poID string) (Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx, `SELECT id, po_id, po_number, po_status, object_key, url, size_bytes, generated_at
FROM po_documents WHERE po_id = $1 ORDER BY generated_at DESC LIMIT 1`, poID).
		Scan(&doc.ID, &doc.POID, &doc.PONumber, &doc.Status, &doc.Key, &doc.URL, &doc.Size, &doc.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: no document for purchase order %s", shared.ErrNotFound, poID)
	}
	if err != nil {
		return Document{}, fmt.Errorf("latest po document: %w", err)
	}
	return doc, nil
}
