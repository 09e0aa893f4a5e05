package storage

import (
	"context"
	"fmt"
)

// DocumentRepo provides methods for document operations.
type DocumentRepo struct {
	db DBTX
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db DBTX) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// ReplaceAll deletes every document row and inserts docs.
func (r *DocumentRepo) ReplaceAll(ctx context.Context, docs []DocumentRecord) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	for _, d := range docs {
		_, err := r.db.ExecContext(ctx,
			"INSERT INTO documents (path, category, filename, mod_time, chunk_count) VALUES (?, ?, ?, ?, ?)",
			d.Path, d.Category, d.Filename, formatTime(d.ModTime), d.ChunkCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.Path, err)
		}
	}
	return nil
}

// List returns all documents ordered by category and path.
func (r *DocumentRepo) List(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT path, category, filename, mod_time, chunk_count FROM documents ORDER BY category, path",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		var modTime string
		if err := rows.Scan(&d.Path, &d.Category, &d.Filename, &modTime, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if d.ModTime, err = parseTime(modTime); err != nil {
			return nil, fmt.Errorf("failed to parse mod_time of %s: %w", d.Path, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}
