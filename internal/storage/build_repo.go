package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// BuildRepo records index builds.
type BuildRepo struct {
	db DBTX
}

// NewBuildRepo creates a new BuildRepo.
func NewBuildRepo(db DBTX) *BuildRepo {
	return &BuildRepo{db: db}
}

// Insert stores a build record, generating its ID when empty.
func (r *BuildRepo) Insert(ctx context.Context, b *BuildRecord) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO builds (id, built_at, backend, documents, empty_documents, extraction_failures,
		 chunks, links, chunker_version, index_version, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, formatTime(b.BuiltAt), b.Backend, b.Documents, b.EmptyDocuments, b.ExtractionFailures,
		b.Chunks, b.Links, b.ChunkerVersion, b.IndexVersion, b.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert build: %w", err)
	}
	return nil
}

// Latest returns the most recent build. Returns ErrNotFound if none exists.
func (r *BuildRepo) Latest(ctx context.Context) (*BuildRecord, error) {
	var b BuildRecord
	var builtAt string
	var durationMS int64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, built_at, backend, documents, empty_documents, extraction_failures,
		 chunks, links, chunker_version, index_version, duration_ms
		 FROM builds ORDER BY built_at DESC LIMIT 1`,
	).Scan(&b.ID, &builtAt, &b.Backend, &b.Documents, &b.EmptyDocuments, &b.ExtractionFailures,
		&b.Chunks, &b.Links, &b.ChunkerVersion, &b.IndexVersion, &durationMS)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query build: %w", err)
	}

	if b.BuiltAt, err = parseTime(builtAt); err != nil {
		return nil, fmt.Errorf("failed to parse built_at timestamp: %w", err)
	}
	b.Duration = time.Duration(durationMS) * time.Millisecond
	return &b, nil
}
