package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"kbassist/internal/contextutil"
)

// MetadataFile is the name of the metadata database inside a store directory.
const MetadataFile = "metadata.db"

// Snapshot is the file metadata persisted alongside a vector store.
type Snapshot struct {
	Documents []DocumentRecord
	Links     []string
	Build     *BuildRecord
}

// WriteSnapshot writes snap into dir/metadata.db, replacing any previous content,
// in a single transaction.
func WriteSnapshot(ctx context.Context, dir string, snap Snapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	db, err := New(filepath.Join(dir, MetadataFile))
	if err != nil {
		return fmt.Errorf("failed to open metadata database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate metadata database: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := NewDocumentRepo(tx).ReplaceAll(ctx, snap.Documents); err != nil {
		return err
	}
	if err := NewLinkRepo(tx).ReplaceAll(ctx, snap.Links); err != nil {
		return err
	}
	if snap.Build != nil {
		if err := NewBuildRepo(tx).Insert(ctx, snap.Build); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "wrote metadata",
		"dir", dir, "documents", len(snap.Documents), "links", len(snap.Links))
	return nil
}

// ReadSnapshot reads dir/metadata.db. Returns ErrNotFound if the database does not exist.
// Build is nil when no build has been recorded.
func ReadSnapshot(ctx context.Context, dir string) (*Snapshot, error) {
	path := filepath.Join(dir, MetadataFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat metadata database: %w", err)
	}

	db, err := New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate metadata database: %w", err)
	}

	var snap Snapshot
	if snap.Documents, err = NewDocumentRepo(db).List(ctx); err != nil {
		return nil, err
	}
	if snap.Links, err = NewLinkRepo(db).List(ctx); err != nil {
		return nil, err
	}
	build, err := NewBuildRepo(db).Latest(ctx)
	switch {
	case err == nil:
		snap.Build = build
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return &snap, nil
}
