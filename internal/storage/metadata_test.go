package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vector_store.staging")
	modTime := time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC)

	snap := Snapshot{
		Documents: []DocumentRecord{
			{Path: "/kb/swav/vacation.pdf", Category: "swav", Filename: "vacation.pdf", ModTime: modTime, ChunkCount: 4},
			{Path: "/kb/dot/guide.md", Category: "dot", Filename: "guide.md", ModTime: modTime.Add(time.Hour), ChunkCount: 1},
		},
		Links: []string{"https://b.example", "https://a.example", "https://a.example"},
		Build: &BuildRecord{
			BuiltAt:        modTime,
			Backend:        "local",
			Documents:      3,
			EmptyDocuments: 1,
			Chunks:         5,
			Links:          2,
			ChunkerVersion: "v2.0",
			IndexVersion:   "abcdef0123456789",
			Duration:       1500 * time.Millisecond,
		},
	}

	if err := WriteSnapshot(ctx, dir, snap); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	if snap.Build.ID == "" {
		t.Error("WriteSnapshot() should assign a build ID")
	}

	got, err := ReadSnapshot(ctx, dir)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}

	if len(got.Documents) != 2 {
		t.Fatalf("ReadSnapshot() documents = %d, want 2", len(got.Documents))
	}
	// Ordered by category then path
	if got.Documents[0].Category != "dot" || got.Documents[1].Filename != "vacation.pdf" {
		t.Errorf("ReadSnapshot() documents = %+v", got.Documents)
	}
	if !got.Documents[1].ModTime.Equal(modTime) || got.Documents[1].ChunkCount != 4 {
		t.Errorf("ReadSnapshot() document = %+v", got.Documents[1])
	}

	if !slices.Equal(got.Links, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("ReadSnapshot() links = %v", got.Links)
	}

	if got.Build == nil {
		t.Fatal("ReadSnapshot() build is nil")
	}
	if got.Build.ID != snap.Build.ID || got.Build.Chunks != 5 || got.Build.Duration != 1500*time.Millisecond {
		t.Errorf("ReadSnapshot() build = %+v", got.Build)
	}
}

func TestWriteSnapshot_Replaces(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := Snapshot{
		Documents: []DocumentRecord{{Path: "/kb/a/old.txt", Category: "a", Filename: "old.txt", ModTime: time.Now()}},
		Links:     []string{"https://old.example"},
	}
	second := Snapshot{
		Documents: []DocumentRecord{{Path: "/kb/a/new.txt", Category: "a", Filename: "new.txt", ModTime: time.Now()}},
	}

	if err := WriteSnapshot(ctx, dir, first); err != nil {
		t.Fatalf("WriteSnapshot() first error = %v", err)
	}
	if err := WriteSnapshot(ctx, dir, second); err != nil {
		t.Fatalf("WriteSnapshot() second error = %v", err)
	}

	got, err := ReadSnapshot(ctx, dir)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if len(got.Documents) != 1 || got.Documents[0].Filename != "new.txt" {
		t.Errorf("ReadSnapshot() documents = %+v, want only new.txt", got.Documents)
	}
	if len(got.Links) != 0 {
		t.Errorf("ReadSnapshot() links = %v, want none", got.Links)
	}
	if got.Build != nil {
		t.Errorf("ReadSnapshot() build = %+v, want nil", got.Build)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	_, err := ReadSnapshot(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadSnapshot() error = %v, want ErrNotFound", err)
	}

	// A missing database file must not be created by reading.
	dir := t.TempDir()
	_, _ = ReadSnapshot(context.Background(), dir)
	if _, err := os.Stat(filepath.Join(dir, MetadataFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadSnapshot() created %s", MetadataFile)
	}
}
