package kb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// lockFilePrefix marks temporary owner files written by office suites.
const lockFilePrefix = "~$"

// SupportedExtensions lists the file extensions that are indexed (lowercase).
var SupportedExtensions = []string{".pdf", ".docx", ".doc", ".html", ".htm", ".txt", ".md"}

// IsSupported reports whether path has a supported extension and is not an office lock file.
func IsSupported(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, lockFilePrefix) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan walks the knowledge base root and groups supported files by category.
// Only immediate subdirectories of root are categories; files inside them are
// found recursively. Categories without qualifying files are omitted.
// A missing root yields an empty result, not an error.
func Scan(ctx context.Context, root string) (Categories, error) {
	categories := make(Categories)

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return categories, nil
		}
		return nil, fmt.Errorf("failed to read knowledge base root %s: %w", root, err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve knowledge base root %s: %w", root, err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !entry.IsDir() || IsHidden(entry.Name()) {
			continue
		}

		categoryPath := filepath.Join(absRoot, entry.Name())
		files, err := scanCategory(ctx, categoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category %s: %w", entry.Name(), err)
		}
		if len(files) > 0 {
			categories[entry.Name()] = files
		}
	}

	return categories, nil
}

func scanCategory(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			// Tool metadata directories (.git, .obsidian) never hold documents.
			if path != dir && IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !IsSupported(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// IsHidden reports whether a file or directory name is hidden (dot-prefixed).
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
