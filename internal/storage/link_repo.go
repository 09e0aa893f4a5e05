package storage

import (
	"context"
	"fmt"
)

// LinkRepo stores the hyperlinks discovered during the last build.
type LinkRepo struct {
	db DBTX
}

// NewLinkRepo creates a new LinkRepo.
func NewLinkRepo(db DBTX) *LinkRepo {
	return &LinkRepo{db: db}
}

// ReplaceAll deletes every stored link and inserts urls. Duplicates are ignored.
func (r *LinkRepo) ReplaceAll(ctx context.Context, urls []string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM links"); err != nil {
		return fmt.Errorf("failed to clear links: %w", err)
	}
	for _, u := range urls {
		if _, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO links (url) VALUES (?)", u); err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
	}
	return nil
}

// List returns all links in sorted order.
func (r *LinkRepo) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT url FROM links ORDER BY url")
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return urls, nil
}
