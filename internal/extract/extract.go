// Package extract turns knowledge base files into plain text and the hyperlinks they contain.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Result is the outcome of extracting one file.
// A failed extraction carries Err and no text or links.
type Result struct {
	Path  string
	Text  string
	Links []string
	Err   error
}

// OK reports whether extraction succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// ExtractionError reports a single-file extraction failure.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor extracts text and absolute hyperlinks from one file format.
type Extractor interface {
	Extract(ctx context.Context, path string) (text string, links []string, err error)
}

// Registry dispatches extraction by lowercase file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry covering every supported knowledge base format.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(&PDFExtractor{}, ".pdf")
	r.Register(&WordExtractor{}, ".docx", ".doc")
	r.Register(&HTMLExtractor{}, ".html", ".htm")
	r.Register(&TextExtractor{}, ".txt")
	r.Register(NewMarkdownExtractor(), ".md")
	return r
}

// Register binds an extractor to one or more extensions, replacing earlier bindings.
func (r *Registry) Register(e Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Extract extracts path with the extractor registered for its extension.
// It never panics and never returns a partial result: any failure is
// reported through Result.Err as an *ExtractionError.
func (r *Registry) Extract(ctx context.Context, path string) (res Result) {
	res.Path = path

	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		res.Err = &ExtractionError{Path: path, Err: fmt.Errorf("unsupported extension %q", ext)}
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Err = &ExtractionError{Path: path, Err: err}
		return res
	}
	if info.Size() == 0 {
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{Path: path, Err: &ExtractionError{Path: path, Err: fmt.Errorf("parser panic: %v", p)}}
		}
	}()

	text, links, err := e.Extract(ctx, path)
	if err != nil {
		return Result{Path: path, Err: &ExtractionError{Path: path, Err: err}}
	}

	res.Text = strings.ToValidUTF8(text, "")
	res.Links = dedupe(links)
	return res
}

func dedupe(links []string) []string {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func isAbsoluteHTTP(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}
