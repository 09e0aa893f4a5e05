package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghhtml "github.com/yuin/goldmark/renderer/html"

	"kbassist/internal/contextutil"
	"kbassist/internal/extract"
	"kbassist/internal/kb"
)

// DocumentHandler serves knowledge base documents as HTML pages so that
// cited sources can be opened from a browser. Markdown is rendered; other
// supported formats are shown as their extracted text.
type DocumentHandler struct {
	root      string
	extractor *extract.Registry
	parser    goldmark.Markdown
	template  *template.Template
}

// documentPageData holds template data for rendered document pages.
type documentPageData struct {
	Title    string
	Category string
	RelPath  string
	Content  template.HTML
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}} &middot; {{.Category}}</title>
  <style>
    :root {
      color-scheme: dark;
    }
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 900px;
      line-height: 1.7;
      background: #050b18;
      color: #e4ecff;
    }
    header {
      margin-bottom: 2rem;
      border-bottom: 1px solid rgba(148, 163, 184, 0.2);
      padding-bottom: 1.5rem;
    }
    h1 {
      margin-top: 0;
      color: #fff;
    }
    article {
      background: rgba(12, 19, 35, 0.85);
      border: 1px solid rgba(99, 102, 241, 0.2);
      border-radius: 16px;
      padding: 2rem;
    }
    pre {
      background: #0f172a;
      padding: 1rem;
      overflow-x: auto;
      white-space: pre-wrap;
      border-radius: 10px;
    }
    code {
      font-family: 'SFMono-Regular', Consolas, 'Liberation Mono', Menlo, monospace;
    }
    a {
      color: #60a5fa;
    }
    .meta {
      color: #94a3b8;
      font-size: 0.95rem;
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">Category: {{.Category}} &middot; Path: {{.RelPath}}</p>
  </header>
  <article>{{.Content}}</article>
</body>
</html>`))

// NewDocumentHandler creates a handler serving documents below root.
func NewDocumentHandler(root string, extractor *extract.Registry) *DocumentHandler {
	return &DocumentHandler{
		root:      root,
		extractor: extractor,
		parser: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
			),
			goldmark.WithRendererOptions(
				ghhtml.WithUnsafe(),
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		template: documentTemplate,
	}
}

// ServeHTTP renders the requested document as HTML.
//
// swagger:route GET /api/v1/documents/{category}/{path} viewDocument
//
// # View a knowledge base document
//
// ---
// produces:
// - text/html
// responses:
//
//	'200':
//	  description: Rendered document
//	'400':
//	  description: Invalid category or path
//	'404':
//	  description: Document not found or format not supported
func (h *DocumentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	category, err := url.PathUnescape(strings.TrimSpace(chi.URLParam(r, "category")))
	if err != nil || category == "" || strings.ContainsAny(category, `/\`) || category == ".." {
		http.Error(w, "invalid category", http.StatusBadRequest)
		return
	}

	decodedRelPath, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, "invalid path encoding", http.StatusBadRequest)
		return
	}
	relPath, err := cleanRelPath(decodedRelPath)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	absPath, err := buildAbsPath(filepath.Join(h.root, category), relPath)
	if err != nil {
		logger.WarnContext(ctx, "invalid document path", "category", category, "rel_path", relPath, "error", err)
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if !kb.IsSupported(absPath) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	content, err := h.render(r, absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "failed to render document", "path", absPath, "error", err)
		http.Error(w, "failed to render document", http.StatusInternalServerError)
		return
	}

	pageData := documentPageData{
		Title:    inferTitle(relPath),
		Category: category,
		RelPath:  relPath,
		Content:  content,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, pageData); err != nil {
		logger.ErrorContext(ctx, "failed to execute document template", "path", absPath, "error", err)
	}
}

// render returns the page body for absPath: rendered markdown or escaped
// extracted text.
func (h *DocumentHandler) render(r *http.Request, absPath string) (template.HTML, error) {
	if strings.EqualFold(filepath.Ext(absPath), ".md") {
		data, err := os.ReadFile(absPath)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := h.parser.Convert(data, &buf); err != nil {
			return "", fmt.Errorf("convert markdown: %w", err)
		}
		return template.HTML(buf.String()), nil
	}

	if _, err := os.Stat(absPath); err != nil {
		return "", err
	}
	res := h.extractor.Extract(r.Context(), absPath)
	if !res.OK() {
		return "", res.Err
	}
	return template.HTML("<pre>" + template.HTMLEscapeString(res.Text) + "</pre>"), nil
}

func cleanRelPath(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("empty path")
	}

	cleaned := path.Clean("/" + trimmed)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", errors.New("invalid path")
	}

	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return "", errors.New("path traversal detected")
		}
	}

	return cleaned, nil
}

func buildAbsPath(root, rel string) (string, error) {
	root = filepath.Clean(root)
	abs := filepath.Join(root, filepath.FromSlash(rel))

	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) && abs != root {
		return "", errors.New("path escapes knowledge base root")
	}
	return abs, nil
}

func inferTitle(rel string) string {
	base := filepath.Base(rel)
	if base == "." || base == "" {
		return "Document"
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
