package extract

import (
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts page text and URI link annotations from PDF files.
type PDFExtractor struct{}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, []string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	var text strings.Builder
	var links []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, err
		}
		text.WriteString(pageText)
		text.WriteString("\n")

		annots := page.V.Key("Annots")
		for j := 0; j < annots.Len(); j++ {
			uri := annots.Index(j).Key("A").Key("URI")
			if uri.Kind() == pdf.String && uri.Text() != "" {
				links = append(links, uri.Text())
			}
		}
	}

	return text.String(), links, nil
}
