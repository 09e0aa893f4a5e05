package extract

import (
	"context"
	"os"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var bareURL = regexp.MustCompile(`https?://[^\s]+`)

// TextExtractor reads plain text files and collects bare URLs.
type TextExtractor struct{}

// Extract implements Extractor.
func (e *TextExtractor) Extract(ctx context.Context, path string) (string, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	s := string(content)
	return s + "\n", bareURL.FindAllString(s, -1), nil
}

// MarkdownExtractor keeps markdown source as text and collects bare URLs plus
// the destinations of markdown links and autolinks.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a markdown extractor using a goldmark parser.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Linkify),
		),
	}
}

// Extract implements Extractor.
func (e *MarkdownExtractor) Extract(ctx context.Context, path string) (string, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	links := bareURL.FindAllString(string(content), -1)

	doc := e.parser.Parser().Parse(text.NewReader(content))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest string
		switch node := n.(type) {
		case *ast.Link:
			dest = string(node.Destination)
		case *ast.AutoLink:
			dest = string(node.URL(content))
		}
		if isAbsoluteHTTP(dest) {
			links = append(links, dest)
		}
		return ast.WalkContinue, nil
	})

	return string(content) + "\n", links, nil
}
