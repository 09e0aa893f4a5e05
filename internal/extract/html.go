package extract

import (
	"context"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// HTMLExtractor extracts visible text and absolute anchor links from HTML files.
type HTMLExtractor struct{}

// Extract implements Extractor.
func (e *HTMLExtractor) Extract(ctx context.Context, path string) (string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	doc, err := html.Parse(f)
	if err != nil {
		return "", nil, err
	}

	var parts, links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" && strings.HasPrefix(attr.Val, "http") {
						links = append(links, attr.Val)
					}
				}
			}
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(parts) == 0 {
		return "", links, nil
	}
	return strings.Join(parts, "\n") + "\n", links, nil
}
