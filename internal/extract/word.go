package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	documentPart      = "word/document.xml"
	relationshipsPart = "word/_rels/document.xml.rels"
)

// WordExtractor extracts paragraph text and hyperlink relationships from
// Office Open XML documents. Legacy binary .doc files fail to open and are
// reported as extraction errors.
type WordExtractor struct{}

// Extract implements Extractor.
func (e *WordExtractor) Extract(ctx context.Context, path string) (string, []string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("not an OOXML document: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	var doc, rels *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case documentPart:
			doc = f
		case relationshipsPart:
			rels = f
		}
	}
	if doc == nil {
		return "", nil, errors.New("missing " + documentPart)
	}

	text, err := readParagraphs(doc)
	if err != nil {
		return "", nil, err
	}

	var links []string
	if rels != nil {
		if links, err = readHyperlinks(rels); err != nil {
			return "", nil, err
		}
	}
	return text, links, nil
}

// readParagraphs writes the text runs of each w:p element followed by a newline.
func readParagraphs(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer func() {
		_ = rc.Close()
	}()

	var out, para strings.Builder
	inText := false
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteString("\t")
			case "br", "cr":
				para.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString(para.String())
				out.WriteString("\n")
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return out.String(), nil
}

type relationships struct {
	Items []struct {
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func readHyperlinks(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()

	var rels relationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", relationshipsPart, err)
	}

	var links []string
	for _, r := range rels.Items {
		if strings.Contains(r.Type, "hyperlink") {
			links = append(links, r.Target)
		}
	}
	return links, nil
}
