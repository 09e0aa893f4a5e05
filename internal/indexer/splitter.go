package indexer

import (
	"strings"
	"unicode/utf8"
)

// Splitter cuts text into overlapping chunks of at most Size runes.
//
// Text is split on newlines; lines longer than Size are cut into Size-rune
// pieces. Pieces are then merged greedily, joined by newlines. When a chunk is
// emitted, the window carried into the next chunk is shrunk until it is at most
// Overlap runes and the next piece fits.
type Splitter struct {
	Size    int
	Overlap int
}

const lineSeparator = "\n"

// Split returns the trimmed, non-empty chunks of text.
// Text no longer than Size yields exactly one chunk equal to the trimmed text.
func (s Splitter) Split(text string) []string {
	if s.Size <= 0 {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.Size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var pieces []string
	for _, line := range strings.Split(text, lineSeparator) {
		pieces = append(pieces, s.hardSplit(line)...)
	}
	return s.merge(pieces)
}

// hardSplit cuts a line into Size-rune pieces. Short lines are returned as-is,
// including empty lines.
func (s Splitter) hardSplit(line string) []string {
	runes := []rune(line)
	if len(runes) <= s.Size {
		return []string{line}
	}
	var out []string
	for start := 0; start < len(runes); start += s.Size {
		end := min(start+s.Size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

func (s Splitter) merge(pieces []string) []string {
	sepLen := utf8.RuneCountInString(lineSeparator)

	var chunks, window []string
	total := 0
	joinCost := func() int {
		if len(window) > 0 {
			return sepLen
		}
		return 0
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n+joinCost() > s.Size && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, lineSeparator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.Overlap || (total > 0 && total+n+joinCost() > s.Size) {
				drop := utf8.RuneCountInString(window[0])
				if len(window) > 1 {
					drop += sepLen
				}
				total -= drop
				window = window[1:]
			}
		}
		total += n + joinCost()
		window = append(window, piece)
	}

	if chunk := strings.TrimSpace(strings.Join(window, lineSeparator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// truncateRunes caps s at max runes.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// lineSpan computes approximate 1-based line provenance for consecutive chunks of
// a document. It advances a running rune offset by each chunk's length and does not
// account for the overlap between chunks.
type lineSpan struct {
	text   []rune
	offset int
}

func newLineSpan(text string) *lineSpan {
	return &lineSpan{text: []rune(text)}
}

// next returns the start and end line of a chunk of n runes and advances the offset.
func (l *lineSpan) next(n int) (start, end int) {
	start = l.lineAt(l.offset)
	l.offset = min(l.offset+n, len(l.text))
	end = l.lineAt(l.offset)
	return start, end
}

func (l *lineSpan) lineAt(offset int) int {
	lines := 1
	for _, r := range l.text[:offset] {
		if r == '\n' {
			lines++
		}
	}
	return lines
}
