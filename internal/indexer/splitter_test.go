package indexer

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitter_Split(t *testing.T) {
	tests := []struct {
		name     string
		splitter Splitter
		text     string
		want     []string
	}{
		{
			name:     "short text is one trimmed chunk",
			splitter: Splitter{Size: 100, Overlap: 10},
			text:     "  Vacation requests go to HR.\n\n",
			want:     []string{"Vacation requests go to HR."},
		},
		{
			name:     "whitespace only",
			splitter: Splitter{Size: 100, Overlap: 10},
			text:     " \n\t\n",
			want:     nil,
		},
		{
			name:     "overlapping windows",
			splitter: Splitter{Size: 10, Overlap: 5},
			text:     "one\ntwo\nthree\nfour\nfive\nsix",
			want:     []string{"one\ntwo", "two\nthree", "three\nfour", "four\nfive", "five\nsix"},
		},
		{
			name:     "no overlap",
			splitter: Splitter{Size: 10, Overlap: 0},
			text:     "one\ntwo\nthree\nfour\nfive\nsix",
			want:     []string{"one\ntwo", "three\nfour", "five\nsix"},
		},
		{
			name:     "long line is hard split",
			splitter: Splitter{Size: 4, Overlap: 0},
			text:     "abcdefghij",
			want:     []string{"abcd", "efgh", "ij"},
		},
		{
			name:     "blank lines are dropped from chunk edges",
			splitter: Splitter{Size: 6, Overlap: 0},
			text:     "abc\n\n\n\ndef\n\n",
			want:     []string{"abc", "def"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.splitter.Split(tt.text)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Split() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitter_Split_Invariants(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("word ", i%17)+"line"+strings.Repeat("é", i%5))
	}
	text := strings.Join(lines, "\n")
	splitter := Splitter{Size: 120, Overlap: 30}

	chunks := splitter.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("Split() returned %d chunks, want several", len(chunks))
	}

	for i, c := range chunks {
		if c == "" || c != strings.TrimSpace(c) {
			t.Errorf("chunk[%d] = %q, want trimmed non-empty text", i, c)
		}
		if n := utf8.RuneCountInString(c); n > splitter.Size {
			t.Errorf("chunk[%d] has %d runes, exceeds %d", i, n, splitter.Size)
		}
	}

	joined := strings.Join(chunks, "\n")
	for _, line := range lines {
		if !strings.Contains(joined, strings.TrimSpace(line)) {
			t.Errorf("line %q not covered by any chunk", line)
		}
	}

	// A boundary line that fits in the overlap window is carried into the next chunk.
	for i := 1; i < len(chunks); i++ {
		prevLines := strings.Split(chunks[i-1], "\n")
		last := prevLines[len(prevLines)-1]
		if utf8.RuneCountInString(last) <= splitter.Overlap && !strings.Contains(chunks[i], last) {
			t.Errorf("chunk[%d] does not carry overlap line %q", i, last)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("truncateRunes() = %q, want hé", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Errorf("truncateRunes() = %q, want abc", got)
	}
}

func TestLineSpan(t *testing.T) {
	// Provenance is approximate: the offset advances by whole chunk lengths and
	// ignores overlap, so consecutive spans share their boundary line.
	span := newLineSpan("a\nb\nc\nd")

	start, end := span.next(3)
	if start != 1 || end != 2 {
		t.Errorf("first span = (%d, %d), want (1, 2)", start, end)
	}
	start, end = span.next(3)
	if start != 2 || end != 4 {
		t.Errorf("second span = (%d, %d), want (2, 4)", start, end)
	}
	// Offset is clamped to the text length.
	start, end = span.next(100)
	if start != 4 || end != 4 {
		t.Errorf("third span = (%d, %d), want (4, 4)", start, end)
	}
}
