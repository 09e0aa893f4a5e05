package rag

import (
	"sort"
	"strings"

	"kbassist/internal/config"
)

// CategoryDetector selects knowledge categories for a question by keyword.
//
// Matching is plain substring containment on the lowercased question, so a
// short keyword can also match inside an unrelated word ("pto" inside
// "cryptography").
type CategoryDetector struct {
	table config.KeywordTable
}

// NewCategoryDetector creates a detector over an immutable keyword table.
// Keywords are expected to be lowercase already, as ParseKeywordTable leaves them.
func NewCategoryDetector(table config.KeywordTable) *CategoryDetector {
	return &CategoryDetector{table: table}
}

// Detect returns the sorted categories with at least one keyword occurring in
// the question. An empty result means the question is not restricted.
func (d *CategoryDetector) Detect(question string) []string {
	q := strings.ToLower(question)

	var matched []string
	for _, c := range d.table.Categories {
		for _, kw := range c.Keywords {
			if strings.Contains(q, kw) {
				matched = append(matched, c.Name)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}
