package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategoriesYAML []byte

// CategoryKeywords maps one knowledge category to the keywords that select it.
type CategoryKeywords struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// KeywordTable is the static category keyword table, in file order.
// It is loaded once at startup and never mutated afterwards.
type KeywordTable struct {
	Categories []CategoryKeywords `yaml:"categories"`
}

// LoadKeywordTable reads a keyword table from a YAML file.
func LoadKeywordTable(path string) (KeywordTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordTable{}, err
	}
	return ParseKeywordTable(data)
}

// DefaultKeywordTable returns the keyword table compiled into the binary.
func DefaultKeywordTable() (KeywordTable, error) {
	return ParseKeywordTable(defaultCategoriesYAML)
}

// ParseKeywordTable decodes a YAML keyword table. Keywords are lowercased and
// blank keywords dropped; duplicate category names are rejected.
func ParseKeywordTable(data []byte) (KeywordTable, error) {
	var table KeywordTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return KeywordTable{}, fmt.Errorf("invalid keyword table: %w", err)
	}

	seen := make(map[string]bool, len(table.Categories))
	for i, c := range table.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return KeywordTable{}, fmt.Errorf("keyword table entry %d has no category name", i)
		}
		if seen[name] {
			return KeywordTable{}, fmt.Errorf("duplicate category %q in keyword table", name)
		}
		seen[name] = true

		keywords := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		table.Categories[i] = CategoryKeywords{Name: name, Keywords: keywords}
	}
	return table, nil
}
