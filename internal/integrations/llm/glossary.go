package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCategories is used when the glossary does not list its own.
var DefaultCategories = []string{
	"Manutencao",
	"Setup",
	"Falta de material",
	"Qualidade",
	"Falta de operador",
	"Utilidades",
	"Outros",
}

// Glossary maps recurring stoppage-reason phrases to downtime categories.
type Glossary struct {
	Categories []string       `yaml:"categories"`
	Terms      []GlossaryTerm `yaml:"terms"`
}

type GlossaryTerm struct {
	Phrase   string `yaml:"phrase"`
	Category string `yaml:"category"`
}

func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}
	return &g, nil
}

func (g *Glossary) CategoryList() []string {
	if g == nil || len(g.Categories) == 0 {
		return DefaultCategories
	}
	return g.Categories
}

// Match returns the category of the longest glossary phrase contained in
// the reason.
func (g *Glossary) Match(reason string) (string, bool) {
	if g == nil {
		return "", false
	}
	text := normalizeTextToken(reason)
	var best GlossaryTerm
	for _, term := range g.Terms {
		phrase := normalizeTextToken(term.Phrase)
		if phrase == "" || strings.TrimSpace(term.Category) == "" {
			continue
		}
		if strings.Contains(text, phrase) && len(phrase) > len(normalizeTextToken(best.Phrase)) {
			best = term
		}
	}
	if best.Phrase == "" {
		return "", false
	}
	return strings.TrimSpace(best.Category), true
}

// canonicalCategory maps a model-supplied category onto the configured
// spelling, or "" when it is not one of them.
func canonicalCategory(categories []string, got string) string {
	got = normalizeTextToken(got)
	for _, c := range categories {
		if normalizeTextToken(c) == got {
			return c
		}
	}
	return ""
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AppendGlossaryTerm records a phrase so later stoppages with the same
// reason are categorized without a model call.
func AppendGlossaryTerm(path, phrase, category string) error {
	phrase = strings.TrimSpace(phrase)
	category = strings.TrimSpace(category)
	if phrase == "" || category == "" {
		return nil
	}

	var glossary Glossary
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &glossary); err != nil {
			return fmt.Errorf("parse existing glossary: %w", err)
		}
	}

	normalized := normalizeTextToken(phrase)
	for _, t := range glossary.Terms {
		if normalizeTextToken(t.Phrase) == normalized {
			return nil // already exists
		}
	}

	glossary.Terms = append(glossary.Terms, GlossaryTerm{Phrase: phrase, Category: category})
	return saveGlossary(path, &glossary)
}

func saveGlossary(path string, glossary *Glossary) error {
	data, err := yaml.Marshal(glossary)
	if err != nil {
		return fmt.Errorf("marshal glossary: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
