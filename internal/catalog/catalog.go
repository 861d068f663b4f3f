// Package catalog holds the built-in question sets, one YAML document per
// program category.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"adherence-service/internal/domain"
)

//go:embed question_sets/*.yaml
var builtinFS embed.FS

// Loader serves the embedded question sets.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// LoadQuestionSet returns the question set for category or domain.ErrInvalidCategory.
func (Loader) LoadQuestionSet(_ context.Context, category string) (domain.QuestionSet, error) {
	return Builtin(category)
}

// Builtin parses the embedded question set for category.
func Builtin(category string) (domain.QuestionSet, error) {
	if category == "" || strings.ContainsAny(category, "/\\.") {
		return domain.QuestionSet{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
	}
	data, err := builtinFS.ReadFile("question_sets/" + category + ".yaml")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.QuestionSet{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
		}
		return domain.QuestionSet{}, fmt.Errorf("catalog.Builtin: read %q: %w", category, err)
	}
	var set domain.QuestionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("catalog.Builtin: parse %q: %w", category, err)
	}
	if set.Category == "" {
		set.Category = category
	}
	return set, nil
}

// Categories lists the embedded categories in sorted order.
func Categories() []string {
	entries, err := builtinFS.ReadDir("question_sets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
