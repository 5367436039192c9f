// Package categories loads the question-category definitions used to
// label category averages on dashboards. Categories group rating
// questions for radar-chart analytics; an unknown category still
// aggregates, it just renders under its raw name.
package categories

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCategory is assigned to rating questions without an explicit
// category.
const DefaultCategory = "overall"

// Category is one question grouping.
type Category struct {
	Value       string `yaml:"value" json:"value"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type definitionsFile struct {
	Categories []Category `yaml:"categories"`
}

// Registry resolves category values to display labels.
type Registry struct {
	ordered []Category
	byValue map[string]Category
}

// Load reads category definitions from a YAML file.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category definitions %q: %w", path, err)
	}

	var defs definitionsFile
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse category definitions %q: %w", path, err)
	}
	return New(defs.Categories)
}

// New builds a registry from in-memory definitions.
func New(defs []Category) (*Registry, error) {
	r := &Registry{byValue: make(map[string]Category, len(defs))}
	for i, c := range defs {
		if strings.TrimSpace(c.Value) == "" {
			return nil, fmt.Errorf("category %d: value is required", i)
		}
		if _, dup := r.byValue[c.Value]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Value)
		}
		if c.Label == "" {
			c.Label = c.Value
		}
		r.byValue[c.Value] = c
		r.ordered = append(r.ordered, c)
	}
	return r, nil
}

// All returns categories in definition order.
func (r *Registry) All() []Category {
	out := make([]Category, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Known reports whether a category value is defined.
func (r *Registry) Known(value string) bool {
	_, ok := r.byValue[value]
	return ok
}

// Label returns the display label, falling back to the raw value for
// categories that were aggregated but never defined.
func (r *Registry) Label(value string) string {
	if c, ok := r.byValue[value]; ok {
		return c.Label
	}
	return value
}
