// Package taxonomy maps detector labels to canonical clinical fields and
// owns the per-field normalization and validation rules. The mapping is
// externally configured (YAML) and validated against a JSON Schema before
// use, so a malformed taxonomy fails fast at load time rather than at
// extraction time.
package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NormalizerKind selects how raw OCR text is normalized for a field.
type NormalizerKind string

const (
	NormalizerDate        NormalizerKind = "date"
	NormalizerNumericUnit NormalizerKind = "numeric_unit"
	NormalizerEnum        NormalizerKind = "enum"
	NormalizerText        NormalizerKind = "text"
)

// Range bounds a numeric field. Either side may be open.
type Range struct {
	Min *float64 `yaml:"min" json:"min,omitempty"`
	Max *float64 `yaml:"max" json:"max,omitempty"`
}

// Contains reports whether v lies within the range.
func (r *Range) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Entry describes one canonical field: the detector labels that map to
// it, its normalizer, and its validation constraints.
type Entry struct {
	Field      string         `yaml:"field" json:"field"`
	Labels     []string       `yaml:"labels" json:"labels"`
	Normalizer NormalizerKind `yaml:"normalizer" json:"normalizer"`
	Required   bool           `yaml:"required" json:"required"`
	Range      *Range         `yaml:"range" json:"range,omitempty"`
	Units      []string       `yaml:"units" json:"units,omitempty"`
	Values     []string       `yaml:"values" json:"values,omitempty"`
	Importance float64        `yaml:"importance" json:"importance"`
}

// file is the on-disk shape of a taxonomy document.
type file struct {
	Fields []Entry `yaml:"fields" json:"fields"`
}

// Taxonomy is the loaded mapping from detector labels to entries.
// Label matching is case-insensitive; several labels may map to the
// same canonical field.
type Taxonomy struct {
	entries []Entry
	byLabel map[string]*Entry
	byField map[string]*Entry
}

// Parse decodes, validates, and indexes a taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("taxonomy schema validation failed: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}

	t := &Taxonomy{
		entries: f.Fields,
		byLabel: make(map[string]*Entry),
		byField: make(map[string]*Entry),
	}

	for i := range t.entries {
		e := &t.entries[i]
		if e.Importance <= 0 {
			e.Importance = 1.0
		}
		if _, dup := t.byField[e.Field]; dup {
			return nil, fmt.Errorf("duplicate canonical field %q", e.Field)
		}
		t.byField[e.Field] = e
		for _, label := range e.Labels {
			key := strings.ToLower(strings.TrimSpace(label))
			if prev, dup := t.byLabel[key]; dup {
				return nil, fmt.Errorf("label %q maps to both %q and %q", label, prev.Field, e.Field)
			}
			t.byLabel[key] = e
		}
	}

	return t, nil
}

// Load reads and parses a taxonomy file from disk.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadOrDefault loads the taxonomy at path, falling back to the built-in
// default when no file exists there.
func LoadOrDefault(path string) (*Taxonomy, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// Default returns the built-in fertility-clinic taxonomy.
func Default() *Taxonomy {
	t, err := Parse([]byte(defaultTaxonomy))
	if err != nil {
		// The embedded default is covered by tests; a parse failure here
		// is a build defect, not a runtime condition.
		panic(fmt.Sprintf("built-in taxonomy invalid: %v", err))
	}
	return t
}

// Lookup resolves a detector label to its taxonomy entry.
// Unknown labels return ok=false; they are expected noise
// (headers, logos, stray marks) and never an error.
func (t *Taxonomy) Lookup(label string) (*Entry, bool) {
	e, ok := t.byLabel[strings.ToLower(strings.TrimSpace(label))]
	return e, ok
}

// Field returns the entry for a canonical field name.
func (t *Taxonomy) Field(name string) (*Entry, bool) {
	e, ok := t.byField[name]
	return e, ok
}

// Entries returns all entries sorted by canonical field name.
func (t *Taxonomy) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// RequiredFields returns the canonical names of all required fields.
func (t *Taxonomy) RequiredFields() []string {
	var out []string
	for _, e := range t.entries {
		if e.Required {
			out = append(out, e.Field)
		}
	}
	sort.Strings(out)
	return out
}

// WriteDefault writes the built-in taxonomy to the given path so
// operators have a starting point to edit.
func WriteDefault(path string) error {
	return os.WriteFile(path, []byte(defaultTaxonomy), 0o644)
}
