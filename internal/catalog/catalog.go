// Package catalog loads the per-element field catalog from YAML.
//
// Each homologable element (tow bar, lift kit, ...) lists the fields the
// collection engine asks for, in presentation order.
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// Element is one homologable element and its ordered field-set.
type Element struct {
	Code        string             `yaml:"code" json:"code"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Fields      []models.FieldSpec `yaml:"fields" json:"fields"`
}

// Catalog is the full set of elements, keyed by code.
type Catalog struct {
	Elements []Element `yaml:"elements"`
	byCode   map[string]int
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.byCode = make(map[string]int, len(c.Elements))
	for i, e := range c.Elements {
		c.byCode[e.Code] = i
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Elements {
		e := &c.Elements[i]
		e.Code = strings.ToUpper(strings.TrimSpace(e.Code))
		for j := range e.Fields {
			f := &e.Fields[j]
			if f.Type == "" {
				f.Type = models.FieldTypeText
			}
			if f.Label == "" {
				f.Label = f.Key
			}
		}
	}
}

func (c *Catalog) validate() error {
	var errs []string
	if len(c.Elements) == 0 {
		errs = append(errs, "at least one element is required")
	}
	seen := make(map[string]bool, len(c.Elements))
	for i, e := range c.Elements {
		if e.Code == "" {
			errs = append(errs, fmt.Sprintf("elements[%d].code is required", i))
		} else if seen[e.Code] {
			errs = append(errs, fmt.Sprintf("elements[%d]: duplicate code %q", i, e.Code))
		}
		seen[e.Code] = true
		if err := ValidateFields(e.Fields); err != nil {
			errs = append(errs, fmt.Sprintf("elements[%d] (%s): %v", i, e.Code, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateFields checks one field-set: every field is well formed, keys are unique,
// patterns compile, each dependency names a field of the same set and no dependency chain loops.
func ValidateFields(fields []models.FieldSpec) error {
	index := make(map[string]models.FieldSpec, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if f.Validation != nil && f.Validation.Pattern != "" {
			if _, err := regexp.Compile(f.Validation.Pattern); err != nil {
				return fmt.Errorf("field %q: invalid pattern: %w", f.Key, err)
			}
		}
		if _, dup := index[f.Key]; dup {
			return fmt.Errorf("%w: %q", models.ErrDuplicateFieldKey, f.Key)
		}
		index[f.Key] = f
	}
	for _, f := range fields {
		if !f.IsConditional() {
			continue
		}
		if _, ok := index[f.DependsOn.ParentKey]; !ok {
			return fmt.Errorf("%w: %q depends on %q", models.ErrDanglingDependency, f.Key, f.DependsOn.ParentKey)
		}
		// Walk up the parent chain; more steps than fields means a loop.
		cur := f
		for steps := 0; cur.IsConditional(); steps++ {
			if steps > len(fields) {
				return fmt.Errorf("%w: starting at %q", models.ErrDependencyCycle, f.Key)
			}
			cur = index[cur.DependsOn.ParentKey]
		}
	}
	return nil
}

// Element returns the element with the given code (case-insensitive).
func (c *Catalog) Element(code string) (Element, error) {
	i, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Element{}, fmt.Errorf("%w: %q", models.ErrUnknownElement, code)
	}
	return c.Elements[i], nil
}

// Fields returns the ordered field-set for an element.
func (c *Catalog) Fields(code string) ([]models.FieldSpec, error) {
	e, err := c.Element(code)
	if err != nil {
		return nil, err
	}
	return e.Fields, nil
}

// Codes returns all element codes, sorted.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.Elements))
	for _, e := range c.Elements {
		codes = append(codes, e.Code)
	}
	sort.Strings(codes)
	return codes
}
