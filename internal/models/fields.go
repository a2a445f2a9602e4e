package models

import (
	"fmt"
	"strings"
)

// FieldType is the declared type of a FieldSpec.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeChoice  FieldType = "choice"
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(t FieldType) bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeBoolean, FieldTypeChoice:
		return true
	default:
		return false
	}
}

// DependencyOperator selects how a conditional field compares its parent's answer.
// The empty operator means presence of the parent answer is enough.
type DependencyOperator string

const (
	OperatorNone      DependencyOperator = ""
	OperatorEquals    DependencyOperator = "equals"
	OperatorNotEquals DependencyOperator = "not_equals"
	OperatorIn        DependencyOperator = "in"
)

// Dependency makes a field conditional on another field of the same field-set.
type Dependency struct {
	ParentKey string             `json:"parent" yaml:"parent"`
	Value     string             `json:"value,omitempty" yaml:"value,omitempty"`
	Values    []string           `json:"values,omitempty" yaml:"values,omitempty"`
	Operator  DependencyOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
}

// Matches reports whether the parent answer satisfies the dependency.
// Without an operator any answer unlocks the field.
func (d Dependency) Matches(parentValue any) (bool, error) {
	got := strings.TrimSpace(fmt.Sprint(parentValue))
	switch d.Operator {
	case OperatorNone:
		return true, nil
	case OperatorEquals:
		return strings.EqualFold(got, d.Value), nil
	case OperatorNotEquals:
		return !strings.EqualFold(got, d.Value), nil
	case OperatorIn:
		for _, v := range d.Values {
			if strings.EqualFold(got, v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, d.Operator)
	}
}

// ValidationRules constrains the answers accepted for a field.
type ValidationRules struct {
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength int      `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Unit      string   `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// FieldSpec is one required datum for a catalog element.
// FieldSpecs are read-only configuration owned by the catalog.
type FieldSpec struct {
	Key         string           `json:"key" yaml:"key"`
	Label       string           `json:"label" yaml:"label"`
	Type        FieldType        `json:"type" yaml:"type"`
	Required    bool             `json:"required" yaml:"required"`
	Choices     []string         `json:"choices,omitempty" yaml:"choices,omitempty"`
	Instruction string           `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Example     string           `json:"example,omitempty" yaml:"example,omitempty"`
	Validation  *ValidationRules `json:"validation,omitempty" yaml:"validation,omitempty"`
	DependsOn   *Dependency      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// IsConditional reports whether the field depends on another field's answer.
func (f FieldSpec) IsConditional() bool {
	return f.DependsOn != nil && f.DependsOn.ParentKey != ""
}

// Validate performs structural validation of a single FieldSpec.
// Cross-field checks (dangling parents, duplicates) live in the catalog.
func (f FieldSpec) Validate() error {
	if f.Key == "" {
		return ErrEmptyFieldKey
	}
	if len(f.Key) > MaxFieldKeyLength {
		return fmt.Errorf("%w: %q", ErrFieldKeyTooLong, f.Key)
	}
	if !IsValidFieldType(f.Type) {
		return fmt.Errorf("%w: %q (field %q)", ErrInvalidFieldType, f.Type, f.Key)
	}
	if f.Type == FieldTypeChoice && len(f.Choices) == 0 {
		return fmt.Errorf("%w: field %q", ErrMissingChoices, f.Key)
	}
	if f.IsConditional() {
		if f.DependsOn.ParentKey == f.Key {
			return fmt.Errorf("%w: %q", ErrSelfDependency, f.Key)
		}
		if _, err := f.DependsOn.Matches(""); err != nil {
			return fmt.Errorf("field %q: %w", f.Key, err)
		}
	}
	return nil
}

// CollectedValues maps a field key to the answer obtained in the current collection session.
type CollectedValues map[string]any

// Has reports whether key has been answered.
func (c CollectedValues) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c[key]
	return ok
}

// CollectionMode is the strategy used to ask for the pending fields.
type CollectionMode string

const (
	ModeSequential CollectionMode = "SEQUENTIAL"
	ModeBatch      CollectionMode = "BATCH"
	ModeHybrid     CollectionMode = "HYBRID"
)
