package collection

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// Hybrid stages reported in Phase.HybridStage.
const (
	StageBase        = "base"
	StageConditional = "conditional"
)

// RenderedField carries everything a presenter needs to ask for one field.
type RenderedField struct {
	Key         string                  `json:"key"`
	Label       string                  `json:"label"`
	Type        models.FieldType        `json:"type"`
	Required    bool                    `json:"required"`
	Choices     []string                `json:"choices,omitempty"`
	Instruction string                  `json:"instruction,omitempty"`
	Example     string                  `json:"example,omitempty"`
	Validation  *models.ValidationRules `json:"validation,omitempty"`
}

func renderField(f models.FieldSpec) RenderedField {
	rf := RenderedField{
		Key:         f.Key,
		Label:       f.Label,
		Type:        f.Type,
		Required:    f.Required,
		Instruction: f.Instruction,
		Example:     f.Example,
		Validation:  f.Validation,
	}
	if len(f.Choices) > 0 {
		rf.Choices = append([]string(nil), f.Choices...)
	}
	return rf
}

// Phase is what to ask on the current turn.
type Phase struct {
	Mode     models.CollectionMode `json:"mode"`
	Complete bool                  `json:"complete"`
	Fields   []RenderedField       `json:"fields,omitempty"`

	// SEQUENTIAL
	CurrentField   *RenderedField `json:"current_field,omitempty"`
	RemainingCount int            `json:"remaining_count"`

	// BATCH and HYBRID
	TotalCount int `json:"total_count"`

	// HYBRID
	HybridStage             string `json:"hybrid_stage,omitempty"`
	PendingConditionalCount int    `json:"pending_conditional_count"`
}

// Render computes the fields to present now for the given mode.
// Conditional fields are held back until their parent has an answer, whatever the mode.
func Render(mode models.CollectionMode, fields []models.FieldSpec, collected models.CollectedValues) Phase {
	pending := Pending(fields, collected)
	if len(pending) == 0 {
		return Phase{Mode: mode, Complete: true}
	}

	switch mode {
	case models.ModeBatch:
		return renderBatch(pending)
	case models.ModeHybrid:
		return renderHybrid(fields, pending, collected)
	default:
		return renderSequential(pending)
	}
}

// Plan classifies the outstanding fields and renders the resulting phase.
func Plan(fields []models.FieldSpec, collected models.CollectedValues) Phase {
	return Render(Classify(fields, collected), fields, collected)
}

// Pending returns the fields that can be asked now: not yet collected and, when
// conditional, with the parent already answered and its dependency satisfied.
func Pending(fields []models.FieldSpec, collected models.CollectedValues) []models.FieldSpec {
	out := make([]models.FieldSpec, 0, len(fields))
	for _, f := range fields {
		if collected.Has(f.Key) {
			continue
		}
		if f.IsConditional() && !visible(f, collected) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func visible(f models.FieldSpec, collected models.CollectedValues) bool {
	parentValue, ok := collected[f.DependsOn.ParentKey]
	if !ok {
		return false
	}
	match, err := f.DependsOn.Matches(parentValue)
	if err != nil {
		slog.Warn("collection.Pending: dependency comparison failed, holding field back", "field", f.Key, "error", err)
		return false
	}
	return match
}

func renderSequential(pending []models.FieldSpec) Phase {
	current := renderField(pending[0])
	return Phase{
		Mode:           models.ModeSequential,
		Fields:         []RenderedField{current},
		CurrentField:   &current,
		RemainingCount: len(pending) - 1,
		TotalCount:     1,
	}
}

func renderBatch(pending []models.FieldSpec) Phase {
	return Phase{
		Mode:       models.ModeBatch,
		Fields:     renderAll(pending),
		TotalCount: len(pending),
	}
}

func renderHybrid(fields, pending []models.FieldSpec, collected models.CollectedValues) Phase {
	var base, conditional []models.FieldSpec
	for _, f := range pending {
		if f.IsConditional() {
			conditional = append(conditional, f)
		} else {
			base = append(base, f)
		}
	}

	if len(base) > 0 {
		waiting := 0
		for _, f := range fields {
			if f.IsConditional() && !collected.Has(f.Key) {
				waiting++
			}
		}
		return Phase{
			Mode:                    models.ModeHybrid,
			Fields:                  renderAll(base),
			TotalCount:              len(base),
			HybridStage:             StageBase,
			PendingConditionalCount: waiting,
		}
	}

	return Phase{
		Mode:        models.ModeHybrid,
		Fields:      renderAll(conditional),
		TotalCount:  len(conditional),
		HybridStage: StageConditional,
	}
}

func renderAll(fields []models.FieldSpec) []RenderedField {
	out := make([]RenderedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, renderField(f))
	}
	return out
}

// Prompt renders the phase as a plain-text question block.
func (p Phase) Prompt() string {
	if p.Complete || len(p.Fields) == 0 {
		return ""
	}
	if len(p.Fields) == 1 {
		return questionLine(p.Fields[0])
	}
	var b strings.Builder
	b.WriteString("Necesito los siguientes datos:\n")
	for i, f := range p.Fields {
		fmt.Fprintf(&b, "%d. %s\n", i+1, questionLine(f))
	}
	return strings.TrimRight(b.String(), "\n")
}

func questionLine(f RenderedField) string {
	line := f.Label
	if line == "" {
		line = f.Key
	}
	if len(f.Choices) > 0 {
		line += " (" + strings.Join(f.Choices, " / ") + ")"
	}
	if f.Validation != nil && f.Validation.Unit != "" {
		line += " [" + f.Validation.Unit + "]"
	}
	if f.Example != "" {
		line += " - ej.: " + f.Example
	}
	if f.Instruction != "" {
		line += "\n   " + f.Instruction
	}
	return line
}
