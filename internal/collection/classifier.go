package collection

import (
	"log/slog"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// SequentialThreshold is the largest number of outstanding fields that is always asked
// one at a time.
const SequentialThreshold = 2

// Classify decides the collection strategy for the fields still outstanding.
//
// Up to SequentialThreshold fields are asked one by one. Larger sets without conditionals
// are batched. Conditionals that hang off base fields give HYBRID; chained conditionals
// (depth >= 2) are asked sequentially.
func Classify(fields []models.FieldSpec, collected models.CollectedValues) models.CollectionMode {
	remaining := outstanding(fields, collected)

	mode := classifyRemaining(remaining)
	slog.Debug("collection.Classify", "fields", len(fields), "remaining", len(remaining), "mode", mode)
	return mode
}

func classifyRemaining(remaining []models.FieldSpec) models.CollectionMode {
	if len(remaining) <= SequentialThreshold {
		return models.ModeSequential
	}

	conditional := 0
	for _, f := range remaining {
		if f.IsConditional() {
			conditional++
		}
	}
	if conditional == 0 {
		return models.ModeBatch
	}

	if NewDependencyGraph(remaining).MaxDepth() >= 2 {
		return models.ModeSequential
	}
	return models.ModeHybrid
}

// DependencyComplexity returns the deepest conditional nesting among the outstanding fields.
// 0 means no conditionals, 1 means conditionals hang off base fields only.
func DependencyComplexity(fields []models.FieldSpec, collected models.CollectedValues) int {
	return NewDependencyGraph(outstanding(fields, collected)).MaxDepth()
}

// outstanding returns the fields whose key is not yet in collected, in declared order.
func outstanding(fields []models.FieldSpec, collected models.CollectedValues) []models.FieldSpec {
	out := make([]models.FieldSpec, 0, len(fields))
	for _, f := range fields {
		if !collected.Has(f.Key) {
			out = append(out, f)
		}
	}
	return out
}
