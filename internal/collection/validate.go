package collection

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

var (
	trueWords  = []string{"si", "sí", "s", "yes", "true", "1", "vale", "correcto"}
	falseWords = []string{"no", "n", "false", "0"}
)

// ValidateValue checks a raw answer against the field's type, choices and rules.
// It returns the normalized value, or a recovery response describing the problem.
func ValidateValue(field models.FieldSpec, raw string) (any, *RecoveryResponse) {
	value := strings.TrimSpace(raw)
	base := []RecoveryOption{WithField(field.Key), WithFieldLabel(field.Label), WithUserValue(raw)}

	if value == "" {
		if !field.Required {
			return "", nil
		}
		r := BuildRecovery(CodeMissingRequired, fmt.Sprintf("field %q is required", field.Key), base...)
		return nil, &r
	}

	switch field.Type {
	case models.FieldTypeNumber:
		return validateNumber(field, value, base)
	case models.FieldTypeBoolean:
		return validateBoolean(field, value, base)
	case models.FieldTypeChoice:
		return validateChoice(field, value, base)
	case models.FieldTypeText:
		return validateText(field, value, base)
	default:
		r := BuildRecovery(CodeInvalidType, fmt.Sprintf("field %q has unsupported type %q", field.Key, field.Type), base...)
		return nil, &r
	}
}

func validateNumber(field models.FieldSpec, value string, base []RecoveryOption) (any, *RecoveryResponse) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		r := BuildRecovery(CodeInvalidType, fmt.Sprintf("field %q expects a number: %v", field.Key, err), base...)
		return nil, &r
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		r := BuildRecovery(CodeInvalidType, fmt.Sprintf("field %q expects a finite number", field.Key), base...)
		return nil, &r
	}
	if rules := field.Validation; rules != nil {
		if (rules.Min != nil && n < *rules.Min) || (rules.Max != nil && n > *rules.Max) {
			r := BuildRecovery(CodeOutOfRange, fmt.Sprintf("field %q value %v out of range", field.Key, n),
				append(base, WithHint(rangeHint(rules)))...)
			return nil, &r
		}
	}
	return n, nil
}

func rangeHint(rules *models.ValidationRules) string {
	unit := ""
	if rules.Unit != "" {
		unit = " " + rules.Unit
	}
	switch {
	case rules.Min != nil && rules.Max != nil:
		return fmt.Sprintf("Debe estar entre %g y %g%s.", *rules.Min, *rules.Max, unit)
	case rules.Min != nil:
		return fmt.Sprintf("Debe ser al menos %g%s.", *rules.Min, unit)
	case rules.Max != nil:
		return fmt.Sprintf("Debe ser como máximo %g%s.", *rules.Max, unit)
	}
	return ""
}

func validateBoolean(field models.FieldSpec, value string, base []RecoveryOption) (any, *RecoveryResponse) {
	lower := strings.ToLower(value)
	for _, w := range trueWords {
		if lower == w {
			return true, nil
		}
	}
	for _, w := range falseWords {
		if lower == w {
			return false, nil
		}
	}
	r := BuildRecovery(CodeInvalidFormat, fmt.Sprintf("field %q expects yes or no", field.Key),
		append(base, WithValidOptions([]string{"sí", "no"}))...)
	return nil, &r
}

func validateChoice(field models.FieldSpec, value string, base []RecoveryOption) (any, *RecoveryResponse) {
	for _, c := range field.Choices {
		if strings.EqualFold(c, value) {
			return c, nil
		}
	}
	r := BuildRecovery(CodeInvalidOption, fmt.Sprintf("field %q does not accept %q", field.Key, value),
		append(base, WithValidOptions(field.Choices))...)
	return nil, &r
}

func validateText(field models.FieldSpec, value string, base []RecoveryOption) (any, *RecoveryResponse) {
	rules := field.Validation
	if rules == nil {
		return value, nil
	}
	length := len([]rune(value))
	if (rules.MinLength > 0 && length < rules.MinLength) || (rules.MaxLength > 0 && length > rules.MaxLength) {
		r := BuildRecovery(CodeOutOfRange, fmt.Sprintf("field %q length %d out of range", field.Key, length), base...)
		return nil, &r
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			// A broken pattern is a catalog problem; accept the answer.
			return value, nil
		}
		if !re.MatchString(value) {
			r := BuildRecovery(CodeInvalidFormat, fmt.Sprintf("field %q does not match %s", field.Key, rules.Pattern), base...)
			return nil, &r
		}
	}
	return value, nil
}

// Collect validates an answer for key and stores it in collected on success.
// Keys outside the field-set give UNKNOWN_FIELD.
func Collect(fields []models.FieldSpec, collected models.CollectedValues, key, raw string) *RecoveryResponse {
	for _, f := range fields {
		if f.Key != key {
			continue
		}
		value, rec := ValidateValue(f, raw)
		if rec != nil {
			return rec
		}
		collected[key] = value
		return nil
	}
	r := BuildRecovery(CodeUnknownField, fmt.Sprintf("unknown field %q", key), WithField(key), WithUserValue(raw))
	return &r
}
