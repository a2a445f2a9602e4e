package collection

import (
	"strings"
)

// ErrorCode identifies why a user answer was rejected.
type ErrorCode string

const (
	CodeOutOfRange      ErrorCode = "OUT_OF_RANGE"
	CodeInvalidFormat   ErrorCode = "INVALID_FORMAT"
	CodeInvalidOption   ErrorCode = "INVALID_OPTION"
	CodeUnknownField    ErrorCode = "UNKNOWN_FIELD"
	CodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	CodeInvalidType     ErrorCode = "INVALID_TYPE"
)

// ActionReAsk is the only recovery action the conversational layer receives.
const ActionReAsk = "re-ask"

// GenericRetryPrompt is used for codes without a template and no hint.
const GenericRetryPrompt = "No he podido procesar ese dato. ¿Puedes intentarlo de nuevo?"

var recoveryTemplates = map[ErrorCode]string{
	CodeOutOfRange:      "El valor indicado para {field} está fuera del rango permitido. ¿Puedes revisarlo y enviarlo de nuevo?",
	CodeInvalidFormat:   "No he entendido el formato de {field}. ¿Puedes escribirlo de nuevo?",
	CodeInvalidOption:   "Esa opción no es válida para {field}. Elige una de estas: {options}.",
	CodeUnknownField:    "Ese dato no corresponde a este elemento. Sigamos con la información pendiente.",
	CodeMissingRequired: "Necesito que me indiques {field} para poder continuar.",
	CodeInvalidType:     "El valor de {field} no tiene el tipo esperado. ¿Puedes enviarlo de nuevo?",
}

// RecoveryInstruction tells the conversational layer how to recover.
type RecoveryInstruction struct {
	Action          string   `json:"action"`
	SuggestedPrompt string   `json:"suggested_prompt"`
	ValidOptions    []string `json:"valid_options,omitempty"`
}

// RecoveryResponse is the structured result of a rejected answer.
type RecoveryResponse struct {
	Success   bool                `json:"success"`
	ErrorCode ErrorCode           `json:"error_code"`
	Message   string              `json:"message"`
	FieldKey  string              `json:"field_key,omitempty"`
	UserValue any                 `json:"user_value,omitempty"`
	Recovery  RecoveryInstruction `json:"recovery"`
}

type recoveryOpts struct {
	fieldKey     string
	fieldLabel   string
	userValue    any
	validOptions []string
	hint         string
}

// RecoveryOption configures BuildRecovery.
type RecoveryOption func(*recoveryOpts)

// WithField sets the field the error refers to.
func WithField(key string) RecoveryOption {
	return func(o *recoveryOpts) { o.fieldKey = key }
}

// WithFieldLabel sets the human label used in the suggested prompt instead of the key.
func WithFieldLabel(label string) RecoveryOption {
	return func(o *recoveryOpts) { o.fieldLabel = label }
}

// WithUserValue records the rejected value.
func WithUserValue(v any) RecoveryOption {
	return func(o *recoveryOpts) { o.userValue = v }
}

// WithValidOptions lists the accepted values.
func WithValidOptions(options []string) RecoveryOption {
	return func(o *recoveryOpts) { o.validOptions = options }
}

// WithHint adds a free-text hint appended to the prompt, or used alone for unknown codes.
func WithHint(hint string) RecoveryOption {
	return func(o *recoveryOpts) { o.hint = hint }
}

// BuildRecovery maps a validation failure to a re-ask instruction. It never fails.
func BuildRecovery(code ErrorCode, message string, opts ...RecoveryOption) RecoveryResponse {
	var cfg recoveryOpts
	for _, opt := range opts {
		opt(&cfg)
	}

	prompt := suggestedPrompt(code, cfg)
	return RecoveryResponse{
		Success:   false,
		ErrorCode: code,
		Message:   message,
		FieldKey:  cfg.fieldKey,
		UserValue: cfg.userValue,
		Recovery: RecoveryInstruction{
			Action:          ActionReAsk,
			SuggestedPrompt: prompt,
			ValidOptions:    cfg.validOptions,
		},
	}
}

func suggestedPrompt(code ErrorCode, cfg recoveryOpts) string {
	tmpl, ok := recoveryTemplates[code]
	if !ok {
		if cfg.hint != "" {
			return cfg.hint
		}
		return GenericRetryPrompt
	}

	field := cfg.fieldLabel
	if field == "" {
		field = cfg.fieldKey
	}
	if field == "" {
		field = "ese dato"
	}
	options := strings.Join(cfg.validOptions, ", ")
	if options == "" {
		options = "las opciones indicadas"
	}

	prompt := strings.NewReplacer("{field}", field, "{options}", options).Replace(tmpl)
	if cfg.hint != "" {
		prompt += " " + cfg.hint
	}
	return prompt
}
