package models

import "time"

// EscalationStatus represents the lifecycle state of an escalation.
type EscalationStatus string

const (
	EscalationStatusPending    EscalationStatus = "pending"
	EscalationStatusInProgress EscalationStatus = "in_progress"
	EscalationStatusResolved   EscalationStatus = "resolved"
)

// Escalation sources.
const (
	SourceAgentDisabled = "agent_disabled"
	SourceToolCall      = "tool_call"
)

// IsValidEscalationStatus checks if the given status is known.
func IsValidEscalationStatus(s EscalationStatus) bool {
	switch s {
	case EscalationStatusPending, EscalationStatusInProgress, EscalationStatusResolved:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the status still counts toward the one-open-escalation rule.
func (s EscalationStatus) IsOpen() bool {
	return s == EscalationStatusPending || s == EscalationStatusInProgress
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Escalations only move forward: pending -> in_progress -> resolved, or pending -> resolved.
func (s EscalationStatus) CanTransitionTo(next EscalationStatus) bool {
	switch s {
	case EscalationStatusPending:
		return next == EscalationStatusInProgress || next == EscalationStatusResolved
	case EscalationStatusInProgress:
		return next == EscalationStatusResolved
	default:
		return false
	}
}

// Escalation is a durable record of one human hand-off.
// At most one open escalation exists per (ConversationID, Source).
type Escalation struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	UserID         string           `json:"user_id,omitempty"`
	Reason         string           `json:"reason"`
	Source         string           `json:"source"`
	Status         EscalationStatus `json:"status"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}

// ConversationHistory is the durable per-conversation message counter.
type ConversationHistory struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	MessageCount   int       `json:"message_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}
