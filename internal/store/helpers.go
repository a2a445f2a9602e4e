package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// DefaultListLimit bounds ListEscalations when no limit is given.
const DefaultListLimit = 100

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// sortDirection returns the ORDER BY direction for created_at.
func sortDirection(filter EscalationFilter) string {
	if filter.OldestFirst {
		return "ASC"
	}
	return "DESC"
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const escalationColumns = `id, conversation_id, user_id, reason, source, status, metadata, created_at, updated_at, resolved_at`

// scanEscalation scans an Escalation selected with escalationColumns.
func scanEscalation(row rowScanner) (models.Escalation, error) {
	var e models.Escalation
	var userID, metadata sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.ConversationID, &userID, &e.Reason, &e.Source, &e.Status,
		&metadata, &e.CreatedAt, &e.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		return e, err
	}
	e.UserID = userID.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			slog.Warn("store.scanEscalation: metadata unmarshal failed", "error", err, "id", e.ID)
		}
	}
	return e, nil
}

// marshalMetadata encodes escalation metadata for storage; nil stays NULL.
func marshalMetadata(m map[string]any) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal escalation metadata: %w", err)
	}
	return string(data), nil
}

// decodeState unmarshals a checkpointed ConversationState.
func decodeState(conversationID string, data []byte) (*models.ConversationState, error) {
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Error("store.decodeState: JSON unmarshal failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to decode conversation state %s: %w", conversationID, err)
	}
	if state.ConversationID == "" {
		state.ConversationID = conversationID
	}
	return &state, nil
}

// checkTransition validates an escalation status change.
func checkTransition(current, next models.EscalationStatus) error {
	if !models.IsValidEscalationStatus(next) {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, next)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, next)
	}
	return nil
}
