package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// Compile-time check that SQLiteStore implements EscalationRepo.
var _ EscalationRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) CreateEscalationIfAbsent(ctx context.Context, e models.Escalation) (*models.Escalation, bool, error) {
	if e.ConversationID == "" {
		return nil, false, models.ErrEmptyConversationID
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	e.Status = models.EscalationStatusPending
	e.CreatedAt, e.UpdatedAt = now, now
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return nil, false, err
	}

	// The partial unique index on open escalations turns a concurrent duplicate into a no-op.
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, conversation_id, user_id, reason, source, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		e.ID, e.ConversationID, nilIfEmpty(e.UserID), e.Reason, e.Source, e.Status, metadata, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateEscalationIfAbsent failed", "error", err, "conversationID", e.ConversationID, "source", e.Source)
		return nil, false, fmt.Errorf("failed to create escalation for %s: %w", e.ConversationID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("escalation rows affected check failed: %w", err)
	}
	if n > 0 {
		slog.Debug("SQLiteStore CreateEscalationIfAbsent created", "id", e.ID, "conversationID", e.ConversationID, "source", e.Source)
		return &e, true, nil
	}

	existing, err := s.GetOpenEscalation(ctx, e.ConversationID, e.Source)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("escalation insert for %s/%s conflicted but no open escalation found", e.ConversationID, e.Source)
	}
	slog.Debug("SQLiteStore CreateEscalationIfAbsent existing", "id", existing.ID, "conversationID", e.ConversationID, "source", e.Source)
	return existing, false, nil
}

func (s *SQLiteStore) GetOpenEscalation(ctx context.Context, conversationID, source string) (*models.Escalation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations
		 WHERE conversation_id = ? AND source = ? AND status IN ('pending', 'in_progress')
		 ORDER BY created_at DESC LIMIT 1`,
		conversationID, source)
	e, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOpenEscalation failed", "error", err, "conversationID", conversationID, "source", source)
		return nil, fmt.Errorf("failed to query open escalation: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) GetEscalation(ctx context.Context, id string) (*models.Escalation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id = ?`, id)
	e, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetEscalation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query escalation %s: %w", id, err)
	}
	return &e, nil
}

func (s *SQLiteStore) ListEscalations(ctx context.Context, filter EscalationFilter) ([]models.Escalation, error) {
	var conds []string
	var args []any
	if filter.ConversationID != "" {
		conds = append(conds, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.CreatedBefore)
	}
	query := `SELECT ` + escalationColumns + ` FROM escalations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY created_at " + sortDirection(filter) + ", id LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListEscalations query failed", "error", err)
		return nil, fmt.Errorf("failed to query escalations: %w", err)
	}
	defer rows.Close()

	var out []models.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalation rows: %w", err)
	}
	slog.Debug("SQLiteStore ListEscalations succeeded", "count", len(out))
	return out, nil
}

func (s *SQLiteStore) UpdateEscalationStatus(ctx context.Context, id string, status models.EscalationStatus) error {
	current, err := s.GetEscalation(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %s", models.ErrEscalationNotFound, id)
	}
	if err := checkTransition(current.Status, status); err != nil {
		return err
	}

	now := time.Now()
	var resolvedAt interface{}
	if status == models.EscalationStatusResolved {
		resolvedAt = now
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE escalations SET status = ?, updated_at = ?, resolved_at = COALESCE(?, resolved_at)
		 WHERE id = ? AND status = ?`,
		status, now, resolvedAt, id, current.Status)
	if err != nil {
		slog.Error("SQLiteStore UpdateEscalationStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update escalation %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s changed concurrently", models.ErrInvalidTransition, id)
	}
	slog.Info("SQLiteStore UpdateEscalationStatus succeeded", "id", id, "from", current.Status, "to", status)
	return nil
}
