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

// Compile-time check that PostgresStore implements EscalationRepo.
var _ EscalationRepo = (*PostgresStore)(nil)

func (s *PostgresStore) CreateEscalationIfAbsent(ctx context.Context, e models.Escalation) (*models.Escalation, bool, error) {
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

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, conversation_id, user_id, reason, source, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT DO NOTHING`,
		e.ID, e.ConversationID, nilIfEmpty(e.UserID), e.Reason, e.Source, e.Status, metadata, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateEscalationIfAbsent failed", "error", err, "conversationID", e.ConversationID, "source", e.Source)
		return nil, false, fmt.Errorf("failed to create escalation for %s: %w", e.ConversationID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("escalation rows affected check failed: %w", err)
	}
	if n > 0 {
		slog.Debug("PostgresStore CreateEscalationIfAbsent created", "id", e.ID, "conversationID", e.ConversationID, "source", e.Source)
		return &e, true, nil
	}

	existing, err := s.GetOpenEscalation(ctx, e.ConversationID, e.Source)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("escalation insert for %s/%s conflicted but no open escalation found", e.ConversationID, e.Source)
	}
	slog.Debug("PostgresStore CreateEscalationIfAbsent existing", "id", existing.ID, "conversationID", e.ConversationID, "source", e.Source)
	return existing, false, nil
}

func (s *PostgresStore) GetOpenEscalation(ctx context.Context, conversationID, source string) (*models.Escalation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations
		 WHERE conversation_id = $1 AND source = $2 AND status IN ('pending', 'in_progress')
		 ORDER BY created_at DESC LIMIT 1`,
		conversationID, source)
	e, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOpenEscalation failed", "error", err, "conversationID", conversationID, "source", source)
		return nil, fmt.Errorf("failed to query open escalation: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) GetEscalation(ctx context.Context, id string) (*models.Escalation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id = $1`, id)
	e, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetEscalation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query escalation %s: %w", id, err)
	}
	return &e, nil
}

func (s *PostgresStore) ListEscalations(ctx context.Context, filter EscalationFilter) ([]models.Escalation, error) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ConversationID != "" {
		add("conversation_id = $%d", filter.ConversationID)
	}
	if filter.Source != "" {
		add("source = $%d", filter.Source)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore)
	}
	query := `SELECT ` + escalationColumns + ` FROM escalations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit, max(filter.Offset, 0))
	query += fmt.Sprintf(" ORDER BY created_at %s, id LIMIT $%d OFFSET $%d", sortDirection(filter), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore ListEscalations query failed", "error", err)
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
	slog.Debug("PostgresStore ListEscalations succeeded", "count", len(out))
	return out, nil
}

func (s *PostgresStore) UpdateEscalationStatus(ctx context.Context, id string, status models.EscalationStatus) error {
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
		`UPDATE escalations SET status = $1, updated_at = $2, resolved_at = COALESCE($3, resolved_at)
		 WHERE id = $4 AND status = $5`,
		status, now, resolvedAt, id, current.Status)
	if err != nil {
		slog.Error("PostgresStore UpdateEscalationStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update escalation %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s changed concurrently", models.ErrInvalidTransition, id)
	}
	slog.Info("PostgresStore UpdateEscalationStatus succeeded", "id", id, "from", current.Status, "to", status)
	return nil
}
