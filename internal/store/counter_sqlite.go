package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// Compile-time check that SQLiteStore implements CounterRepo.
var _ CounterRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) InsertOrIncrementCounter(ctx context.Context, conversationID, userID string) (int, error) {
	now := time.Now()
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_history (conversation_id, user_id, started_at, message_count, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (conversation_id) DO UPDATE SET
			message_count = conversation_history.message_count + 1,
			user_id = COALESCE(conversation_history.user_id, excluded.user_id),
			updated_at = excluded.updated_at
		RETURNING message_count`,
		conversationID, nilIfEmpty(userID), now, now).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore InsertOrIncrementCounter failed", "error", err, "conversationID", conversationID)
		return 0, fmt.Errorf("failed to upsert conversation history %s: %w", conversationID, err)
	}
	slog.Debug("SQLiteStore InsertOrIncrementCounter succeeded", "conversationID", conversationID, "count", count)
	return count, nil
}

func (s *SQLiteStore) IncrementCounter(ctx context.Context, conversationID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversation_history SET message_count = message_count + 1, updated_at = ? WHERE conversation_id = ?`,
		time.Now(), conversationID)
	if err != nil {
		slog.Error("SQLiteStore IncrementCounter failed", "error", err, "conversationID", conversationID)
		return 0, fmt.Errorf("failed to increment conversation history %s: %w", conversationID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counter rows affected check failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetConversationHistory(ctx context.Context, conversationID string) (*models.ConversationHistory, error) {
	var h models.ConversationHistory
	var userID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, started_at, message_count, updated_at FROM conversation_history WHERE conversation_id = ?`,
		conversationID).Scan(&h.ConversationID, &userID, &h.StartedAt, &h.MessageCount, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationHistory failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query conversation history %s: %w", conversationID, err)
	}
	h.UserID = userID.String
	return &h, nil
}
