// Package store provides storage backends for the MSI-A intake service.
//
// It includes an in-memory store for tests and DSN-less runs, and SQLite and PostgreSQL
// stores that persist escalations, conversation counters, settings, conversation
// checkpoints and inbound message deduplication records.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// EscalationFilter narrows ListEscalations. Empty fields match everything.
type EscalationFilter struct {
	ConversationID string
	Source         string
	Status         models.EscalationStatus
	// CreatedBefore keeps escalations created strictly before it when set.
	CreatedBefore time.Time
	// OldestFirst sorts by creation time ascending instead of newest first.
	OldestFirst bool
	Limit       int
	Offset      int
}

// EscalationRepo persists human hand-off records.
type EscalationRepo interface {
	// CreateEscalationIfAbsent inserts e unless an open escalation already exists for
	// (e.ConversationID, e.Source). It returns the stored escalation and whether it was created.
	CreateEscalationIfAbsent(ctx context.Context, e models.Escalation) (*models.Escalation, bool, error)

	// GetOpenEscalation returns the open escalation for the pair, or nil.
	GetOpenEscalation(ctx context.Context, conversationID, source string) (*models.Escalation, error)

	// GetEscalation returns an escalation by id, or nil.
	GetEscalation(ctx context.Context, id string) (*models.Escalation, error)

	// ListEscalations returns escalations newest first.
	ListEscalations(ctx context.Context, filter EscalationFilter) ([]models.Escalation, error)

	// UpdateEscalationStatus moves an escalation forward in its lifecycle.
	UpdateEscalationStatus(ctx context.Context, id string, status models.EscalationStatus) error
}

// CounterRepo persists the per-conversation message counter.
type CounterRepo interface {
	// InsertOrIncrementCounter atomically creates the row with count 1 or increments it.
	// It returns the resulting message count.
	InsertOrIncrementCounter(ctx context.Context, conversationID, userID string) (int, error)

	// IncrementCounter increments an existing row and returns the number of rows affected.
	IncrementCounter(ctx context.Context, conversationID string) (int64, error)

	// GetConversationHistory returns the counter row, or nil.
	GetConversationHistory(ctx context.Context, conversationID string) (*models.ConversationHistory, error)
}

// SettingsRepo persists operator-controlled settings such as the kill switch.
type SettingsRepo interface {
	// GetSetting returns the value and whether the key exists.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// StateRepo checkpoints ConversationState between turns.
type StateRepo interface {
	// GetConversationState returns the saved state, or nil when the conversation is new.
	GetConversationState(ctx context.Context, conversationID string) (*models.ConversationState, error)
	SaveConversationState(ctx context.Context, state *models.ConversationState) error
}

// Store is the full storage surface used by the service.
type Store interface {
	EscalationRepo
	CounterRepo
	SettingsRepo
	StateRepo
	DedupRepo
	Close() error
}
