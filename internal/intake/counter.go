package intake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pepeccz/msi-a-sub001/internal/metrics"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/store"
)

// Counter write paths, used as metric labels.
const (
	PathInsert    = "insert"
	PathIncrement = "increment"
	PathFallback  = "fallback"
)

// CounterToucher records one more message for a conversation.
type CounterToucher interface {
	Touch(ctx context.Context, conversationID, userID string, isFirst bool) error
}

// Counter keeps the durable per-conversation message count.
// Both writes add one, so neither is retried: a write that committed before its
// error was reported would be counted twice.
type Counter struct {
	repo    store.CounterRepo
	metrics metrics.Recorder
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithCounterMetrics sets the metrics recorder.
func WithCounterMetrics(r metrics.Recorder) CounterOption {
	return func(c *Counter) { c.metrics = r }
}

func NewCounter(repo store.CounterRepo, opts ...CounterOption) *Counter {
	c := &Counter{repo: repo, metrics: metrics.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Touch inserts the counter row on a first message and increments it otherwise.
// A missing row on the increment path is recreated rather than reported.
func (c *Counter) Touch(ctx context.Context, conversationID, userID string, isFirst bool) error {
	if conversationID == "" {
		return models.ErrEmptyConversationID
	}

	if !isFirst {
		affected, err := c.repo.IncrementCounter(ctx, conversationID)
		if err != nil {
			slog.Error("Counter.Touch: increment failed", "conversationID", conversationID, "error", err)
			return fmt.Errorf("increment counter for %s: %w", conversationID, err)
		}
		if affected > 0 {
			c.metrics.IncCounterTouch(PathIncrement)
			slog.Debug("Counter.Touch: incremented", "conversationID", conversationID)
			return nil
		}
		slog.Warn("Counter.Touch: counter row missing, recreating", "conversationID", conversationID)
	}

	count, err := c.repo.InsertOrIncrementCounter(ctx, conversationID, userID)
	if err != nil {
		slog.Error("Counter.Touch: upsert failed", "conversationID", conversationID, "error", err)
		return fmt.Errorf("upsert counter for %s: %w", conversationID, err)
	}
	path := PathInsert
	if !isFirst {
		path = PathFallback
	}
	c.metrics.IncCounterTouch(path)
	slog.Debug("Counter.Touch: upserted", "conversationID", conversationID, "path", path, "count", count)
	return nil
}
