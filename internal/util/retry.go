package util

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrPermanent marks an error that Retry must not retry. Wrap it with fmt.Errorf("...: %w", ErrPermanent).
var ErrPermanent = errors.New("permanent failure")

// Retry runs fn up to attempts times with exponential backoff: base, 2*base, 4*base, ...
// It stops early on success, on an error wrapping ErrPermanent, or when ctx is done.
// The last error is returned.
func Retry(ctx context.Context, name string, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		backoff := base * time.Duration(1<<attempt)
		slog.Warn("util.Retry: attempt failed", "name", name, "attempt", attempt+1, "of", attempts, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempts, err)
}
