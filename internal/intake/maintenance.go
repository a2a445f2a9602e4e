package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pepeccz/msi-a-sub001/internal/alert"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/store"
)

// Maintenance defaults.
const (
	DefaultDedupRetention  = 72 * time.Hour
	DefaultStaleEscalation = 2 * time.Hour
	// maxListedStale bounds the escalations named in one reminder.
	maxListedStale = 10
)

// MaintenanceRepo is the storage the periodic jobs touch.
type MaintenanceRepo interface {
	store.DedupRepo
	store.EscalationRepo
}

// Maintenance holds the periodic jobs run by the scheduler.
type Maintenance struct {
	repo           MaintenanceRepo
	alerts         alert.Notifier
	dedupRetention time.Duration
	staleAfter     time.Duration
	now            func() time.Time
}

// MaintenanceOption configures Maintenance.
type MaintenanceOption func(*Maintenance)

// WithDedupRetention sets how long delivery ids are remembered.
func WithDedupRetention(d time.Duration) MaintenanceOption {
	return func(m *Maintenance) {
		if d > 0 {
			m.dedupRetention = d
		}
	}
}

// WithStaleAfter sets how long an escalation may stay pending before ops are reminded.
func WithStaleAfter(d time.Duration) MaintenanceOption {
	return func(m *Maintenance) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// WithMaintenanceClock overrides time.Now.
func WithMaintenanceClock(now func() time.Time) MaintenanceOption {
	return func(m *Maintenance) { m.now = now }
}

func NewMaintenance(repo MaintenanceRepo, alerts alert.Notifier, opts ...MaintenanceOption) *Maintenance {
	if alerts == nil {
		alerts = alert.NopNotifier{}
	}
	m := &Maintenance{
		repo:           repo,
		alerts:         alerts,
		dedupRetention: DefaultDedupRetention,
		staleAfter:     DefaultStaleEscalation,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PurgeDedup forgets delivery ids older than the retention window.
func (m *Maintenance) PurgeDedup(ctx context.Context) error {
	cutoff := m.now().Add(-m.dedupRetention)
	n, err := m.repo.PurgeDedup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge dedup: %w", err)
	}
	slog.Info("Maintenance.PurgeDedup: purged", "removed", n, "cutoff", cutoff)
	return nil
}

// StaleEscalations returns pending escalations older than the stale threshold, oldest first.
func (m *Maintenance) StaleEscalations(ctx context.Context) ([]models.Escalation, error) {
	filter := store.EscalationFilter{
		Status:        models.EscalationStatusPending,
		CreatedBefore: m.now().Add(-m.staleAfter),
		OldestFirst:   true,
		Limit:         store.DefaultListLimit,
	}
	var stale []models.Escalation
	for {
		page, err := m.repo.ListEscalations(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list pending escalations: %w", err)
		}
		stale = append(stale, page...)
		if len(page) < filter.Limit {
			return stale, nil
		}
		filter.Offset += len(page)
	}
}

// RemindStaleEscalations alerts ops about escalations nobody has picked up.
// Nothing is sent when there are none.
func (m *Maintenance) RemindStaleEscalations(ctx context.Context) error {
	stale, err := m.StaleEscalations(ctx)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		slog.Debug("Maintenance.RemindStaleEscalations: nothing pending")
		return nil
	}

	var lines []string
	for i, e := range stale {
		if i == maxListedStale {
			lines = append(lines, fmt.Sprintf("… y %d más", len(stale)-maxListedStale))
			break
		}
		age := m.now().Sub(e.CreatedAt).Round(time.Minute)
		lines = append(lines, fmt.Sprintf("• conversación %s (%s) pendiente desde hace %s", e.ConversationID, e.Source, age))
	}
	a := alert.Alert{
		Title:    fmt.Sprintf("%d escalaciones sin atender", len(stale)),
		Text:     strings.Join(lines, "\n"),
		Severity: "warning",
		Fields:   map[string]string{"umbral": m.staleAfter.String()},
	}
	if err := m.alerts.Notify(ctx, a); err != nil {
		return fmt.Errorf("send stale escalation reminder: %w", err)
	}
	slog.Info("Maintenance.RemindStaleEscalations: reminder sent", "stale", len(stale))
	return nil
}
