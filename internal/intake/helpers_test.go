package intake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pepeccz/msi-a-sub001/internal/alert"
	"github.com/pepeccz/msi-a-sub001/internal/chatwoot"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/settings"
	"github.com/pepeccz/msi-a-sub001/internal/store"
	"github.com/pepeccz/msi-a-sub001/internal/twiliowhatsapp"
)

var errTransient = errors.New("connection reset")

// recordingMetrics counts every recorded label combination.
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]int)}
}

func (r *recordingMetrics) inc(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
}

func (r *recordingMetrics) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *recordingMetrics) IncGateDecision(d string)         { r.inc("decision:" + d) }
func (r *recordingMetrics) IncEscalation(src, res string)    { r.inc("escalation:" + src + ":" + res) }
func (r *recordingMetrics) IncSideEffectFailure(step string) { r.inc("failure:" + step) }
func (r *recordingMetrics) IncCounterTouch(path string)      { r.inc("counter:" + path) }

// recordingAlerts captures alerts.
type recordingAlerts struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (r *recordingAlerts) Notify(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// flakyStore fails the first N escalation creates and counter writes.
type flakyStore struct {
	*store.InMemoryStore
	createFailures  atomic.Int32
	counterFailures atomic.Int32
	settingsErr     error
}

func (f *flakyStore) CreateEscalationIfAbsent(ctx context.Context, e models.Escalation) (*models.Escalation, bool, error) {
	if f.createFailures.Add(-1) >= 0 {
		return nil, false, errTransient
	}
	return f.InMemoryStore.CreateEscalationIfAbsent(ctx, e)
}

func (f *flakyStore) IncrementCounter(ctx context.Context, id string) (int64, error) {
	if f.counterFailures.Add(-1) >= 0 {
		return 0, errTransient
	}
	return f.InMemoryStore.IncrementCounter(ctx, id)
}

func (f *flakyStore) InsertOrIncrementCounter(ctx context.Context, id, user string) (int, error) {
	if f.counterFailures.Add(-1) >= 0 {
		return 0, errTransient
	}
	return f.InMemoryStore.InsertOrIncrementCounter(ctx, id, user)
}

func (f *flakyStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	if f.settingsErr != nil {
		return "", false, f.settingsErr
	}
	return f.InMemoryStore.GetSetting(ctx, key)
}

// harness wires a Gate to in-memory collaborators.
type harness struct {
	store    *flakyStore
	channel  *chatwoot.MockClient
	phone    *twiliowhatsapp.MockClient
	alerts   *recordingAlerts
	metrics  *recordingMetrics
	gate     *Gate
	escal    *Escalator
	counter  *Counter
	settings *settings.CachedProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   &flakyStore{InMemoryStore: store.NewInMemoryStore()},
		channel: chatwoot.NewMockClient(),
		phone:   twiliowhatsapp.NewMockClient(),
		alerts:  &recordingAlerts{},
		metrics: newRecordingMetrics(),
	}
	h.settings = settings.NewCachedProvider(h.store, settings.WithTTL(time.Hour))
	h.escal = NewEscalator(h.store, h.channel,
		WithAlerts(h.alerts),
		WithEscalatorMetrics(h.metrics),
		WithEscalatorRetry(3, 2, time.Millisecond))
	h.counter = NewCounter(h.store, WithCounterMetrics(h.metrics))
	h.gate = NewGate(h.settings, h.channel, ChannelReplier{API: h.channel}, h.escal, h.counter, WithGateMetrics(h.metrics))
	return h
}

func (h *harness) setKillSwitch(t *testing.T, active bool) {
	t.Helper()
	value := "true"
	if active {
		value = "false"
	}
	if err := h.settings.Set(context.Background(), settings.KeyAgentEnabled, value); err != nil {
		t.Fatalf("set kill switch: %v", err)
	}
}

func (h *harness) handOff(conversationID int) {
	h.channel.Attributes[conversationID] = map[string]any{chatwoot.AutomationAttribute: false}
}

func inbound(conversationID, content string) models.InboundMessage {
	return models.InboundMessage{
		ID:             conversationID + "-" + content,
		ConversationID: conversationID,
		UserPhone:      "+34600111222",
		UserID:         "7",
		SenderName:     "Ana",
		Content:        content,
		ReceivedAt:     time.Now(),
	}
}
