package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepeccz/msi-a-sub001/internal/chatwoot"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/store"
)

func toolRequest(conversationID string) EscalationRequest {
	return EscalationRequest{
		ConversationID: conversationID,
		Source:         models.SourceToolCall,
		Reason:         "El cliente pide hablar con una persona",
		UserID:         "7",
		UserPhone:      "+34600111222",
		UserName:       "Ana",
		MessagePreview: "quiero hablar con alguien",
	}
}

func TestEscalator_CreatesAndRunsAllSteps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	report, err := h.escal.Ensure(ctx, toolRequest("42"))
	require.NoError(t, err)
	require.True(t, report.Created)
	require.NotNil(t, report.Escalation)
	assert.Equal(t, models.EscalationStatusPending, report.Escalation.Status)
	assert.Equal(t, "+34600111222", report.Escalation.Metadata["user_phone"])

	require.Len(t, report.Steps, 5)
	assert.Empty(t, report.Failed())

	assert.Len(t, h.channel.Calls("DisableAutomation"), 1)
	labels := h.channel.Calls("AddLabels")
	require.Len(t, labels, 1)
	assert.Equal(t, []string{LabelEscalated}, labels[0].Labels)
	notes := h.channel.Calls("AddNote")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Content, report.Escalation.ID)
	assert.Contains(t, notes[0].Content, "Ana (+34600111222)")
	sent := h.channel.Calls("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, DefaultUserNotice, sent[0].Content)
	assert.Equal(t, 1, h.alerts.count())
	assert.Equal(t, 1, h.metrics.get("escalation:tool_call:created"))

	attrs, err := h.channel.GetConversationAttributes(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, false, attrs["atencion_automatica"])
}

func TestEscalator_IdempotentSequential(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.escal.Ensure(ctx, toolRequest("42"))
	require.NoError(t, err)
	second, err := h.escal.Ensure(ctx, toolRequest("42"))
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Empty(t, second.Steps)
	assert.Equal(t, first.Escalation.ID, second.Escalation.ID)

	list, err := h.store.ListEscalations(ctx, store.EscalationFilter{ConversationID: "42"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, h.channel.Calls("AddNote"), 1)
}

func TestEscalator_IdempotentConcurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	const deliveries = 6
	var wg sync.WaitGroup
	created := make([]bool, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := h.escal.Ensure(ctx, toolRequest("42"))
			assert.NoError(t, err)
			created[i] = r.Created
		}(i)
	}
	wg.Wait()

	n := 0
	for _, c := range created {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Len(t, h.channel.Calls("DisableAutomation"), 1)
}

func TestEscalator_StepFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.channel.SetError("AddLabels", errors.New("label service down"))
	h.channel.SetError("DisableAutomation", errors.New("403 forbidden"))
	h.alerts.err = errors.New("slack 500")

	report, err := h.escal.Ensure(ctx, toolRequest("42"))
	require.NoError(t, err)
	assert.True(t, report.Created)

	failed := report.Failed()
	names := make([]string, 0, len(failed))
	for _, s := range failed {
		names = append(names, s.Name)
		assert.NotEmpty(t, s.Error)
	}
	assert.ElementsMatch(t, []string{StepAddLabels, StepDisableAutomation, StepOpsAlert}, names)

	assert.Len(t, h.channel.Calls("AddNote"), 1, "note still written")
	assert.Len(t, h.channel.Calls("SendMessage"), 1, "user still notified")
	assert.Len(t, h.channel.Calls("AddLabels"), 2, "retried once")
	assert.Equal(t, 1, h.metrics.get("failure:add_labels"))
}

// cancelAfterCreate cancels the caller's context once the escalation row exists.
type cancelAfterCreate struct {
	*store.InMemoryStore
	cancel context.CancelFunc
}

func (c *cancelAfterCreate) CreateEscalationIfAbsent(ctx context.Context, e models.Escalation) (*models.Escalation, bool, error) {
	stored, created, err := c.InMemoryStore.CreateEscalationIfAbsent(ctx, e)
	c.cancel()
	return stored, created, err
}

// ctxChannel fails every call made on a done context.
type ctxChannel struct {
	*chatwoot.MockClient
}

func (c ctxChannel) DisableAutomation(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MockClient.DisableAutomation(ctx, id)
}

func (c ctxChannel) SendMessage(ctx context.Context, id int, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MockClient.SendMessage(ctx, id, content)
}

func (c ctxChannel) AddLabels(ctx context.Context, id int, labels []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MockClient.AddLabels(ctx, id, labels)
}

func (c ctxChannel) AddNote(ctx context.Context, id int, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MockClient.AddNote(ctx, id, content)
}

func TestEscalator_StepsSurviveCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &cancelAfterCreate{InMemoryStore: store.NewInMemoryStore(), cancel: cancel}
	channel := chatwoot.NewMockClient()
	escal := NewEscalator(st, ctxChannel{MockClient: channel},
		WithEscalatorRetry(1, 1, time.Millisecond),
		WithStepTimeout(5*time.Second))

	report, err := escal.Ensure(ctx, toolRequest("42"))
	require.NoError(t, err)
	require.True(t, report.Created)
	assert.Error(t, ctx.Err(), "caller context is cancelled")
	assert.Empty(t, report.Failed())

	assert.Len(t, channel.Calls("DisableAutomation"), 1)
	assert.Len(t, channel.Calls("SendMessage"), 1)
	assert.Len(t, channel.Calls("AddLabels"), 1)
	assert.Len(t, channel.Calls("AddNote"), 1)
}

func TestEscalator_PhoneNotification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := NewEscalator(h.store, h.channel, WithPhoneSender(h.phone), WithUserNotice("Te atiende una persona."),
		WithEscalatorRetry(1, 1, time.Millisecond))

	_, err := e.Ensure(ctx, toolRequest("42"))
	require.NoError(t, err)

	sent := h.phone.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+34600111222", sent[0].To)
	assert.Equal(t, "Te atiende una persona.", sent[0].Body)
	assert.Empty(t, h.channel.Calls("SendMessage"))
}

func TestEscalator_PhoneFallsBackToChannelWithoutNumber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := NewEscalator(h.store, h.channel, WithPhoneSender(h.phone))

	req := toolRequest("42")
	req.UserPhone = ""
	_, err := e.Ensure(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, h.phone.Sent())
	assert.Len(t, h.channel.Calls("SendMessage"), 1)
}

func TestEscalator_NonNumericConversation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	report, err := h.escal.Ensure(ctx, toolRequest("wa-1"))
	require.NoError(t, err)
	assert.True(t, report.Created)

	for _, s := range report.Steps {
		if s.Name == StepOpsAlert {
			assert.NoError(t, s.Err)
			continue
		}
		assert.ErrorIs(t, s.Err, models.ErrNonNumericChannelID, s.Name)
	}
	assert.Empty(t, h.channel.Calls(""))
}

func TestEscalator_CreateRetriedThenSurfaced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.store.createFailures.Store(2)
	report, err := h.escal.Ensure(ctx, toolRequest("42"))
	require.NoError(t, err, "third attempt succeeds")
	assert.True(t, report.Created)

	h.store.createFailures.Store(100)
	_, err = h.escal.Ensure(ctx, toolRequest("43"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, h.metrics.get("escalation:tool_call:error"))
	assert.Len(t, h.channel.Calls("AddNote"), 1, "no side effects for a failed create")
}

func TestEscalator_RequiresConversationID(t *testing.T) {
	h := newHarness(t)
	_, err := h.escal.Ensure(context.Background(), EscalationRequest{Source: models.SourceToolCall})
	assert.ErrorIs(t, err, models.ErrEmptyConversationID)
}

func TestLabelsFor(t *testing.T) {
	assert.Equal(t, []string{LabelEscalated, LabelPanicButton}, LabelsFor(models.SourceAgentDisabled))
	assert.Equal(t, []string{LabelEscalated}, LabelsFor(models.SourceToolCall))
}

func TestBuildNote(t *testing.T) {
	esc := &models.Escalation{ID: "esc-1"}
	note := BuildNote(EscalationRequest{Source: models.SourceAgentDisabled, Reason: "pánico"}, esc)
	assert.Contains(t, note, "botón de pánico")
	assert.Contains(t, note, "Motivo: pánico")
	assert.Contains(t, note, "Usuario: desconocido")
	assert.Contains(t, note, "ID de escalación: esc-1")
}
