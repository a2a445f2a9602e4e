package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pepeccz/msi-a-sub001/internal/alert"
	"github.com/pepeccz/msi-a-sub001/internal/chatwoot"
	"github.com/pepeccz/msi-a-sub001/internal/metrics"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/store"
	"github.com/pepeccz/msi-a-sub001/internal/twiliowhatsapp"
	"github.com/pepeccz/msi-a-sub001/internal/util"
)

// Best-effort steps run after a new escalation is created.
const (
	StepDisableAutomation = "disable_automation"
	StepNotifyUser        = "notify_user"
	StepAddLabels         = "add_labels"
	StepAddNote           = "add_note"
	StepOpsAlert          = "ops_alert"
)

// Labels attached to escalated conversations.
const (
	LabelEscalated   = "escalado"
	LabelPanicButton = "panic-button"
)

// Escalation results, used as metric labels.
const (
	ResultCreated  = "created"
	ResultExisting = "existing"
	ResultError    = "error"
)

// DefaultUserNotice is sent to the customer when a conversation is handed to a human.
const DefaultUserNotice = "Te hemos pasado con un agente de nuestro equipo. " +
	"Te responderá en este mismo chat lo antes posible."

// Retry defaults for the escalation create. The create is idempotent: a retry
// after a committed insert finds the open row.
const (
	DefaultWriteAttempts = 3
	DefaultWriteBackoff  = 50 * time.Millisecond
)

// DefaultStepAttempts bounds retries of each best-effort step.
const DefaultStepAttempts = 2

// DefaultStepTimeout bounds the whole hand-off once the escalation row exists.
// The steps outlive the caller's context so a dropped webhook request cannot
// leave a created escalation without its side effects.
const DefaultStepTimeout = 30 * time.Second

// EscalationRequest describes the hand-off to create.
type EscalationRequest struct {
	ConversationID string
	Source         string
	Reason         string
	UserID         string
	UserPhone      string
	UserName       string
	MessagePreview string
	Metadata       map[string]any
}

// StepResult is the outcome of one best-effort step.
type StepResult struct {
	Name    string `json:"name"`
	Skipped bool   `json:"skipped,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// EscalationReport summarizes one Ensure call.
type EscalationReport struct {
	Escalation *models.Escalation `json:"escalation,omitempty"`
	Created    bool               `json:"created"`
	Steps      []StepResult       `json:"steps,omitempty"`
}

// Failed returns the steps that ran and failed.
func (r EscalationReport) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// EscalationEnsurer guarantees one open escalation per (conversation, source).
type EscalationEnsurer interface {
	Ensure(ctx context.Context, req EscalationRequest) (EscalationReport, error)
}

// Escalator creates escalations and performs the hand-off side effects.
type Escalator struct {
	repo         store.EscalationRepo
	channel      chatwoot.API
	phone        twiliowhatsapp.Sender
	alerts       alert.Notifier
	metrics      metrics.Recorder
	notice       string
	attempts     int
	backoff      time.Duration
	stepAttempts int
	stepTimeout  time.Duration
}

// EscalatorOption configures an Escalator.
type EscalatorOption func(*Escalator)

// WithPhoneSender notifies the customer by phone instead of through the helpdesk conversation.
func WithPhoneSender(s twiliowhatsapp.Sender) EscalatorOption {
	return func(e *Escalator) { e.phone = s }
}

// WithAlerts sets the operator alert channel.
func WithAlerts(n alert.Notifier) EscalatorOption {
	return func(e *Escalator) { e.alerts = n }
}

// WithEscalatorMetrics sets the metrics recorder.
func WithEscalatorMetrics(r metrics.Recorder) EscalatorOption {
	return func(e *Escalator) { e.metrics = r }
}

// WithUserNotice replaces DefaultUserNotice.
func WithUserNotice(text string) EscalatorOption {
	return func(e *Escalator) {
		if strings.TrimSpace(text) != "" {
			e.notice = text
		}
	}
}

// WithStepTimeout bounds the hand-off steps run after a create.
func WithStepTimeout(d time.Duration) EscalatorOption {
	return func(e *Escalator) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithEscalatorRetry sets retry attempts and base backoff for the create and for each step.
func WithEscalatorRetry(createAttempts, stepAttempts int, backoff time.Duration) EscalatorOption {
	return func(e *Escalator) {
		e.attempts, e.stepAttempts, e.backoff = createAttempts, stepAttempts, backoff
	}
}

func NewEscalator(repo store.EscalationRepo, channel chatwoot.API, opts ...EscalatorOption) *Escalator {
	e := &Escalator{
		repo:         repo,
		channel:      channel,
		alerts:       alert.NopNotifier{},
		metrics:      metrics.Nop(),
		notice:       DefaultUserNotice,
		attempts:     DefaultWriteAttempts,
		backoff:      DefaultWriteBackoff,
		stepAttempts: DefaultStepAttempts,
		stepTimeout:  DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ensure creates the escalation unless one is already open for the pair, then runs the
// hand-off steps concurrently. Step failures are recorded in the report and never
// returned; only a failed create is.
func (e *Escalator) Ensure(ctx context.Context, req EscalationRequest) (EscalationReport, error) {
	var report EscalationReport
	if req.ConversationID == "" {
		return report, models.ErrEmptyConversationID
	}

	var stored *models.Escalation
	var created bool
	err := util.Retry(ctx, "escalation.create", e.attempts, e.backoff, func(ctx context.Context) error {
		var err error
		stored, created, err = e.repo.CreateEscalationIfAbsent(ctx, models.Escalation{
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Reason:         req.Reason,
			Source:         req.Source,
			Metadata:       escalationMetadata(req),
		})
		return err
	})
	if err != nil {
		e.metrics.IncEscalation(req.Source, ResultError)
		slog.Error("Escalator.Ensure: create failed", "conversationID", req.ConversationID, "source", req.Source, "error", err)
		return report, fmt.Errorf("ensure escalation for %s: %w", req.ConversationID, err)
	}
	report.Escalation, report.Created = stored, created

	if !created {
		e.metrics.IncEscalation(req.Source, ResultExisting)
		slog.Info("Escalator.Ensure: escalation already open", "conversationID", req.ConversationID, "source", req.Source, "escalationID", stored.ID)
		return report, nil
	}
	e.metrics.IncEscalation(req.Source, ResultCreated)
	slog.Info("Escalator.Ensure: escalation created", "conversationID", req.ConversationID, "source", req.Source, "escalationID", stored.ID)

	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.stepTimeout)
	defer cancel()
	report.Steps = e.runSteps(stepCtx, req, stored)
	return report, nil
}

func escalationMetadata(req EscalationRequest) map[string]any {
	m := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		m[k] = v
	}
	if req.UserPhone != "" {
		m["user_phone"] = req.UserPhone
	}
	if req.UserName != "" {
		m["user_name"] = req.UserName
	}
	if req.MessagePreview != "" {
		m["message_preview"] = truncate(req.MessagePreview, 200)
	}
	return m
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// runSteps runs every step in its own goroutine. Steps never return their error to
// the group, so one failure cannot cancel the others.
func (e *Escalator) runSteps(ctx context.Context, req EscalationRequest, esc *models.Escalation) []StepResult {
	convID, parseErr := chatwoot.ParseConversationID(req.ConversationID)
	if parseErr != nil {
		slog.Warn("Escalator.runSteps: helpdesk steps will fail", "conversationID", req.ConversationID, "error", parseErr)
	}
	channelStep := func(fn func(ctx context.Context, id int) error) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			if parseErr != nil {
				return fmt.Errorf("%w: %w", util.ErrPermanent, parseErr)
			}
			return fn(ctx, convID)
		}
	}

	steps := []step{
		{StepDisableAutomation, channelStep(e.channel.DisableAutomation)},
		{StepNotifyUser, e.notifyUser(req, channelStep)},
		{StepAddLabels, channelStep(func(ctx context.Context, id int) error {
			return e.channel.AddLabels(ctx, id, LabelsFor(req.Source))
		})},
		{StepAddNote, channelStep(func(ctx context.Context, id int) error {
			return e.channel.AddNote(ctx, id, BuildNote(req, esc))
		})},
		{StepOpsAlert, func(ctx context.Context) error {
			return e.alerts.Notify(ctx, buildAlert(req, esc))
		}},
	}

	results := make([]StepResult, len(steps))
	var g errgroup.Group
	for i, s := range steps {
		g.Go(func() error {
			err := util.Retry(ctx, s.name, e.stepAttempts, e.backoff, s.run)
			res := StepResult{Name: s.name, Err: err}
			if err != nil {
				res.Error = err.Error()
				e.metrics.IncSideEffectFailure(s.name)
				slog.Warn("Escalator step failed", "step", s.name, "conversationID", req.ConversationID, "escalationID", esc.ID, "error", err)
			} else {
				slog.Debug("Escalator step done", "step", s.name, "conversationID", req.ConversationID)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Escalator) notifyUser(req EscalationRequest, channelStep func(func(context.Context, int) error) func(context.Context) error) func(ctx context.Context) error {
	if e.phone != nil && req.UserPhone != "" {
		return func(ctx context.Context) error {
			return e.phone.SendMessage(ctx, req.UserPhone, e.notice)
		}
	}
	return channelStep(func(ctx context.Context, id int) error {
		return e.channel.SendMessage(ctx, id, e.notice)
	})
}

// LabelsFor returns the helpdesk labels for an escalation source.
func LabelsFor(source string) []string {
	if source == models.SourceAgentDisabled {
		return []string{LabelEscalated, LabelPanicButton}
	}
	return []string{LabelEscalated}
}

// BuildNote renders the private note left for the human agent.
func BuildNote(req EscalationRequest, esc *models.Escalation) string {
	var b strings.Builder
	switch req.Source {
	case models.SourceAgentDisabled:
		b.WriteString("Escalación automática: agente desactivado (botón de pánico).\n")
	default:
		b.WriteString("Escalación solicitada durante la conversación.\n")
	}
	if req.Reason != "" {
		fmt.Fprintf(&b, "Motivo: %s\n", req.Reason)
	}
	user := req.UserName
	if user == "" {
		user = "desconocido"
	}
	fmt.Fprintf(&b, "Usuario: %s", user)
	if req.UserPhone != "" {
		fmt.Fprintf(&b, " (%s)", req.UserPhone)
	}
	b.WriteString("\n")
	if req.MessagePreview != "" {
		fmt.Fprintf(&b, "Último mensaje: %q\n", truncate(req.MessagePreview, 200))
	}
	fmt.Fprintf(&b, "ID de escalación: %s", esc.ID)
	return b.String()
}

func buildAlert(req EscalationRequest, esc *models.Escalation) alert.Alert {
	severity := "warning"
	if req.Source == models.SourceAgentDisabled {
		severity = "danger"
	}
	return alert.Alert{
		Title:    fmt.Sprintf("Nueva escalación (%s)", req.Source),
		Text:     req.Reason,
		Severity: severity,
		Fields: map[string]string{
			"conversation": req.ConversationID,
			"escalation":   esc.ID,
			"user":         req.UserPhone,
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
