package intake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pepeccz/msi-a-sub001/internal/chatwoot"
	"github.com/pepeccz/msi-a-sub001/internal/metrics"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/settings"
)

// ChannelReader reads the helpdesk's per-conversation attributes.
type ChannelReader interface {
	GetConversationAttributes(ctx context.Context, conversationID int) (map[string]any, error)
}

// Replier sends a text back into the customer's conversation.
type Replier interface {
	Reply(ctx context.Context, conversationID, text string) error
}

// ChannelReplier replies through the helpdesk conversation.
type ChannelReplier struct {
	API chatwoot.API
}

func (r ChannelReplier) Reply(ctx context.Context, conversationID, text string) error {
	id, err := chatwoot.ParseConversationID(conversationID)
	if err != nil {
		return err
	}
	return r.API.SendMessage(ctx, id, text)
}

// Outcome is the result of one Process call.
type Outcome struct {
	Decision Decision `json:"decision"`

	// ChannelDisabled is the helpdesk hand-off signal as read this turn.
	ChannelDisabled  bool `json:"channel_disabled"`
	KillSwitchActive bool `json:"kill_switch_active"`

	// Set on AGENT_DISABLED_AUTO_REPLY.
	AutoReply  string            `json:"auto_reply,omitempty"`
	ReplyError string            `json:"reply_error,omitempty"`
	Escalation *EscalationReport `json:"escalation,omitempty"`

	// IsFirstInteraction is set on INGESTED when the history was empty.
	IsFirstInteraction bool `json:"is_first_interaction,omitempty"`

	// Err is a failed primary write (escalation create or counter). The turn still completes.
	Err error `json:"-"`
}

// Gate evaluates each inbound message against the kill switch and the helpdesk hand-off flag.
type Gate struct {
	settings  settings.Provider
	channel   ChannelReader
	replier   Replier
	escalator EscalationEnsurer
	counter   CounterToucher
	metrics   metrics.Recorder
	now       func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateMetrics sets the metrics recorder.
func WithGateMetrics(r metrics.Recorder) GateOption {
	return func(g *Gate) { g.metrics = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

func NewGate(p settings.Provider, channel ChannelReader, replier Replier, escalator EscalationEnsurer, counter CounterToucher, opts ...GateOption) *Gate {
	g := &Gate{
		settings:  p,
		channel:   channel,
		replier:   replier,
		escalator: escalator,
		counter:   counter,
		metrics:   metrics.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process evaluates msg against state and applies the resulting transition to state.
// Side-effect failures are logged and reported in the Outcome; the returned error is
// non-nil only for an unusable state or a cancelled context.
func (g *Gate) Process(ctx context.Context, state *models.ConversationState, msg models.InboundMessage) (Outcome, error) {
	if state == nil || state.ConversationID == "" {
		return Outcome{Decision: DecisionNormal}, models.ErrEmptyConversationID
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Decision: DecisionNormal}, err
	}

	out := Outcome{Decision: DecisionNormal}
	out.ChannelDisabled = g.channelAutomationDisabled(ctx, state.ConversationID)
	out.KillSwitchActive = settings.KillSwitchActive(ctx, g.settings)
	out.Decision = Decide(out.ChannelDisabled, out.KillSwitchActive)
	slog.Debug("Gate.Process: decided", "conversationID", state.ConversationID,
		"channelDisabled", out.ChannelDisabled, "killSwitch", out.KillSwitchActive, "decision", out.Decision)

	switch out.Decision {
	case DecisionBlockedEscalated:
		slog.Info("Gate.Process: conversation owned by a human, skipping", "conversationID", state.ConversationID)
	case DecisionAgentDisabledAutoReply:
		g.autoReply(ctx, state, msg, &out)
	case DecisionIngested:
		g.ingest(ctx, state, msg, &out)
	}
	g.metrics.IncGateDecision(string(out.Decision))

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// channelAutomationDisabled returns false ("no signal") on any lookup failure.
func (g *Gate) channelAutomationDisabled(ctx context.Context, conversationID string) bool {
	if g.channel == nil {
		return false
	}
	id, err := chatwoot.ParseConversationID(conversationID)
	if err != nil {
		slog.Warn("Gate: conversation id is not numeric, skipping hand-off check", "conversationID", conversationID, "error", err)
		return false
	}
	attrs, err := g.channel.GetConversationAttributes(ctx, id)
	if err != nil {
		slog.Warn("Gate: hand-off check failed, continuing", "conversationID", conversationID, "error", err)
		return false
	}
	return chatwoot.AutomationDisabled(attrs)
}

func (g *Gate) autoReply(ctx context.Context, state *models.ConversationState, msg models.InboundMessage, out *Outcome) {
	out.AutoReply = settings.AutoReplyMessage(ctx, g.settings)
	if err := g.replier.Reply(ctx, state.ConversationID, out.AutoReply); err != nil {
		out.ReplyError = err.Error()
		slog.Error("Gate: auto-reply failed", "conversationID", state.ConversationID, "error", err)
	}

	report, err := g.escalator.Ensure(ctx, EscalationRequest{
		ConversationID: state.ConversationID,
		Source:         models.SourceAgentDisabled,
		Reason:         "Agente desactivado por el operador (botón de pánico)",
		UserID:         firstNonEmpty(msg.UserID, state.UserID),
		UserPhone:      firstNonEmpty(msg.UserPhone, state.UserPhone),
		UserName:       msg.SenderName,
		MessagePreview: msg.Content,
	})
	out.Escalation = &report
	if err != nil {
		out.Err = err
		slog.Error("Gate: escalation failed", "conversationID", state.ConversationID, "error", err)
	}

	state.ClearTransient()
}

func (g *Gate) ingest(ctx context.Context, state *models.ConversationState, msg models.InboundMessage, out *Outcome) {
	now := g.now()
	isFirst := len(state.Messages) == 0
	if state.UserPhone == "" {
		state.UserPhone = msg.UserPhone
	}
	if state.UserID == "" {
		state.UserID = msg.UserID
	}
	state.AppendMessage(models.HistoryMessage{Role: models.RoleUser, Content: msg.Content, Time: now})
	state.TotalMessageCount++
	state.IsFirstInteraction = isFirst
	state.IncomingAttachments = msg.Attachments
	state.LastMessageAt = now
	out.IsFirstInteraction = isFirst

	if err := g.counter.Touch(ctx, state.ConversationID, state.UserID, isFirst); err != nil {
		out.Err = errors.Join(out.Err, err)
		slog.Error("Gate: counter touch failed", "conversationID", state.ConversationID, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
