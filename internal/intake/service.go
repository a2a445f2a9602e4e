package intake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/store"
)

// ServiceRepo is the storage the Service needs around the Gate.
type ServiceRepo interface {
	store.DedupRepo
	store.StateRepo
}

// Result is what the webhook handler reports back for one delivery.
type Result struct {
	MessageID      string   `json:"message_id,omitempty"`
	ConversationID string   `json:"conversation_id"`
	Duplicate      bool     `json:"duplicate,omitempty"`
	Outcome        *Outcome `json:"outcome,omitempty"`
	// HandOff is true when the downstream conversation handler must not run.
	HandOff bool `json:"hand_off"`
}

// Service wraps the Gate with webhook dedup and the conversation checkpoint.
type Service struct {
	repo ServiceRepo
	gate *Gate
}

func NewService(repo ServiceRepo, gate *Gate) *Service {
	return &Service{repo: repo, gate: gate}
}

// HandleInbound processes one delivered customer message.
//
// Redelivered message ids are acknowledged without running the gate. The checkpoint is
// loaded (or created for a new conversation), passed through the gate and saved.
func (s *Service) HandleInbound(ctx context.Context, msg models.InboundMessage) (Result, error) {
	res := Result{MessageID: msg.ID, ConversationID: msg.ConversationID}
	if msg.ConversationID == "" {
		return res, models.ErrEmptyConversationID
	}

	if msg.ID != "" {
		fresh, err := s.repo.RecordInbound(ctx, msg.ID, msg.ConversationID)
		if err != nil {
			slog.Warn("Service.HandleInbound: dedup record failed, processing anyway", "messageID", msg.ID, "error", err)
		} else if !fresh {
			slog.Info("Service.HandleInbound: duplicate delivery ignored", "messageID", msg.ID, "conversationID", msg.ConversationID)
			res.Duplicate = true
			res.HandOff = true
			return res, nil
		}
	}

	state, err := s.repo.GetConversationState(ctx, msg.ConversationID)
	if err != nil {
		return res, fmt.Errorf("load conversation state: %w", err)
	}
	if state == nil {
		slog.Debug("Service.HandleInbound: new conversation", "conversationID", msg.ConversationID)
		state = models.NewConversationState(msg.ConversationID, msg.UserPhone)
	}

	outcome, err := s.gate.Process(ctx, state, msg)
	res.Outcome = &outcome
	res.HandOff = outcome.Decision.HandsOff()
	if err != nil {
		return res, err
	}

	if outcome.Decision != DecisionBlockedEscalated {
		if err := s.repo.SaveConversationState(ctx, state); err != nil {
			return res, fmt.Errorf("save conversation state: %w", err)
		}
	}
	if msg.ID != "" {
		if err := s.repo.MarkProcessed(ctx, msg.ID); err != nil {
			slog.Warn("Service.HandleInbound: mark processed failed", "messageID", msg.ID, "error", err)
		}
	}
	slog.Debug("Service.HandleInbound: done", "conversationID", msg.ConversationID, "decision", outcome.Decision)
	return res, nil
}
