package models

import (
	"time"
	"unicode/utf8"
)

// Conversation phases tracked in ConversationState.CurrentPhase.
const (
	PhaseIdle       = "idle"
	PhaseCollecting = "collecting"
	PhaseConfirming = "confirming"
)

// Message roles kept in the rolling history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryMessage is one entry of the rolling message history.
type HistoryMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Attachment is an inbound media reference received with a message.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}

// InboundMessage is a single customer message delivered by the channel.
type InboundMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	UserPhone      string       `json:"user_phone"`
	UserID         string       `json:"user_id,omitempty"`
	SenderName     string       `json:"sender_name,omitempty"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`
}

// ConversationState is the checkpointed working record of one conversation.
// It is created on the first inbound message and saved after every turn.
type ConversationState struct {
	ConversationID string `json:"conversation_id"`
	UserPhone      string `json:"user_phone"`
	UserID         string `json:"user_id,omitempty"`

	Messages           []HistoryMessage `json:"messages,omitempty"`
	TotalMessageCount  int              `json:"total_message_count"`
	IsFirstInteraction bool             `json:"is_first_interaction"`

	CurrentPhase      string         `json:"current_phase"`
	PendingAction     string         `json:"pending_action,omitempty"`
	PendingActionData map[string]any `json:"pending_action_data,omitempty"`

	// Active data-collection session.
	ElementCode string          `json:"element_code,omitempty"`
	Collected   CollectedValues `json:"collected,omitempty"`

	// Transient per-turn fields, cleared whenever the turn is short-circuited.
	IncomingAttachments []Attachment   `json:"incoming_attachments,omitempty"`
	TariffResult        map[string]any `json:"tariff_result,omitempty"`
	ImagesToSend        []string       `json:"images_to_send,omitempty"`
	SendImagesNow       bool           `json:"send_images_now,omitempty"`

	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewConversationState creates the state for a conversation seen for the first time.
func NewConversationState(conversationID, userPhone string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		ConversationID: conversationID,
		UserPhone:      userPhone,
		CurrentPhase:   PhaseIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AppendMessage adds a message to the rolling history, dropping the oldest entries
// beyond MaxHistoryMessages.
func (s *ConversationState) AppendMessage(m HistoryMessage) {
	if len(m.Content) > MaxMessageLength {
		cut := MaxMessageLength
		for cut > 0 && !utf8.RuneStart(m.Content[cut]) {
			cut--
		}
		m.Content = m.Content[:cut]
	}
	s.Messages = append(s.Messages, m)
	if over := len(s.Messages) - MaxHistoryMessages; over > 0 {
		s.Messages = append([]HistoryMessage(nil), s.Messages[over:]...)
	}
}

// ClearTransient resets the per-turn fields.
func (s *ConversationState) ClearTransient() {
	s.IncomingAttachments = nil
	s.TariffResult = nil
	s.ImagesToSend = nil
	s.SendImagesNow = false
}

// StartCollection begins a new data-collection session for an element.
func (s *ConversationState) StartCollection(elementCode string) {
	s.ElementCode = elementCode
	s.Collected = CollectedValues{}
	s.CurrentPhase = PhaseCollecting
}
