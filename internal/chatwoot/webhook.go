package chatwoot

import (
	"strconv"
	"strings"
	"time"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// Webhook event names and message types.
const (
	EventMessageCreated = "message_created"
	MessageTypeIncoming = "incoming"
)

// WebhookEvent is the subset of a helpdesk webhook delivery the intake service reads.
type WebhookEvent struct {
	Event        string              `json:"event"`
	ID           int64               `json:"id"`
	Content      string              `json:"content"`
	MessageType  string              `json:"message_type"`
	Private      bool                `json:"private"`
	Sender       WebhookSender       `json:"sender"`
	Attachments  []WebhookAttachment `json:"attachments"`
	Conversation WebhookConversation `json:"conversation"`
}

type WebhookSender struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Type        string `json:"type"`
}

type WebhookAttachment struct {
	DataURL  string `json:"data_url"`
	FileType string `json:"file_type"`
}

type WebhookConversation struct {
	ID               int64          `json:"id"`
	CustomAttributes map[string]any `json:"custom_attributes"`
}

// IsIncomingMessage reports whether the event is a new public customer message.
func (e WebhookEvent) IsIncomingMessage() bool {
	return e.Event == EventMessageCreated && e.MessageType == MessageTypeIncoming && !e.Private
}

// ToInbound converts an incoming message event. ok is false for any other event.
func (e WebhookEvent) ToInbound() (models.InboundMessage, bool) {
	if !e.IsIncomingMessage() || e.Conversation.ID == 0 {
		return models.InboundMessage{}, false
	}
	msg := models.InboundMessage{
		ConversationID: strconv.FormatInt(e.Conversation.ID, 10),
		UserPhone:      strings.TrimSpace(e.Sender.PhoneNumber),
		SenderName:     e.Sender.Name,
		Content:        e.Content,
		ReceivedAt:     time.Now(),
	}
	// Without a message id the delivery cannot be deduplicated.
	if e.ID != 0 {
		msg.ID = strconv.FormatInt(e.ID, 10)
	}
	if e.Sender.ID != 0 {
		msg.UserID = strconv.FormatInt(e.Sender.ID, 10)
	}
	for _, a := range e.Attachments {
		if a.DataURL == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, models.Attachment{URL: a.DataURL, ContentType: a.FileType})
	}
	return msg, true
}
