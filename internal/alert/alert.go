// Package alert posts operator alerts about new escalations to a Slack channel.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	slackapi "github.com/slack-go/slack"
)

// Alert is one operator-facing notification.
type Alert struct {
	Title  string
	Text   string
	Fields map[string]string
	// Severity picks the attachment color: "warning" or "danger". Anything else is neutral.
	Severity string
}

// Notifier delivers alerts. Delivery is best-effort; callers log and continue on error.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NopNotifier drops every alert. It is used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Alert) error { return nil }

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// SlackOption configures a SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithHTTPClient replaces the HTTP client used for webhook posts.
func WithHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) { s.client = c }
}

// NewSlackNotifier creates a notifier for webhookURL.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) (*SlackNotifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack: webhook URL is required")
	}
	s := &SlackNotifier{webhookURL: webhookURL, client: &http.Client{Timeout: 5 * time.Second}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// New returns a SlackNotifier when webhookURL is set and a NopNotifier otherwise.
func New(webhookURL string) Notifier {
	if webhookURL == "" {
		slog.Debug("alert.New: no Slack webhook configured, alerts disabled")
		return NopNotifier{}
	}
	n, err := NewSlackNotifier(webhookURL)
	if err != nil {
		return NopNotifier{}
	}
	return n
}

func (s *SlackNotifier) Notify(ctx context.Context, a Alert) error {
	msg := &slackapi.WebhookMessage{
		Text:        a.Title,
		Attachments: []slackapi.Attachment{buildAttachment(a)},
	}
	if err := slackapi.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg); err != nil {
		slog.Warn("SlackNotifier.Notify failed", "title", a.Title, "error", err)
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	slog.Debug("SlackNotifier.Notify sent", "title", a.Title)
	return nil
}

func buildAttachment(a Alert) slackapi.Attachment {
	att := slackapi.Attachment{Text: a.Text, Color: a.Severity}
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: k, Value: a.Fields[k], Short: true})
	}
	return att
}
