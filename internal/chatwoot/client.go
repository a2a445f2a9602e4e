// Package chatwoot is a small client for the helpdesk API that owns the WhatsApp inbox.
// It reads conversation attributes, hands conversations to humans and posts messages,
// labels and private notes.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// AutomationAttribute is the conversation custom attribute that gates automated replies.
// A value of false means a human owns the conversation.
const AutomationAttribute = "atencion_automatica"

// DefaultTimeout bounds every API call.
const DefaultTimeout = 10 * time.Second

// API is the subset of the helpdesk API used by the intake service.
type API interface {
	GetConversationAttributes(ctx context.Context, conversationID int) (map[string]any, error)
	DisableAutomation(ctx context.Context, conversationID int) error
	SendMessage(ctx context.Context, conversationID int, content string) error
	AddLabels(ctx context.Context, conversationID int, labels []string) error
	AddNote(ctx context.Context, conversationID int, content string) error
}

// ParseConversationID converts a conversation id into the helpdesk's numeric form.
func ParseConversationID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", models.ErrNonNumericChannelID, id)
	}
	return n, nil
}

// AutomationDisabled reports whether attrs mark the conversation as human-owned.
// Booleans and their common string forms are accepted; anything else counts as enabled.
func AutomationDisabled(attrs map[string]any) bool {
	switch v := attrs[AutomationAttribute].(type) {
	case bool:
		return !v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "false" || s == "0" || s == "no"
	default:
		return false
	}
}

// Opts holds configuration options for the helpdesk client.
type Opts struct {
	BaseURL    string
	APIToken   string
	AccountID  string
	HTTPClient *http.Client
}

// Option defines a configuration option for the helpdesk client.
type Option func(*Opts)

// WithBaseURL sets the helpdesk base URL, e.g. https://chat.example.com.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithAPIToken sets the agent or bot access token.
func WithAPIToken(token string) Option {
	return func(o *Opts) { o.APIToken = token }
}

// WithAccountID sets the helpdesk account id.
func WithAccountID(id string) Option {
	return func(o *Opts) { o.AccountID = id }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the helpdesk REST API.
type Client struct {
	baseURL   string
	token     string
	accountID string
	http      *http.Client
}

// Compile-time check that Client implements API.
var _ API = (*Client)(nil)

// NewClient builds a client from options, falling back to CHATWOOT_BASE_URL,
// CHATWOOT_API_TOKEN and CHATWOOT_ACCOUNT_ID.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("CHATWOOT_BASE_URL")
	}
	if cfg.APIToken == "" {
		cfg.APIToken = os.Getenv("CHATWOOT_API_TOKEN")
	}
	if cfg.AccountID == "" {
		cfg.AccountID = os.Getenv("CHATWOOT_ACCOUNT_ID")
	}
	slog.Debug("chatwoot client config loaded",
		"BaseURL_set", cfg.BaseURL != "",
		"APIToken_set", cfg.APIToken != "",
		"AccountID", cfg.AccountID)

	if cfg.BaseURL == "" || cfg.APIToken == "" || cfg.AccountID == "" {
		return nil, fmt.Errorf("chatwoot base URL, API token and account ID must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.APIToken,
		accountID: cfg.AccountID,
		http:      cfg.HTTPClient,
	}, nil
}

func (c *Client) conversationURL(conversationID int, suffix string) string {
	return fmt.Sprintf("%s/api/v1/accounts/%s/conversations/%d%s", c.baseURL, c.accountID, conversationID, suffix)
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("api_access_token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, url, err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

type conversationResponse struct {
	ID               int            `json:"id"`
	CustomAttributes map[string]any `json:"custom_attributes"`
	Labels           []string       `json:"labels"`
}

// GetConversationAttributes returns the conversation's custom attributes.
func (c *Client) GetConversationAttributes(ctx context.Context, conversationID int) (map[string]any, error) {
	var conv conversationResponse
	if err := c.do(ctx, http.MethodGet, c.conversationURL(conversationID, ""), nil, &conv); err != nil {
		slog.Warn("chatwoot.GetConversationAttributes failed", "conversationID", conversationID, "error", err)
		return nil, err
	}
	if conv.CustomAttributes == nil {
		conv.CustomAttributes = map[string]any{}
	}
	slog.Debug("chatwoot.GetConversationAttributes", "conversationID", conversationID, "attributes", len(conv.CustomAttributes))
	return conv.CustomAttributes, nil
}

// DisableAutomation marks the conversation as human-owned.
func (c *Client) DisableAutomation(ctx context.Context, conversationID int) error {
	body := map[string]any{"custom_attributes": map[string]any{AutomationAttribute: false}}
	if err := c.do(ctx, http.MethodPost, c.conversationURL(conversationID, "/custom_attributes"), body, nil); err != nil {
		slog.Error("chatwoot.DisableAutomation failed", "conversationID", conversationID, "error", err)
		return err
	}
	slog.Info("chatwoot.DisableAutomation: conversation handed to humans", "conversationID", conversationID)
	return nil
}

type messageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

// SendMessage posts an outgoing message visible to the customer.
func (c *Client) SendMessage(ctx context.Context, conversationID int, content string) error {
	return c.postMessage(ctx, conversationID, content, false)
}

// AddNote posts a private note visible only to agents.
func (c *Client) AddNote(ctx context.Context, conversationID int, content string) error {
	return c.postMessage(ctx, conversationID, content, true)
}

func (c *Client) postMessage(ctx context.Context, conversationID int, content string, private bool) error {
	body := messageRequest{Content: content, MessageType: "outgoing", Private: private}
	if err := c.do(ctx, http.MethodPost, c.conversationURL(conversationID, "/messages"), body, nil); err != nil {
		slog.Error("chatwoot.postMessage failed", "conversationID", conversationID, "private", private, "error", err)
		return err
	}
	slog.Debug("chatwoot.postMessage sent", "conversationID", conversationID, "private", private)
	return nil
}

type labelsPayload struct {
	Payload []string `json:"payload"`
}

// AddLabels merges labels into the conversation's current labels.
// The labels endpoint replaces the whole set, so current labels are read first.
func (c *Client) AddLabels(ctx context.Context, conversationID int, labels []string) error {
	var current labelsPayload
	url := c.conversationURL(conversationID, "/labels")
	if err := c.do(ctx, http.MethodGet, url, nil, &current); err != nil {
		slog.Error("chatwoot.AddLabels: read failed", "conversationID", conversationID, "error", err)
		return err
	}
	merged := mergeLabels(current.Payload, labels)
	if err := c.do(ctx, http.MethodPost, url, map[string]any{"labels": merged}, nil); err != nil {
		slog.Error("chatwoot.AddLabels failed", "conversationID", conversationID, "error", err)
		return err
	}
	slog.Debug("chatwoot.AddLabels", "conversationID", conversationID, "labels", merged)
	return nil
}

func mergeLabels(current, add []string) []string {
	seen := make(map[string]bool, len(current)+len(add))
	out := make([]string, 0, len(current)+len(add))
	for _, l := range append(append([]string{}, current...), add...) {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
