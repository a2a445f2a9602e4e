package chatwoot

import (
	"context"
	"sync"
)

// Call is one recorded MockClient invocation.
type Call struct {
	Method         string
	ConversationID int
	Content        string
	Labels         []string
}

// MockClient records calls and returns injected errors. It is safe for concurrent use.
type MockClient struct {
	mu         sync.Mutex
	calls      []Call
	Attributes map[int]map[string]any
	// Errors maps a method name to the error it returns.
	Errors map[string]error
}

// Compile-time check that MockClient implements API.
var _ API = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		Attributes: make(map[int]map[string]any),
		Errors:     make(map[string]error),
	}
}

func (m *MockClient) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return m.Errors[c.Method]
}

// Calls returns recorded calls, optionally only those for method.
func (m *MockClient) Calls(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// SetError injects an error for method.
func (m *MockClient) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method] = err
}

func (m *MockClient) GetConversationAttributes(_ context.Context, conversationID int) (map[string]any, error) {
	if err := m.record(Call{Method: "GetConversationAttributes", ConversationID: conversationID}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]any{}
	for k, v := range m.Attributes[conversationID] {
		out[k] = v
	}
	return out, nil
}

func (m *MockClient) DisableAutomation(_ context.Context, conversationID int) error {
	if err := m.record(Call{Method: "DisableAutomation", ConversationID: conversationID}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Attributes[conversationID] == nil {
		m.Attributes[conversationID] = map[string]any{}
	}
	m.Attributes[conversationID][AutomationAttribute] = false
	return nil
}

func (m *MockClient) SendMessage(_ context.Context, conversationID int, content string) error {
	return m.record(Call{Method: "SendMessage", ConversationID: conversationID, Content: content})
}

func (m *MockClient) AddLabels(_ context.Context, conversationID int, labels []string) error {
	return m.record(Call{Method: "AddLabels", ConversationID: conversationID, Labels: append([]string(nil), labels...)})
}

func (m *MockClient) AddNote(_ context.Context, conversationID int, content string) error {
	return m.record(Call{Method: "AddNote", ConversationID: conversationID, Content: content})
}
