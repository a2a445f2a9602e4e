package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps everything in process memory. It is used by tests and
// when no database DSN is configured.
type InMemoryStore struct {
	mu          sync.Mutex
	escalations map[string]models.Escalation
	history     map[string]models.ConversationHistory
	settings    map[string]string
	states      map[string][]byte
	dedup       map[string]DedupRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		escalations: make(map[string]models.Escalation),
		history:     make(map[string]models.ConversationHistory),
		settings:    make(map[string]string),
		states:      make(map[string][]byte),
		dedup:       make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) openLocked(conversationID, source string) (models.Escalation, bool) {
	var found models.Escalation
	ok := false
	for _, e := range s.escalations {
		if e.ConversationID == conversationID && e.Source == source && e.Status.IsOpen() {
			if !ok || e.CreatedAt.After(found.CreatedAt) {
				found, ok = e, true
			}
		}
	}
	return found, ok
}

func (s *InMemoryStore) CreateEscalationIfAbsent(_ context.Context, e models.Escalation) (*models.Escalation, bool, error) {
	if e.ConversationID == "" {
		return nil, false, models.ErrEmptyConversationID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.openLocked(e.ConversationID, e.Source); ok {
		return &existing, false, nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	e.Status = models.EscalationStatusPending
	e.CreatedAt, e.UpdatedAt = now, now
	s.escalations[e.ID] = e
	return &e, true, nil
}

func (s *InMemoryStore) GetOpenEscalation(_ context.Context, conversationID, source string) (*models.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.openLocked(conversationID, source); ok {
		return &e, nil
	}
	return nil, nil
}

func (s *InMemoryStore) GetEscalation(_ context.Context, id string) (*models.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.escalations[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *InMemoryStore) ListEscalations(_ context.Context, filter EscalationFilter) ([]models.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Escalation
	for _, e := range s.escalations {
		if filter.ConversationID != "" && e.ConversationID != filter.ConversationID {
			continue
		}
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !e.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if filter.OldestFirst {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) UpdateEscalationStatus(_ context.Context, id string, status models.EscalationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escalations[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrEscalationNotFound, id)
	}
	if err := checkTransition(e.Status, status); err != nil {
		return err
	}
	now := time.Now()
	e.Status = status
	e.UpdatedAt = now
	if status == models.EscalationStatusResolved {
		e.ResolvedAt = &now
	}
	s.escalations[id] = e
	return nil
}

func (s *InMemoryStore) InsertOrIncrementCounter(_ context.Context, conversationID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	h, ok := s.history[conversationID]
	if !ok {
		h = models.ConversationHistory{ConversationID: conversationID, UserID: userID, StartedAt: now}
	}
	if h.UserID == "" {
		h.UserID = userID
	}
	h.MessageCount++
	h.UpdatedAt = now
	s.history[conversationID] = h
	return h.MessageCount, nil
}

func (s *InMemoryStore) IncrementCounter(_ context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[conversationID]
	if !ok {
		return 0, nil
	}
	h.MessageCount++
	h.UpdatedAt = time.Now()
	s.history[conversationID] = h
	return 1, nil
}

func (s *InMemoryStore) GetConversationHistory(_ context.Context, conversationID string) (*models.ConversationHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.history[conversationID]; ok {
		return &h, nil
	}
	return nil, nil
}

func (s *InMemoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *InMemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// States are stored encoded so callers never share slices or maps with the store.
func (s *InMemoryStore) SaveConversationState(_ context.Context, state *models.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return models.ErrEmptyConversationID
	}
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ConversationID] = data
	return nil
}

func (s *InMemoryStore) GetConversationState(_ context.Context, conversationID string) (*models.ConversationState, error) {
	s.mu.Lock()
	data, ok := s.states[conversationID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeState(conversationID, data)
}

func (s *InMemoryStore) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, ConversationID: conversationID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[messageID]; ok {
		now := time.Now()
		r.ProcessedAt = &now
		s.dedup[messageID] = r
	}
	return nil
}

func (s *InMemoryStore) PurgeDedup(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.dedup {
		if r.ReceivedAt.Before(cutoff) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}
