package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pepeccz/msi-a-sub001/internal/chatwoot"
	"github.com/pepeccz/msi-a-sub001/internal/intake"
	"github.com/pepeccz/msi-a-sub001/internal/models"
	"github.com/pepeccz/msi-a-sub001/internal/store"
)

// webhookHandler handles POST /webhooks/chatwoot
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebhookToken != "" {
		got := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookToken)) != 1 {
			slog.Warn("Server.webhookHandler: invalid webhook token", "remote", r.RemoteAddr)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid webhook token"))
			return
		}
	}

	var event chatwoot.WebhookEvent
	if err := decodeJSON(r, &event); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	msg, ok := event.ToInbound()
	if !ok {
		slog.Debug("Server.webhookHandler: event ignored", "event", event.Event, "messageType", event.MessageType)
		writeJSONResponse(w, http.StatusOK, models.Ignored("Event not handled"))
		return
	}

	res, err := s.deps.Service.HandleInbound(r.Context(), msg)
	if err != nil {
		if errors.Is(err, models.ErrEmptyConversationID) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.webhookHandler: intake failed", "error", err, "conversationID", msg.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	if res.Duplicate {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Duplicate delivery", res))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// listEscalationsHandler handles GET /escalations
func (s *Server) listEscalationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EscalationFilter{
		ConversationID: q.Get("conversation_id"),
		Source:         q.Get("source"),
		Status:         models.EscalationStatus(q.Get("status")),
	}
	if filter.Status != "" && !models.IsValidEscalationStatus(filter.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status filter"))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
		filter.Limit = limit
	}

	escalations, err := s.deps.Repo.ListEscalations(r.Context(), filter)
	if err != nil {
		writeStoreError(w, "list escalations", err)
		return
	}
	if escalations == nil {
		escalations = []models.Escalation{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(escalations))
}

// getEscalationHandler handles GET /escalations/{id}
func (s *Server) getEscalationHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.deps.Repo.GetEscalation(r.Context(), id)
	if err != nil {
		writeStoreError(w, "get escalation", err)
		return
	}
	if e == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Escalation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(e))
}

type statusUpdateRequest struct {
	Status models.EscalationStatus `json:"status"`
}

// updateEscalationStatusHandler handles POST /escalations/{id}/status
func (s *Server) updateEscalationStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req statusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.deps.Repo.UpdateEscalationStatus(r.Context(), id, req.Status); err != nil {
		writeStoreError(w, "update escalation", err)
		return
	}
	e, err := s.deps.Repo.GetEscalation(r.Context(), id)
	if err != nil {
		writeStoreError(w, "get escalation", err)
		return
	}
	slog.Info("Server.updateEscalationStatusHandler: escalation updated", "id", id, "status", req.Status)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Escalation updated", e))
}

type escalateRequest struct {
	Reason    string `json:"reason"`
	UserID    string `json:"user_id,omitempty"`
	UserPhone string `json:"user_phone,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// escalateConversationHandler handles POST /conversations/{id}/escalations.
// It is the tool-call path: the conversation agent asks for a human.
func (s *Server) escalateConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	var req escalateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("reason is required"))
		return
	}

	report, err := s.deps.Escalator.Ensure(r.Context(), intake.EscalationRequest{
		ConversationID: conversationID,
		Source:         models.SourceToolCall,
		Reason:         req.Reason,
		UserID:         req.UserID,
		UserPhone:      req.UserPhone,
		UserName:       req.UserName,
	})
	if err != nil {
		writeStoreError(w, "create escalation", err)
		return
	}
	status := http.StatusOK
	if report.Created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, models.Success(report))
}

// conversationHistoryHandler handles GET /conversations/{id}/history
func (s *Server) conversationHistoryHandler(w http.ResponseWriter, r *http.Request) {
	hist, err := s.deps.Repo.GetConversationHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, "get conversation history", err)
		return
	}
	if hist == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(hist))
}

type settingValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// getSettingHandler handles GET /settings/{key}
func (s *Server) getSettingHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, ok, err := s.deps.Settings.Get(r.Context(), key)
	if err != nil {
		writeStoreError(w, "read setting", err)
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Setting not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(settingValue{Key: key, Value: value}))
}

// putSettingHandler handles PUT /settings/{key}
func (s *Server) putSettingHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req settingValue
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.deps.Settings.Set(r.Context(), key, req.Value); err != nil {
		writeStoreError(w, "write setting", err)
		return
	}
	slog.Info("Server.putSettingHandler: setting updated", "key", key, "value", req.Value)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Setting updated", settingValue{Key: key, Value: req.Value}))
}

// healthHandler handles GET /healthz
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
