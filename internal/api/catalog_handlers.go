package api

import (
	"errors"
	"net/http"

	"github.com/pepeccz/msi-a-sub001/internal/collection"
	"github.com/pepeccz/msi-a-sub001/internal/models"
)

type elementSummary struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Fields int    `json:"fields"`
}

type planRequest struct {
	Collected models.CollectedValues `json:"collected"`
}

type planResponse struct {
	Element    string                `json:"element"`
	Mode       models.CollectionMode `json:"mode"`
	Complexity int                   `json:"complexity"`
	Phase      collection.Phase      `json:"phase"`
}

type answerRequest struct {
	Collected models.CollectedValues `json:"collected"`
	Key       string                 `json:"key"`
	Value     string                 `json:"value"`
}

type answerResponse struct {
	Collected models.CollectedValues `json:"collected"`
	Next      collection.Phase       `json:"next"`
}

// listElementsHandler handles GET /catalog
func (s *Server) listElementsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Catalog not loaded"))
		return
	}
	out := make([]elementSummary, 0, len(s.deps.Catalog.Elements))
	for _, code := range s.deps.Catalog.Codes() {
		e, _ := s.deps.Catalog.Element(code)
		out = append(out, elementSummary{Code: e.Code, Name: e.Name, Fields: len(e.Fields)})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

// planHandler handles POST /catalog/{code}/plan
func (s *Server) planHandler(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.elementFields(w, r)
	if !ok {
		return
	}
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Collected == nil {
		req.Collected = models.CollectedValues{}
	}
	mode := collection.Classify(fields, req.Collected)
	writeJSONResponse(w, http.StatusOK, models.Success(planResponse{
		Element:    r.PathValue("code"),
		Mode:       mode,
		Complexity: collection.DependencyComplexity(fields, req.Collected),
		Phase:      collection.Render(mode, fields, req.Collected),
	}))
}

// answerHandler handles POST /catalog/{code}/answers.
// A rejected answer is reported with 422 and the recovery instruction as result.
func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.elementFields(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Collected == nil {
		req.Collected = models.CollectedValues{}
	}
	if rec := collection.Collect(fields, req.Collected, req.Key, req.Value); rec != nil {
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusError).
			WithMessage(rec.Recovery.SuggestedPrompt).
			WithResult(rec).
			Build())
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(answerResponse{
		Collected: req.Collected,
		Next:      collection.Plan(fields, req.Collected),
	}))
}

func (s *Server) elementFields(w http.ResponseWriter, r *http.Request) ([]models.FieldSpec, bool) {
	if s.deps.Catalog == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Catalog not loaded"))
		return nil, false
	}
	fields, err := s.deps.Catalog.Fields(r.PathValue("code"))
	if errors.Is(err, models.ErrUnknownElement) {
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		return nil, false
	}
	if err != nil {
		writeStoreError(w, "load element", err)
		return nil, false
	}
	return fields, true
}
