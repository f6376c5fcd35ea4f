package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/executor"
)

// askRequest uses pointers for the flags that default to true so an
// omitted field is distinguishable from an explicit false.
type askRequest struct {
	Question       string `json:"question"`
	SessionID      string `json:"session_id"`
	Execute        *bool  `json:"execute"`
	Explain        bool   `json:"explain"`
	Validate       *bool  `json:"validate"`
	UseCache       *bool  `json:"use_cache"`
	UseRetrieval   *bool  `json:"use_retrieval"`
	IncludeSamples bool   `json:"include_samples"`
}

func (req askRequest) toQuestion() agent.Question {
	return agent.Question{
		Text:           req.Question,
		SessionID:      req.SessionID,
		Execute:        boolOrDefault(req.Execute, true),
		Explain:        req.Explain,
		Validate:       boolOrDefault(req.Validate, true),
		UseCache:       boolOrDefault(req.UseCache, true),
		UseRetrieval:   boolOrDefault(req.UseRetrieval, true),
		IncludeSamples: req.IncludeSamples,
	}
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func decodeAskRequest(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return askRequest{}, false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return askRequest{}, false
	}
	return request, true
}

// handleAsk runs the full pipeline. Pipeline failures are reported
// inside the response object, not as transport errors; the caller
// always gets the question echoed back.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	request, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}
	response := deps.Agent.Ask(r.Context(), request.toQuestion())
	writeJSON(w, http.StatusOK, response)
}

func handleAskAsync(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	request, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}
	response, err := deps.Agent.AskAsync(r.Context(), request.toQuestion())
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "ASYNC_START_FAILED", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, response)
}

func handleExecution(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	id := r.PathValue("id")
	execution, err := deps.Agent.Execution(id)
	if err != nil {
		if errors.Is(err, executor.ErrExecutionNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "EXECUTION_NOT_FOUND", "no execution with that id", false, map[string]any{"execution_id": id})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "EXECUTION_LOOKUP_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

func handleSuggest(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var request struct {
		Question string `json:"question"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	// An empty body is a valid request for generic suggestions.
	if err := decoder.Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": deps.Agent.Suggestions(r.Context(), request.Question),
	})
}

func handleIntent(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var request struct {
		Question string `json:"question"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Agent.AnalyzeIntent(r.Context(), request.Question))
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	includeSamples := r.URL.Query().Get("samples") == "true"
	context, err := deps.Agent.SchemaContext(r.Context(), includeSamples)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema_context": context})
}
