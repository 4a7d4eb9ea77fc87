// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
	"finqa-retrieval/internal/orchestrator"
	applyguardrails "finqa-retrieval/internal/stages/apply-guardrails"
	"finqa-retrieval/pkg/policyregistry"
)

// Processor runs one retrieval request end to end.
type Processor interface {
	Process(ctx context.Context, parsed *models.ParsedQuery) (*models.RetrievalResponse, error)
}

// HealthChecker pings one backing dependency for the readiness probe.
type HealthChecker func(ctx context.Context) error

// Dependencies collects everything the HTTP surface serves.
type Dependencies struct {
	Config    *Config
	Retrieval Processor
	Recorder  *applyguardrails.Recorder
	Policies  *policyregistry.Registry
	Logger    logger.Logger
	Checks    map[string]HealthChecker
}

// RetrieveRequest is the POST /api/v1/retrieve body. Unknown intent hints are
// passed through; the policy stage ignores them with a warning.
type RetrieveRequest struct {
	Query          string   `json:"query" validate:"required,max=2000"`
	Tickers        []string `json:"tickers" validate:"max=20,dive,required,max=12"`
	IntentHint     string   `json:"intentHint" validate:"omitempty,max=32"`
	ConversationID string   `json:"conversationId" validate:"omitempty,max=128"`
}

// Common error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, statusCode int, err string, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// RetrieveHandler runs the retrieval pipeline for one analyst question.
func RetrieveHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RetrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
			return
		}

		if err := ValidateStruct(&req); err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				respondJSON(w, http.StatusBadRequest, ErrorResponse{
					Error:   "validation_failed",
					Message: validationErr.Message,
					Details: validationErr.Fields,
				})
				return
			}
			respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		response, err := deps.Retrieval.Process(r.Context(), &models.ParsedQuery{
			Query:          req.Query,
			Tickers:        req.Tickers,
			IntentHint:     req.IntentHint,
			ConversationID: req.ConversationID,
		})
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrNilInput), errors.Is(err, orchestrator.ErrEmptyQuery):
				respondError(w, http.StatusBadRequest, "invalid_query", err.Error())
			case errors.Is(err, context.DeadlineExceeded):
				respondError(w, http.StatusGatewayTimeout, "timeout", "retrieval did not finish in time")
			default:
				deps.Logger.Error("retrieval failed", map[string]interface{}{
					"error": err.Error(),
				})
				respondError(w, http.StatusInternalServerError, "retrieval_failed", "internal error")
			}
			return
		}

		w.Header().Set("X-Request-Id", response.RequestID)
		respondJSON(w, http.StatusOK, response)
	}
}

// HealthCheck returns a simple liveness handler.
func HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessCheck pings every registered dependency.
func ReadinessCheck(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ready"
		checks := make(map[string]string, len(deps.Checks))
		for name, check := range deps.Checks {
			if err := check(ctx); err != nil {
				status = "not_ready"
				checks[name] = "unhealthy"
				deps.Logger.Error("readiness check failed", map[string]interface{}{
					"check": name,
					"error": err.Error(),
				})
				continue
			}
			checks[name] = "healthy"
		}

		code := http.StatusOK
		if status != "ready" {
			code = http.StatusServiceUnavailable
		}
		respondJSON(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}

// StatsHandler exposes the rolling retrieval quality window.
func StatsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Recorder == nil {
			respondError(w, http.StatusNotFound, "not_available", "no recorder configured")
			return
		}
		respondJSON(w, http.StatusOK, deps.Recorder.SummaryStats())
	}
}

// PoliciesHandler lists the active intent policy table.
func PoliciesHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Policies == nil {
			respondError(w, http.StatusNotFound, "not_available", "no policy registry configured")
			return
		}
		respondJSON(w, http.StatusOK, deps.Policies.All())
	}
}
