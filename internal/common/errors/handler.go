// internal/common/errors/handler.go
package errors

import (
	"time"
)

// DegradeHandler normalizes collaborator errors and logs them uniformly.
// Collaborator failures never fail a request; they degrade a stage to empty
// output, so the handler records rather than propagates.
type DegradeHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewDegradeHandler(logger Logger) *DegradeHandler {
	return &DegradeHandler{logger: logger}
}

// HandleStageError records a degraded stage and returns the normalized error
// so callers can attach it to the response's degradation list.
func (h *DegradeHandler) HandleStageError(stage string, err error) *StandardError {
	stdErr := h.normalizeError(err)
	h.logStageError(stage, stdErr)
	return stdErr
}

// normalizeError ensures we always have a StandardError
func (h *DegradeHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *DegradeHandler) logStageError(stage string, stdErr *StandardError) {
	fields := map[string]interface{}{
		"stage":         stage,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	if stdErr.Retryable {
		h.logger.Error("Stage degraded", fields)
		return
	}
	h.logger.Warn("Stage degraded", fields)
}
