// Package errors provides standardized error handling for the retrieval pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Pipeline error codes. Collaborator failures are retryable technical errors;
// input and configuration problems are not.
const (
	ErrCodeConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
	ErrCodePolicyTableInvalid   ErrorCode = "POLICY_TABLE_INVALID"

	ErrCodeInvalidQuery         ErrorCode = "INVALID_QUERY"
	ErrCodeUnknownRetrievalType ErrorCode = "UNKNOWN_RETRIEVAL_TYPE"
	ErrCodeUnknownSourceType    ErrorCode = "UNKNOWN_SOURCE_TYPE"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeMetricQueryFailed        ErrorCode = "METRIC_QUERY_FAILED"
	ErrCodeMetricQueryTimeout       ErrorCode = "METRIC_QUERY_TIMEOUT"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSparseSearchFailed            ErrorCode = "SPARSE_SEARCH_FAILED"
	ErrCodeSparseSearchTimeout           ErrorCode = "SPARSE_SEARCH_TIMEOUT"
	ErrCodeIndexNotFound                 ErrorCode = "INDEX_NOT_FOUND"

	ErrCodeDenseSearchFailed  ErrorCode = "DENSE_SEARCH_FAILED"
	ErrCodeDenseSearchTimeout ErrorCode = "DENSE_SEARCH_TIMEOUT"

	ErrCodeRerankFailed  ErrorCode = "RERANK_FAILED"
	ErrCodeRerankTimeout ErrorCode = "RERANK_TIMEOUT"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeMalformedTimeMetadata ErrorCode = "MALFORMED_TIME_METADATA"

	ErrCodeAlertDeliveryFailed ErrorCode = "ALERT_DELIVERY_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewConfigurationInvalidError creates a non-retryable configuration error.
// Configuration errors are fatal at startup, never at request time.
func NewConfigurationInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigurationInvalid,
		Message:   "Invalid service configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPolicyTableInvalidError creates a non-retryable policy table error.
func NewPolicyTableInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePolicyTableInvalid,
		Message:   "Intent policy table failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidQueryError creates a non-retryable request validation error.
func NewInvalidQueryError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQuery,
		Message:   "Query input is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownRetrievalTypeError creates a non-retryable step routing error.
func NewUnknownRetrievalTypeError(retrievalType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownRetrievalType,
		Message:   "Unsupported retrieval step type",
		Details:   fmt.Sprintf("retrievalType: %s", retrievalType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownSourceTypeError creates a non-retryable source tagging error.
func NewUnknownSourceTypeError(sourceType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownSourceType,
		Message:   "Unsupported document source type",
		Details:   fmt.Sprintf("sourceType: %s", sourceType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMetricQueryFailedError creates a retryable metric store query error.
func NewMetricQueryFailedError(kind string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMetricQueryFailed,
		Message:   "Metric store query error",
		Details:   fmt.Sprintf("kind: %s, error: %s", kind, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMetricQueryTimeoutError creates a retryable metric store timeout error.
func NewMetricQueryTimeoutError(kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMetricQueryTimeout,
		Message:   "Metric store query timeout",
		Details:   fmt.Sprintf("kind: %s", kind),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeElasticsearchConnectionFailed,
		Message:   "Elasticsearch connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSparseSearchFailedError creates a retryable sparse search error.
func NewSparseSearchFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSparseSearchFailed,
		Message:   "Sparse search query error",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSparseSearchTimeoutError creates a search timeout that degrades to empty results.
func NewSparseSearchTimeoutError(index string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSparseSearchTimeout,
		Message:   "Sparse search timeout",
		Details:   fmt.Sprintf("index: %s", index),
		Retryable: false, // degrade to the other branch, don't retry inline
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotFoundError creates a non-retryable index not found error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   "Elasticsearch index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDenseSearchFailedError creates a retryable dense search error.
func NewDenseSearchFailedError(collection string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDenseSearchFailed,
		Message:   "Dense search service error",
		Details:   fmt.Sprintf("collection: %s, error: %s", collection, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDenseSearchTimeoutError creates a search timeout that degrades to empty results.
func NewDenseSearchTimeoutError(collection string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDenseSearchTimeout,
		Message:   "Dense search timeout",
		Details:   fmt.Sprintf("collection: %s", collection),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRerankFailedError creates a reranker error; callers fall back to initial order.
func NewRerankFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRerankFailed,
		Message:   "Pairwise reranker error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRerankTimeoutError creates a reranker timeout; callers fall back to initial order.
func NewRerankTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeRerankTimeout,
		Message:   "Pairwise reranker timeout",
		Details:   "scorer call exceeded timeout threshold",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a cache error; the pipeline proceeds without caching.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Result cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedTimeMetadataError creates a data-quality warning error; the
// affected document is treated as having no time metadata.
func NewMalformedTimeMetadataError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedTimeMetadata,
		Message:   "Document carries malformed time metadata",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlertDeliveryFailedError creates a retryable alert delivery error.
func NewAlertDeliveryFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlertDeliveryFailed,
		Message:   "Quality alert delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Classification
// ==========================

// GetRetryCount returns the recommended retry count for collaborator calls.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeMetricQueryFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeSparseSearchFailed,
		ErrCodeDenseSearchFailed,
		ErrCodeAlertDeliveryFailed:
		return 3 // Retryable technical errors

	case ErrCodeMetricQueryTimeout,
		ErrCodeCacheUnavailable:
		return 2 // Partial retry for timeouts

	default:
		return 0 // Degrade-to-empty and input errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// ==========================
// 4. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIGURATION") || strings.Contains(codeStr, "POLICY"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "METRIC"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SPARSE") || strings.Contains(codeStr, "INDEX"):
		return "SPARSE_SEARCH"
	case strings.Contains(codeStr, "DENSE"):
		return "DENSE_SEARCH"
	case strings.Contains(codeStr, "RERANK"):
		return "RERANK"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "ALERT"):
		return "ALERTING"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "UNKNOWN") || strings.Contains(codeStr, "MALFORMED"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
