package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	ErrCodeLLMUnavailable       = "LLM_UNAVAILABLE"
	ErrCodeMetadataStore        = "METADATA_STORE_ERROR"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrInvalidChunkParams   = NewDomainError(ErrCodeValidation, "overlap must be positive and smaller than chunk size")
	ErrInvalidK             = NewDomainError(ErrCodeValidation, "k is out of bounds")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrChunkNotFound    = NewDomainError(ErrCodeNotFound, "chunk not found")
)

// Service availability errors. Both are retryable by the caller; neither
// leaves partial ingestion state behind.
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeEmbeddingUnavailable, "embedding service unavailable")
	ErrLLMUnavailable       = NewDomainError(ErrCodeLLMUnavailable, "language model service unavailable")
)

// Metadata store errors
var (
	ErrMetadataStore = NewDomainError(ErrCodeMetadataStore, "metadata store operation failed")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// IsRetryable reports whether the error represents a transient
// infrastructure fault the caller may retry.
func IsRetryable(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Code {
	case ErrCodeEmbeddingUnavailable, ErrCodeLLMUnavailable, ErrCodeMetadataStore:
		return true
	}
	return false
}
