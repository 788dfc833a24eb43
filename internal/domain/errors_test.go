package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "bad input")
	assert.Equal(t, "[VALIDATION_ERROR] bad input", err.Error())

	cause := errors.New("underlying")
	wrapped := NewDomainErrorWithCause(ErrCodeMetadataStore, "write failed", cause)
	assert.Equal(t, "[METADATA_STORE_ERROR] write failed: underlying", wrapped.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewDomainErrorWithCause(ErrCodeInternalError, "failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"embedding unavailable", ErrEmbeddingUnavailable, true},
		{"llm unavailable", ErrLLMUnavailable, true},
		{"metadata store", ErrMetadataStore, true},
		{"wrapped metadata store", fmt.Errorf("ingest: %w", ErrMetadataStore), true},
		{"validation", ErrInvalidChunkParams, false},
		{"not found", ErrDocumentNotFound, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
