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

// Is reports whether target is a DomainError with the same code and message.
// This lets wrapped copies produced by WithCause still match the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithCause returns a copy of the error carrying err as its cause.
func (e *DomainError) WithCause(err error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Err: err}
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeUnavailable   = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
)

// Input errors
var (
	ErrNoChunks        = NewDomainError(ErrCodeValidation, "no chunks to process")
	ErrMissingQuestion = NewDomainError(ErrCodeValidation, "question is required")
	ErrInvalidBody     = NewDomainError(ErrCodeValidation, "invalid request body")
)

// Policy errors
var (
	ErrOriginNotAllowed = NewDomainError(ErrCodeForbidden, "origin not allowed")
)

// Collaborator errors. Ingestion isolates these per batch; the query pipeline surfaces them.
var (
	ErrEmbeddingProvider  = NewDomainError(ErrCodeUnavailable, "embedding provider failed")
	ErrCompletionProvider = NewDomainError(ErrCodeUnavailable, "completion provider failed")
	ErrVectorStore        = NewDomainError(ErrCodeUnavailable, "vector store failed")
)

// Configuration errors are fatal at startup.
var (
	ErrDimensionMismatch = NewDomainError(ErrCodeConfiguration, "embedding dimensionality mismatch")
)

// ErrIngestFailed is returned when every attempted batch of an ingest failed.
var ErrIngestFailed = errors.New("ingest failed: no batch was written")

// IsCode reports whether err is a DomainError carrying the given code.
func IsCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
