package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors mapped to HTTP status codes by the handlers
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("already exists")
	ErrAuth      = errors.New("invalid credentials")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed or out-of-range input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError formats a ValidationError
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// RateLimitedError is returned while a quiz is locked
type RateLimitedError struct {
	LockedUntil time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, locked until %s", e.LockedUntil.Format(time.RFC3339))
}

// IncorrectAnswersError is returned when a quiz submission does not match
type IncorrectAnswersError struct {
	AttemptsLeft int
	LockedUntil  *time.Time
}

func (e *IncorrectAnswersError) Error() string {
	return fmt.Sprintf("incorrect answers, %d attempts left", e.AttemptsLeft)
}

// NotFound wraps ErrNotFound with the missing entity
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}
