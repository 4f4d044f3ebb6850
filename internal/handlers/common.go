package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"pairspace-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Error codes returned in the "code" field
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeAuth             = "AUTH_ERROR"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeIncorrectAnswers = "INCORRECT_ANSWERS"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error        string     `json:"error"`
	Code         string     `json:"code"`
	LockedUntil  *time.Time `json:"lockedUntil,omitempty"`
	AttemptsLeft *int       `json:"attemptsLeft,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response with a fixed message
func respondError(w http.ResponseWriter, message, code string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// respondServiceError maps a service error to its status code. Unexpected
// errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp, status := errorResponse(err)
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	respondJSON(w, status, resp)
}

func errorResponse(err error) (ErrorResponse, int) {
	var (
		validationErr *models.ValidationError
		rateErr       *models.RateLimitedError
		incorrectErr  *models.IncorrectAnswersError
	)

	switch {
	case errors.As(err, &validationErr):
		return ErrorResponse{Error: validationErr.Message, Code: CodeValidation}, http.StatusBadRequest
	case errors.As(err, &rateErr):
		until := rateErr.LockedUntil
		return ErrorResponse{Error: "Too many incorrect attempts", Code: CodeRateLimited, LockedUntil: &until}, http.StatusTooManyRequests
	case errors.As(err, &incorrectErr):
		left := incorrectErr.AttemptsLeft
		return ErrorResponse{
			Error:        "Incorrect answers",
			Code:         CodeIncorrectAnswers,
			AttemptsLeft: &left,
			LockedUntil:  incorrectErr.LockedUntil,
		}, http.StatusBadRequest
	case errors.Is(err, models.ErrAuth):
		return ErrorResponse{Error: "Invalid credentials", Code: CodeAuth}, http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return ErrorResponse{Error: "Forbidden", Code: CodeForbidden}, http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return ErrorResponse{Error: capitalize(err.Error()), Code: CodeNotFound}, http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return ErrorResponse{Error: capitalize(err.Error()), Code: CodeConflict}, http.StatusBadRequest
	}
	return ErrorResponse{Error: "Internal server error", Code: CodeInternal}, http.StatusInternalServerError
}

// decodeJSON reads a request body into dst and validates its struct tags
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return models.NewValidationError("Request body is required")
		}
		return models.NewValidationError("Invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.NewValidationError("Invalid request body")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return models.NewValidationError("%s is required", fe.Field())
	case "email":
		return models.NewValidationError("%s must be a valid email address", fe.Field())
	case "min", "max", "len":
		return models.NewValidationError("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	case "oneof":
		return models.NewValidationError("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return models.NewValidationError("%s is invalid", fe.Field())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func errMissingAuth() error {
	return fmt.Errorf("missing auth state: %w", models.ErrAuth)
}
