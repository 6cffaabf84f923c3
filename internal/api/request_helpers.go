package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/api/shared"
	"github.com/phrazzld/task-tracker/internal/domain"
)

// GetPathUUID extracts a non-nil UUID from the URL path parameter paramName.
func GetPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	if id == uuid.Nil {
		return uuid.Nil, domain.NewValidationError(paramName, "must not be empty", domain.ErrInvalidID)
	}

	return id, nil
}

// validateRequest runs struct validation and marks failures as validation
// errors for the error table.
func validateRequest(v any) error {
	if err := shared.ValidateRequest(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

// decodeRequest decodes a JSON body, reporting malformed input as a
// validation error.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		return domain.NewValidationError("body", describeDecodeError(err), domain.ErrValidation)
	}
	return nil
}

// describeDecodeError names what was wrong with a body without echoing Go
// type names.
func describeDecodeError(err error) string {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
		timeErr     *time.ParseError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidPriority):
		return "has an invalid priority"
	case errors.As(err, &syntaxErr):
		return "is malformed JSON"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("has the wrong type for %s", typeErr.Field)
	case errors.As(err, &maxBytesErr):
		return "is too large"
	case errors.As(err, &timeErr):
		return "has an invalid date"
	default:
		return "could not be decoded"
	}
}
