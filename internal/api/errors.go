package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/task-tracker/internal/api/shared"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/service"
	"github.com/phrazzld/task-tracker/internal/store"
)

const unexpectedErrorMessage = "An unexpected error occurred"

// errorMapping is one row of the error translation table.
type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable is evaluated top to bottom; the first errors.Is match wins.
var errorTable = []errorMapping{
	{target: service.ErrTaskNotFound, status: http.StatusNotFound, message: "Task not found"},
	{target: service.ErrConcurrencyConflict, status: http.StatusConflict, message: "Task was modified by another request"},
	{target: domain.ErrValidation, status: http.StatusBadRequest, message: "Validation error"},
	{target: store.ErrInvalidEntity, status: http.StatusBadRequest, message: "Invalid entity data"},
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// MapErrorToStatusCode maps internal errors to HTTP status codes. Unknown
// errors are 500.
func MapErrorToStatusCode(err error) int {
	if m, ok := lookupError(err); ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return unexpectedErrorMessage
	}
	if m, ok := lookupError(err); ok {
		return m.message
	}
	return unexpectedErrorMessage
}

// safeErrorDetail describes err for the client. Validation errors carry their
// field message; everything else gets a fixed text.
func safeErrorDetail(err error) string {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return SanitizeValidationError(err)
	}
	if m, ok := lookupError(err); ok {
		return m.message
	}
	return unexpectedErrorMessage
}

// SanitizeValidationError renders validator failures as "field: reason"
// pairs without exposing Go type names.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Validation error"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s: %s", jsonFieldName(fe.Field()), getValidationTagMessage(fe)))
	}
	return strings.Join(parts, "; ")
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	default:
		return "is invalid"
	}
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// HandleAPIError writes the mapped status, message and detail for err and
// logs the redacted error. Server errors never echo err to the client.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	detail := message
	if status < http.StatusInternalServerError {
		detail = safeErrorDetail(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, detail, err)
}
