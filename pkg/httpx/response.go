// Package httpx holds the JSON response and error conventions shared by the
// HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

const internalErrorMessage = "A problem happened while handling your request."

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Status  int                 `json:"status"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func NewAPIError(code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, Status: status}
}

// FromError maps domain errors onto HTTP statuses. Unknown errors become a
// generic 500 without leaking their text.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		e := NewAPIError("VALIDATION_FAILED", "One or more validation errors occurred.", http.StatusBadRequest)
		e.Errors = verr.Fields
		return e
	case errors.Is(err, types.ErrValidationFailed):
		return NewAPIError("VALIDATION_FAILED", "One or more validation errors occurred.", http.StatusBadRequest)
	case errors.Is(err, types.ErrBadRequest):
		return NewAPIError("BAD_REQUEST", err.Error(), http.StatusBadRequest)
	case errors.Is(err, types.ErrNotFound):
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	case errors.Is(err, types.ErrUnauthenticated):
		return NewAPIError("UNAUTHENTICATED", "Authentication required", http.StatusUnauthorized)
	case errors.Is(err, types.ErrForbidden):
		return NewAPIError("FORBIDDEN", "Access to this resource is not allowed", http.StatusForbidden)
	default:
		return NewAPIError("INTERNAL_SERVER_ERROR", internalErrorMessage, http.StatusInternalServerError)
	}
}

// WriteError renders err and logs server-side failures.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := FromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	WriteJSON(w, apiErr.Status, apiErr)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON decodes a single JSON value and rejects unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewValidationError("body", "The request body is not a valid JSON document: "+err.Error())
	}
	return nil
}
