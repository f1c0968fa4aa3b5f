// Package httperr maps the service error taxonomy to transport responses.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trendora/order-svc/internal/service/models/apperrors"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Status returns the HTTP status for a service error.
func Status(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write sends the error as a JSON body with the mapped status.
func Write(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(err))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}
