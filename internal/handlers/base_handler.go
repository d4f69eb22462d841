package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/finquiz/backend/internal/models"
	"go.uber.org/zap"
)

type BaseHandler struct {
	logger *zap.Logger
}

// respondJSON sends a JSON response
func (h *BaseHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends an error JSON response
func (h *BaseHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Success: false, Error: message})
}

// respondServiceError maps the error taxonomy onto HTTP status codes
func (h *BaseHandler) respondServiceError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, models.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		h.respondError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, models.ErrStorageUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "progress storage is temporarily unavailable")
	default:
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON strictly decodes a single JSON object from the request body into dst.
// Unknown fields, trailing data and an empty body are rejected as invalid input.
func (h *BaseHandler) decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", models.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid request body: %s", models.ErrInvalidInput, err.Error())
	}
	if decoder.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", models.ErrInvalidInput)
	}

	return nil
}
