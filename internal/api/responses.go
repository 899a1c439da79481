package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	app_errors "lectern/backend/internal/errors"

	"lectern/backend/internal/model"
)

// Shared DTOs for API responses and helpers for sending consistent HTTP
// responses.

// ErrorResponse defines the standard JSON structure for error messages.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse defines a generic success response for operations that
// don't return a full resource.
type StatusResponse struct {
	Status string `json:"status"`
}

// CancelResponse reports whether a live session was found and aborted.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ChannelResponse carries the correlation token for a newly accepted
// streaming session; it is the first frame on the SSE stream.
type ChannelResponse struct {
	ChannelID string `json:"channel_id"`
}

// UpdateTitleRequest is the DTO for the conversation rename endpoint.
type UpdateTitleRequest struct {
	Title string `json:"title" validate:"required,min=1,max=100"`
}

// SelectProviderRequest is the DTO for switching the current provider.
type SelectProviderRequest struct {
	ID string `json:"id" validate:"required"`
}

// respondWithError maps business-layer sentinel errors to HTTP status
// codes and a standard JSON error body. Unrecognized errors become a
// generic 500 so implementation details never leak to the client.
func respondWithError(w http.ResponseWriter, err error) {
	var statusCode int
	var message string

	switch {
	case errors.Is(err, app_errors.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "The requested resource was not found."
	case errors.Is(err, app_errors.ErrValidation):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, app_errors.ErrConflict):
		statusCode = http.StatusConflict
		message = err.Error()
	case errors.Is(err, app_errors.ErrProviderNotFound):
		statusCode = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, app_errors.ErrProviderNotAvailable):
		statusCode = http.StatusServiceUnavailable
		message = err.Error()
	case errors.Is(err, app_errors.ErrNotConfigured):
		statusCode = http.StatusBadRequest
		message = err.Error()
	default:
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal server error occurred."
	}

	slog.Warn("Responding with error", "status_code", statusCode, "client_message", message, "internal_error", err)
	respondWithJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondWithJSON marshals a payload and writes it with the given status.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

// writeSSEHeaders prepares a response for Server-Sent Events delivery.
func writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// writeSSEEvent writes one named SSE frame and flushes it. A write
// failure signals the client has disconnected.
func writeSSEEvent(w http.ResponseWriter, event string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal stream payload", "error", err)
		return nil
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	} else {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// writeStreamEvent writes one stream event as an unnamed SSE data frame.
func writeStreamEvent(w http.ResponseWriter, ev model.StreamEvent) error {
	return writeSSEEvent(w, "", ev)
}
