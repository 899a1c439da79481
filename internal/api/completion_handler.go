package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/interfaces"
	"lectern/backend/internal/service"
)

// CompletionHandler exposes the streaming completion pipeline over HTTP.
type CompletionHandler struct {
	service interfaces.CompletionService
}

func NewCompletionHandler(svc interfaces.CompletionService) *CompletionHandler {
	return &CompletionHandler{service: svc}
}

// HandleStartCompletion accepts a completion request and streams the
// session's events back as SSE. The first frame is `event: channel` with
// the correlation token; every following frame is a data frame carrying
// the chunk/done/error tagged union. Failures before acceptance come
// back as plain JSON errors so the client shows a banner immediately
// instead of a stuck spinner.
func (h *CompletionHandler) HandleStartCompletion(w http.ResponseWriter, r *http.Request) {
	var req service.StartCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(req); err != nil {
		respondWithError(w, err)
		return
	}

	channelID, events, err := h.service.StartCompletion(r.Context(), &req)
	if err != nil {
		respondWithError(w, err)
		return
	}

	writeSSEHeaders(w)
	if err := writeSSEEvent(w, "channel", ChannelResponse{ChannelID: channelID}); err != nil {
		slog.Warn("Client disconnected before channel frame", "channel_id", channelID)
		h.service.Cancel(channelID)
		return
	}

	for ev := range events {
		if r.Context().Err() != nil {
			slog.Info("Client disconnected mid-stream", "channel_id", channelID)
			h.service.Cancel(channelID)
			break
		}
		if err := writeStreamEvent(w, ev); err != nil {
			slog.Info("Stream write failed, cancelling session", "channel_id", channelID, "error", err)
			h.service.Cancel(channelID)
			break
		}
	}
}

// HandleCancelCompletion aborts a live session. Unknown ids and repeat
// calls are a no-op reporting cancelled=false, never an error.
func (h *CompletionHandler) HandleCancelCompletion(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	cancelled := h.service.Cancel(channelID)
	respondWithJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}
