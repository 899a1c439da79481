package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/llm"
)

// ProviderHandler serves the provider listing the UI polls, the current
// selection, and the refresh entry point used after a credential change.
type ProviderHandler struct {
	registry *llm.Registry
	refresh  func() error
}

func NewProviderHandler(registry *llm.Registry, refresh func() error) *ProviderHandler {
	return &ProviderHandler{registry: registry, refresh: refresh}
}

// HandleListProviders returns each provider with its availability; the
// values come from the registry's TTL cache, so UI polling stays cheap.
func (h *ProviderHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.registry.ListWithAvailability(r.Context()))
}

func (h *ProviderHandler) HandleSelectProvider(w http.ResponseWriter, r *http.Request) {
	var req SelectProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(req); err != nil {
		respondWithError(w, err)
		return
	}

	if !h.registry.SetCurrent(req.ID) {
		respondWithError(w, fmt.Errorf("%w: %q", app_errors.ErrProviderNotFound, req.ID))
		return
	}
	slog.Info("Switched current provider", "provider", req.ID)
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleRefreshProviders re-reads credentials and rebuilds the adapters.
// Called by the UI after an API key is added or removed.
func (h *ProviderHandler) HandleRefreshProviders(w http.ResponseWriter, r *http.Request) {
	if err := h.refresh(); err != nil {
		respondWithError(w, err)
		return
	}
	slog.Info("Provider registry refreshed")
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
