package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures a chi router with all the
// application's routes.
func NewRouter(completions *CompletionHandler, conversations *ConversationHandler, providers *ProviderHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check for the desktop shell's readiness probe.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// Standard JSON routes get a request timeout so client
		// connections cannot hang indefinitely.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/completions/{channelID}/cancel", completions.HandleCancelCompletion)

			r.Get("/providers", providers.HandleListProviders)
			r.Put("/providers/current", providers.HandleSelectProvider)
			r.Post("/providers/refresh", providers.HandleRefreshProviders)

			r.Get("/conversations", conversations.HandleListConversations)
			r.Get("/conversations/{conversationID}", conversations.HandleGetConversation)
			r.Put("/conversations/{conversationID}/title", conversations.HandleUpdateTitle)
			r.Delete("/conversations/{conversationID}", conversations.HandleDeleteConversation)
		})

		// Streaming routes must NOT have a timeout; they hold the
		// connection open for the whole session.
		r.Group(func(r chi.Router) {
			r.Post("/completions", completions.HandleStartCompletion)
		})
	})

	return r
}
