package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lectern/backend/internal/config"
	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/llm"
	"lectern/backend/internal/model"
	"lectern/backend/internal/repository"
	"lectern/backend/internal/session"
)

// StartCompletionRequest is the value object the UI passes in to start
// one completion. Absent fields mean: use the current provider, no
// action-specific prompt, fresh conversation.
type StartCompletionRequest struct {
	Text            string                  `json:"text" validate:"required,min=1"`
	Context         string                  `json:"context,omitempty"`
	ProviderID      string                  `json:"provider_id,omitempty"`
	Action          model.Action            `json:"action,omitempty"`
	ConversationID  string                  `json:"conversation_id,omitempty"`
	History         []model.ChatMessage     `json:"conversation_history,omitempty"`
	SourceDocuments []model.SourceDocument  `json:"source_documents,omitempty"`
}

// CompletionService owns the path from an accepted completion request to
// its terminal event: provider resolution, session streaming, history
// reconciliation and the fire-and-forget follow-ups.
type CompletionService struct {
	repo       repository.Repository
	registry   *llm.Registry
	sessions   *session.Manager
	reconciler *Reconciler
	cfg        *config.Config
}

func NewCompletionService(repo repository.Repository, registry *llm.Registry, sessions *session.Manager, cfg *config.Config) *CompletionService {
	return &CompletionService{
		repo:       repo,
		registry:   registry,
		sessions:   sessions,
		reconciler: NewReconciler(repo),
		cfg:        cfg,
	}
}

// StartCompletion accepts a request and returns the channel id and event
// stream synchronously. Configuration, provider-resolution and transport
// failures surface here, before any event is emitted.
func (s *CompletionService) StartCompletion(ctx context.Context, req *StartCompletionRequest) (string, <-chan model.StreamEvent, error) {
	if !req.Action.Valid() {
		return "", nil, fmt.Errorf("%w: unknown action %q", app_errors.ErrValidation, req.Action)
	}

	provider, err := s.registry.Resolve(ctx, req.ProviderID)
	if err != nil {
		return "", nil, err
	}

	history := req.History
	if len(history) == 0 && req.ConversationID != "" {
		history, err = s.loadHistory(ctx, req.ConversationID)
		if err != nil {
			slog.Warn("Could not load conversation history, continuing without it", "conversation_id", req.ConversationID, "error", err)
		}
	}

	turn, err := s.reconciler.StartTurn(ctx, req.ConversationID, req.Text, req.Text, req.Context, req.SourceDocuments)
	if err != nil {
		return "", nil, err
	}

	completion := &model.CompletionRequest{
		Text:    req.Text,
		Context: req.Context,
		Action:  req.Action,
		History: history,
	}
	stream, err := provider.Stream(ctx, completion)
	if err != nil {
		s.reconciler.Abandon(turn)
		return "", nil, err
	}

	channelID, raw := s.sessions.Open(ctx, stream)
	out := make(chan model.StreamEvent, 32)
	go s.bridge(provider.ID(), req.Action, turn, raw, out)

	slog.Info("Accepted completion", "channel_id", channelID, "provider", provider.ID(), "action", req.Action, "conversation_id", turn.ConversationID)
	return channelID, out, nil
}

// Cancel aborts the session registered under channelID. Unknown ids and
// repeat calls report false, never an error.
func (s *CompletionService) Cancel(channelID string) bool {
	return s.sessions.Cancel(channelID)
}

// bridge tees session events into the reconciler and forwards them to
// the API layer. It runs until the session reaches a terminal state.
func (s *CompletionService) bridge(providerID string, action model.Action, turn *Turn, raw <-chan model.StreamEvent, out chan<- model.StreamEvent) {
	defer close(out)

	// The turn's lifecycle must not die with the HTTP request that
	// started it, so persistence uses a detached context.
	terminal := false
	for ev := range raw {
		switch ev.Type {
		case model.EventChunk:
			s.reconciler.OnFragment(turn, ev.Data)
		case model.EventDone:
			terminal = true
			s.completeTurn(action, turn)
		case model.EventError:
			terminal = true
			s.reconciler.OnError(context.Background(), turn, fmt.Sprintf("%s: %s", providerID, ev.Error))
		}
		out <- ev
	}
	if !terminal {
		// The session ended without a terminal event: user cancellation.
		// Silent by design, nothing is persisted.
		s.reconciler.Abandon(turn)
	}
}

func (s *CompletionService) completeTurn(action model.Action, turn *Turn) {
	ctx := context.Background()
	final := turn.Assistant.Content
	s.reconciler.OnComplete(ctx, turn, final)

	// Best-effort follow-ups: independently retried by the user if they
	// matter, never allowed to touch the committed turn.
	go s.extractConcepts(context.Background(), turn.ConversationID, turn.User.Content, final)
	if action == model.ActionExplain {
		go s.createReviewCard(context.Background(), turn.ConversationID, turn.User.Content, final)
	}
}

// loadHistory flattens persisted messages into the adapter history
// format, skipping error markers.
func (s *CompletionService) loadHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	messages, err := s.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]model.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.IsError {
			continue
		}
		history = append(history, model.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return history, nil
}

// supportProvider picks the backend for background follow-up calls.
func (s *CompletionService) supportProvider() (llm.Provider, error) {
	if s.cfg.SupportProvider != "" {
		return s.registry.Get(s.cfg.SupportProvider)
	}
	return s.registry.Current()
}

// extractConcepts asks the support provider for the salient terms of a
// completed turn and persists them. Failures are logged, never surfaced.
func (s *CompletionService) extractConcepts(ctx context.Context, conversationID, selection, response string) {
	provider, err := s.supportProvider()
	if err != nil {
		slog.Warn("Concept extraction skipped, no support provider", "error", err)
		return
	}

	stream, err := provider.Stream(ctx, &model.CompletionRequest{
		Text:    selection,
		Context: truncate(response, 2000),
		Action:  model.ActionExtractTerms,
	})
	if err != nil {
		slog.Warn("Concept extraction request failed", "conversation_id", conversationID, "error", err)
		return
	}
	text, err := llm.Collect(ctx, stream)
	if err != nil {
		slog.Warn("Concept extraction stream failed", "conversation_id", conversationID, "error", err)
		return
	}

	concepts := parseConcepts(conversationID, text)
	if len(concepts) == 0 {
		return
	}
	if err := s.repo.SaveConcepts(ctx, concepts); err != nil {
		slog.Warn("Failed to save extracted concepts", "conversation_id", conversationID, "error", err)
		return
	}
	slog.Info("Saved extracted concepts", "conversation_id", conversationID, "count", len(concepts))
}

// createReviewCard synthesizes a spaced-repetition card from an explain
// turn: the selection on the front, the explanation on the back.
func (s *CompletionService) createReviewCard(ctx context.Context, conversationID, selection, response string) {
	card := &model.ReviewCard{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Front:          truncate(selection, 500),
		Back:           response,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.SaveReviewCard(ctx, card); err != nil {
		slog.Warn("Failed to save review card", "conversation_id", conversationID, "error", err)
		return
	}
	slog.Info("Saved review card", "conversation_id", conversationID, "card_id", card.ID)
}

// parseConcepts reads "term — definition" lines out of the extraction
// response, tolerating plain hyphens and colons as separators.
func parseConcepts(conversationID, text string) []model.Concept {
	now := time.Now().UTC()
	var concepts []model.Concept
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789. "))
		if line == "" {
			continue
		}
		term, definition := line, ""
		for _, sep := range []string{" — ", " – ", " - ", ": "} {
			if idx := strings.Index(line, sep); idx > 0 {
				term = strings.TrimSpace(line[:idx])
				definition = strings.TrimSpace(line[idx+len(sep):])
				break
			}
		}
		if term == "" || len(term) > 200 {
			continue
		}
		concepts = append(concepts, model.Concept{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Term:           term,
			Definition:     definition,
			CreatedAt:      now,
		})
	}
	return concepts
}
