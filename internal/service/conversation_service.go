package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/model"
	"lectern/backend/internal/repository"
)

// ConversationService exposes the sidebar's CRUD view of persisted
// conversations.
type ConversationService struct {
	repo repository.Repository
}

func NewConversationService(repo repository.Repository) *ConversationService {
	return &ConversationService{repo: repo}
}

func (s *ConversationService) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	return s.repo.ListConversations(ctx)
}

// GetFullConversation returns the metadata, all messages and the source
// attributions for one conversation.
func (s *ConversationService) GetFullConversation(ctx context.Context, conversationID string) (*model.FullConversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, conversationID)
		}
		return nil, fmt.Errorf("could not get conversation: %w", err)
	}
	messages, err := s.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("could not get messages: %w", err)
	}
	sources, err := s.repo.GetSourceDocuments(ctx, conversationID)
	if err != nil {
		// Attribution rows are decorative; the conversation is still useful.
		slog.Warn("Could not load source documents", "conversation_id", conversationID, "error", err)
	}
	return &model.FullConversation{Conversation: *conv, Messages: messages, Sources: sources}, nil
}

func (s *ConversationService) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	if newTitle == "" {
		return fmt.Errorf("%w: title cannot be empty", app_errors.ErrValidation)
	}
	if err := s.repo.UpdateConversationTitle(ctx, conversationID, newTitle); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, conversationID)
		}
		return err
	}
	return nil
}

func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID string) error {
	slog.Info("Deleting conversation", "conversation_id", conversationID)
	return s.repo.DeleteConversation(ctx, conversationID)
}
