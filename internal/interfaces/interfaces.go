package interfaces

import (
	"context"

	"lectern/backend/internal/model"
	"lectern/backend/internal/service"
)

// This file defines the interfaces for our core services. Depending on
// these interfaces instead of concrete implementations decouples the API
// layer from the service layer and keeps handlers easy to test with mocks.

// CompletionService is the contract for the streaming completion pipeline.
type CompletionService interface {
	StartCompletion(ctx context.Context, req *service.StartCompletionRequest) (string, <-chan model.StreamEvent, error)
	Cancel(channelID string) bool
}

// ConversationService is the contract for conversation CRUD.
type ConversationService interface {
	ListConversations(ctx context.Context) ([]*model.Conversation, error)
	GetFullConversation(ctx context.Context, conversationID string) (*model.FullConversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error
	DeleteConversation(ctx context.Context, conversationID string) error
}
