package repository

import (
	"context"

	"lectern/backend/internal/model"
)

// Repository defines the interface for data storage operations. This
// interface makes it easy to switch database implementations and to mock
// the layer in service tests.
type Repository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation, sources []model.SourceDocument) error
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListConversations(ctx context.Context) ([]*model.Conversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error
	DeleteConversation(ctx context.Context, conversationID string) error

	// AddTurn persists one user message and its assistant response as a
	// single unit, so history never ends up with half a turn.
	AddTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *model.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	GetSourceDocuments(ctx context.Context, conversationID string) ([]model.SourceDocument, error)

	SaveConcepts(ctx context.Context, concepts []model.Concept) error
	SaveReviewCard(ctx context.Context, card *model.ReviewCard) error
}
