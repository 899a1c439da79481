package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"lectern/backend/internal/model"
)

// Repository is a testify mock of repository.Repository.
type Repository struct {
	mock.Mock
}

func (m *Repository) CreateConversation(ctx context.Context, conv *model.Conversation, sources []model.SourceDocument) error {
	args := m.Called(ctx, conv, sources)
	return args.Error(0)
}

func (m *Repository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if conv := args.Get(0); conv != nil {
		return conv.(*model.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	args := m.Called(ctx)
	if convs := args.Get(0); convs != nil {
		return convs.([]*model.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	args := m.Called(ctx, conversationID, newTitle)
	return args.Error(0)
}

func (m *Repository) DeleteConversation(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *Repository) AddTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *model.Message) error {
	args := m.Called(ctx, conversationID, userMsg, assistantMsg)
	return args.Error(0)
}

func (m *Repository) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	args := m.Called(ctx, conversationID)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]model.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) GetSourceDocuments(ctx context.Context, conversationID string) ([]model.SourceDocument, error) {
	args := m.Called(ctx, conversationID)
	if sources := args.Get(0); sources != nil {
		return sources.([]model.SourceDocument), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) SaveConcepts(ctx context.Context, concepts []model.Concept) error {
	args := m.Called(ctx, concepts)
	return args.Error(0)
}

func (m *Repository) SaveReviewCard(ctx context.Context, card *model.ReviewCard) error {
	args := m.Called(ctx, card)
	return args.Error(0)
}
