package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/model"
	"lectern/backend/internal/repository"
)

// Turn tracks one user question and its in-progress assistant response.
// The assistant message is appended as an empty placeholder before the
// stream starts and mutated in place as fragments arrive; nothing is
// persisted until the turn reaches a terminal state.
type Turn struct {
	ConversationID string
	User           *model.Message
	Assistant      *model.Message

	// memoryOnly is set when conversation creation failed; the turn then
	// lives only in memory and persistence is skipped rather than
	// surfacing storage errors to the user.
	memoryOnly bool
}

// Reconciler maintains ordered per-conversation history and merges
// streaming deltas into the open assistant placeholder. It guarantees at
// most one open turn per conversation and persists completed turns as a
// single unit to avoid write amplification from every fragment.
type Reconciler struct {
	repo repository.Repository

	mu   sync.Mutex
	open map[string]*Turn
}

func NewReconciler(repo repository.Repository) *Reconciler {
	return &Reconciler{
		repo: repo,
		open: make(map[string]*Turn),
	}
}

// StartTurn opens a turn: it resolves or creates the conversation,
// records the user message and appends the empty assistant placeholder.
// A second concurrent turn on the same conversation is rejected.
func (r *Reconciler) StartTurn(ctx context.Context, conversationID, userContent, selectedText, pageContext string, sources []model.SourceDocument) (*Turn, error) {
	now := time.Now().UTC()
	turn := &Turn{
		User: &model.Message{
			ID:        uuid.NewString(),
			Role:      model.RoleUser,
			Content:   userContent,
			Timestamp: now,
		},
		Assistant: &model.Message{
			ID:        uuid.NewString(),
			Role:      model.RoleAssistant,
			Content:   "",
			Timestamp: now,
		},
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
		conv := &model.Conversation{
			ID:           conversationID,
			Title:        truncate(userContent, 50),
			SelectedText: selectedText,
			PageContext:  pageContext,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := r.repo.CreateConversation(ctx, conv, sources); err != nil {
			// Degrade to in-memory-only state: the stream still runs,
			// history just will not survive the process.
			slog.Error("Could not create conversation, continuing in memory only", "error", err)
			turn.memoryOnly = true
		}
	} else {
		if _, err := r.repo.GetConversation(ctx, conversationID); err != nil {
			return nil, fmt.Errorf("could not load conversation: %w", err)
		}
	}
	turn.ConversationID = conversationID
	turn.User.ConversationID = conversationID
	turn.Assistant.ConversationID = conversationID

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[conversationID]; exists {
		return nil, fmt.Errorf("%w: conversation %s already has a turn in progress", app_errors.ErrConflict, conversationID)
	}
	r.open[conversationID] = turn
	return turn, nil
}

// OnFragment appends a streamed chunk to the placeholder. The content
// only ever grows, so readers of the current view see a monotonically
// lengthening assistant message.
func (r *Reconciler) OnFragment(turn *Turn, chunk string) {
	turn.Assistant.Content += chunk
}

// OnComplete replaces the placeholder content with the final text and
// persists the full turn as one unit.
func (r *Reconciler) OnComplete(ctx context.Context, turn *Turn, finalContent string) {
	turn.Assistant.Content = finalContent
	r.release(turn)
	if turn.memoryOnly {
		return
	}
	if err := r.repo.AddTurn(ctx, turn.ConversationID, turn.User, turn.Assistant); err != nil {
		slog.Error("Failed to persist completed turn", "conversation_id", turn.ConversationID, "error", err)
	}
}

// OnError persists the user message together with an error marker so
// history stays consistent even on failure.
func (r *Reconciler) OnError(ctx context.Context, turn *Turn, message string) {
	turn.Assistant.Content = message
	turn.Assistant.IsError = true
	r.release(turn)
	if turn.memoryOnly {
		return
	}
	if err := r.repo.AddTurn(ctx, turn.ConversationID, turn.User, turn.Assistant); err != nil {
		slog.Error("Failed to persist errored turn", "conversation_id", turn.ConversationID, "error", err)
	}
}

// Abandon releases a turn without persisting anything. Used for user
// cancellation, which is silent by design.
func (r *Reconciler) Abandon(turn *Turn) {
	r.release(turn)
}

func (r *Reconciler) release(turn *Turn) {
	r.mu.Lock()
	delete(r.open, turn.ConversationID)
	r.mu.Unlock()
}

// truncate shortens a string to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
