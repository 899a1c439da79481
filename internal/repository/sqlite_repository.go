package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lectern/backend/internal/model"
)

type sqliteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) Repository {
	return &sqliteRepository{db: db}
}

// CreateConversation inserts the conversation and its source attributions
// in one transaction.
func (r *sqliteRepository) CreateConversation(ctx context.Context, conv *model.Conversation, sources []model.SourceDocument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "INSERT INTO conversations (id, title, selected_text, page_context, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := tx.ExecContext(ctx, query, conv.ID, conv.Title, conv.SelectedText, conv.PageContext, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return fmt.Errorf("could not insert conversation: %w", err)
	}

	srcQuery := "INSERT INTO source_documents (id, conversation_id, document_id, file_name, quoted_text, page_number) VALUES (?, ?, ?, ?, ?, ?)"
	for i, src := range sources {
		id := fmt.Sprintf("%s-src-%d", conv.ID, i)
		if _, err := tx.ExecContext(ctx, srcQuery, id, conv.ID, src.DocumentID, src.FileName, src.QuotedText, src.PageNumber); err != nil {
			return fmt.Errorf("could not insert source document: %w", err)
		}
	}

	return tx.Commit()
}

func (r *sqliteRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	query := "SELECT id, title, selected_text, page_context, created_at, updated_at FROM conversations WHERE id = ?"
	row := r.db.QueryRowContext(ctx, query, conversationID)
	var conv model.Conversation
	err := row.Scan(&conv.ID, &conv.Title, &conv.SelectedText, &conv.PageContext, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *sqliteRepository) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	query := "SELECT id, title, selected_text, page_context, created_at, updated_at FROM conversations ORDER BY updated_at DESC"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.SelectedText, &conv.PageContext, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

func (r *sqliteRepository) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	query := "UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, newTitle, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	query := "DELETE FROM conversations WHERE id = ?"
	_, err := r.db.ExecContext(ctx, query, conversationID)
	return err
}

// AddTurn writes the user message and the assistant response atomically
// and bumps the conversation's updated_at.
func (r *sqliteRepository) AddTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := "INSERT INTO messages (id, conversation_id, role, content, is_error, timestamp) VALUES (?, ?, ?, ?, ?, ?)"
	for _, msg := range []*model.Message{userMsg, assistantMsg} {
		if msg == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, insertQuery, msg.ID, conversationID, msg.Role, msg.Content, msg.IsError, msg.Timestamp); err != nil {
			return fmt.Errorf("could not insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", time.Now().UTC(), conversationID); err != nil {
		return fmt.Errorf("could not update conversation timestamp: %w", err)
	}

	return tx.Commit()
}

func (r *sqliteRepository) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := "SELECT id, conversation_id, role, content, is_error, timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC"
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.IsError, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *sqliteRepository) GetSourceDocuments(ctx context.Context, conversationID string) ([]model.SourceDocument, error) {
	query := "SELECT document_id, file_name, quoted_text, page_number FROM source_documents WHERE conversation_id = ?"
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []model.SourceDocument
	for rows.Next() {
		var src model.SourceDocument
		var quoted sql.NullString
		var page sql.NullInt64
		if err := rows.Scan(&src.DocumentID, &src.FileName, &quoted, &page); err != nil {
			return nil, err
		}
		if quoted.Valid {
			src.QuotedText = quoted.String
		}
		if page.Valid {
			src.PageNumber = int(page.Int64)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (r *sqliteRepository) SaveConcepts(ctx context.Context, concepts []model.Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "INSERT INTO concepts (id, conversation_id, term, definition, created_at) VALUES (?, ?, ?, ?, ?)"
	for _, c := range concepts {
		if _, err := tx.ExecContext(ctx, query, c.ID, c.ConversationID, c.Term, c.Definition, c.CreatedAt); err != nil {
			return fmt.Errorf("could not insert concept: %w", err)
		}
	}
	return tx.Commit()
}

func (r *sqliteRepository) SaveReviewCard(ctx context.Context, card *model.ReviewCard) error {
	query := "INSERT INTO review_cards (id, conversation_id, front, back, created_at) VALUES (?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, card.ID, card.ConversationID, card.Front, card.Back, card.CreatedAt)
	return err
}
