package model

import "time"

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Action identifies what the user asked the assistant to do with the
// selected text. It selects the system prompt sent to the provider.
type Action string

const (
	ActionExplain            Action = "explain"
	ActionSummarize          Action = "summarize"
	ActionDefine             Action = "define"
	ActionParseEquation      Action = "parse_equation"
	ActionExplainFundamental Action = "explain_fundamental"
	ActionExtractTerms       Action = "extract_terms"
)

// Valid reports whether a is one of the known actions. The zero value
// (no action) is valid and means "answer with no task-specific prompt".
func (a Action) Valid() bool {
	switch a {
	case "", ActionExplain, ActionSummarize, ActionDefine,
		ActionParseEquation, ActionExplainFundamental, ActionExtractTerms:
		return true
	}
	return false
}

// ChatMessage is one turn entry in the flattened history handed to a
// provider adapter.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the uniform input to one completion. It is built
// once from the client request and never mutated afterwards.
type CompletionRequest struct {
	Text     string        // selected text, required
	Context  string        // surrounding page context, optional
	Action   Action        // optional, zero value means plain question
	History  []ChatMessage // prior turns, oldest first, optional
}

// Conversation stores metadata about one reading conversation.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SelectedText string    `json:"selected_text,omitempty"`
	PageContext  string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message stores a single message in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	IsError        bool      `json:"is_error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SourceDocument attributes a conversation to a location in a document.
type SourceDocument struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	QuotedText string `json:"quoted_text,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

// FullConversation includes the conversation metadata, its messages and
// its source attributions.
type FullConversation struct {
	Conversation
	Messages []Message        `json:"messages"`
	Sources  []SourceDocument `json:"sources,omitempty"`
}

// Concept is a salient term extracted from a completed turn by the
// background follow-up pass.
type Concept struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Term           string    `json:"term"`
	Definition     string    `json:"definition,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReviewCard is a spaced-repetition card synthesized from an "explain"
// turn: front is the selection, back is the assistant's answer.
type ReviewCard struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Front          string    `json:"front"`
	Back           string    `json:"back"`
	CreatedAt      time.Time `json:"created_at"`
}

// Stream event types delivered to the UI on a session's channel.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is the tagged union delivered to the client for each
// flushed piece of a streaming session.
type StreamEvent struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}
