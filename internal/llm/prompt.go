package llm

import (
	"fmt"
	"strings"

	"lectern/backend/internal/model"
)

// systemPrompts maps each reading action to the instruction sent as the
// system message. The zero action gets the plain assistant prompt.
var systemPrompts = map[model.Action]string{
	"": "You are a helpful reading assistant embedded in a PDF reader. Answer the reader's question about the selected passage clearly and concisely.",
	model.ActionExplain: "You are a patient tutor. Explain the selected passage in plain language, " +
		"assuming the reader is seeing the concept for the first time. Use short paragraphs and concrete examples.",
	model.ActionSummarize: "Summarize the selected passage in a few sentences. Preserve the key claims and omit examples and asides.",
	model.ActionDefine:    "Define the selected term or phrase precisely, then give one sentence of context for how it is used in this passage.",
	model.ActionParseEquation: "The selection is a mathematical expression. Name each symbol, state what the equation as a whole asserts, " +
		"and note any standard name the equation has.",
	model.ActionExplainFundamental: "Explain the fundamental concept underlying the selected passage from first principles, " +
		"building up from ideas a motivated high-school student would know.",
	model.ActionExtractTerms: "List the salient technical terms in the selected passage. " +
		"Respond with one term per line in the form: term — one-sentence definition. No other text.",
}

// systemPrompt returns the instruction for an action, falling back to the
// plain prompt for unknown values rather than failing the request.
func systemPrompt(action model.Action) string {
	if p, ok := systemPrompts[action]; ok {
		return p
	}
	return systemPrompts[""]
}

// userContent renders the selection and optional page context into the
// final user message handed to the backend.
func userContent(req *model.CompletionRequest) string {
	if req.Context == "" {
		return req.Text
	}
	return fmt.Sprintf("Selected text:\n%s\n\nSurrounding page context:\n%s", req.Text, req.Context)
}

// chatMessages flattens a request into the common role/content list:
// system prompt first, then prior history, then the new user message.
// Adapters that need a different envelope re-map from this.
func chatMessages(req *model.CompletionRequest) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(req.History)+2)
	msgs = append(msgs, model.ChatMessage{Role: model.RoleSystem, Content: systemPrompt(req.Action)})
	for _, m := range req.History {
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, model.ChatMessage{Role: model.RoleUser, Content: userContent(req)})
	return msgs
}

// flatPrompt renders the same content as chatMessages into a single
// prompt string, for backends that take raw prompts instead of message
// lists.
func flatPrompt(req *model.CompletionRequest) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt(req.Action))
	sb.WriteString("\n\n")
	for _, m := range req.History {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(userContent(req))
	return sb.String()
}
