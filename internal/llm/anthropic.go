package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/model"
)

const anthropicVersion = "2023-06-01"

// anthropicProvider streams completions from the Anthropic Messages API.
// Frames are typed SSE events; only content_block_delta events with a
// text_delta carry emit-worthy text. message_start, content_block_start,
// content_block_stop, ping and message_stop are recognized and dropped.
type anthropicProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewAnthropicProvider(baseURL, apiKey, modelName string) Provider {
	return &anthropicProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		client:  newHTTPClient(),
	}
}

func (p *anthropicProvider) ID() string   { return "anthropic" }
func (p *anthropicProvider) Name() string { return "Anthropic" }
func (p *anthropicProvider) Kind() Kind   { return KindCloud }

func (p *anthropicProvider) Available(ctx context.Context) bool {
	return p.apiKey != ""
}

type anthropicMessagesRequest struct {
	Model     string              `json:"model"`
	System    string              `json:"system,omitempty"`
	Messages  []model.ChatMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
	Stream    bool                `json:"stream"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (p *anthropicProvider) Stream(ctx context.Context, req *model.CompletionRequest) (Stream, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: %w: set ANTHROPIC_API_KEY", p.ID(), app_errors.ErrNotConfigured)
	}

	// Anthropic takes the system prompt as a top-level field, not a
	// system-role message.
	msgs := chatMessages(req)
	system := ""
	if len(msgs) > 0 && msgs[0].Role == model.RoleSystem {
		system = msgs[0].Content
		msgs = msgs[1:]
	}

	body, err := json.Marshal(anthropicMessagesRequest{
		Model:     p.model,
		System:    system,
		Messages:  msgs,
		MaxTokens: 4096,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.ID(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &TransportError{Provider: p.ID(), Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	return newAnthropicStream(resp.Body), nil
}

type anthropicStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newAnthropicStream(body io.ReadCloser) *anthropicStream {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &anthropicStream{body: body, scanner: scanner}
}

func (s *anthropicStream) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", err
			}
			s.done = true
			return "", io.EOF
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			// `event:` lines are redundant with the payload's type field.
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			slog.Debug("Skipping malformed anthropic stream frame", "error", err)
			continue
		}

		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				return ev.Delta.Text, nil
			}
		case "message_stop":
			s.done = true
			return "", io.EOF
		}
		// message_start, content_block_start/stop, ping: nothing to emit.
	}
}

func (s *anthropicStream) Close() error {
	s.done = true
	return s.body.Close()
}
