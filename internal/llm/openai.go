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

// openaiProvider streams completions from the OpenAI chat completions
// API. Frames are SSE `data:` lines carrying choices[0].delta.content;
// a literal `data: [DONE]` frame ends the stream and is never parsed
// as JSON.
type openaiProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, modelName string) Provider {
	return &openaiProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		client:  newHTTPClient(),
	}
}

func (p *openaiProvider) ID() string   { return "openai" }
func (p *openaiProvider) Name() string { return "OpenAI" }
func (p *openaiProvider) Kind() Kind   { return KindCloud }

// Available for a cloud provider means a credential is present; the
// endpoint itself is assumed reachable.
func (p *openaiProvider) Available(ctx context.Context) bool {
	return p.apiKey != ""
}

type openaiChatRequest struct {
	Model    string              `json:"model"`
	Messages []model.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *openaiProvider) Stream(ctx context.Context, req *model.CompletionRequest) (Stream, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: %w: set OPENAI_API_KEY", p.ID(), app_errors.ErrNotConfigured)
	}

	body, err := json.Marshal(openaiChatRequest{
		Model:    p.model,
		Messages: chatMessages(req),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
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

	return newOpenAIStream(resp.Body), nil
}

type openaiStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newOpenAIStream(body io.ReadCloser) *openaiStream {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &openaiStream{body: body, scanner: scanner}
}

func (s *openaiStream) Next(ctx context.Context) (string, error) {
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
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Debug("Skipping malformed openai stream frame", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
}

func (s *openaiStream) Close() error {
	s.done = true
	return s.body.Close()
}
