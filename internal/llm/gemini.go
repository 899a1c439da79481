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

// geminiProvider streams completions from the Gemini generateContent API
// with alt=sse. Frames are SSE `data:` lines whose payload carries
// candidates[0].content.parts[0].text. Gemini is known to emit partial
// JSON lines under load; malformed frames are skipped, never fatal.
type geminiProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewGeminiProvider(baseURL, apiKey, modelName string) Provider {
	return &geminiProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		client:  newHTTPClient(),
	}
}

func (p *geminiProvider) ID() string   { return "gemini" }
func (p *geminiProvider) Name() string { return "Google Gemini" }
func (p *geminiProvider) Kind() Kind   { return KindCloud }

func (p *geminiProvider) Available(ctx context.Context) bool {
	return p.apiKey != ""
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiStreamChunk struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *geminiProvider) Stream(ctx context.Context, req *model.CompletionRequest) (Stream, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: %w: set GEMINI_API_KEY", p.ID(), app_errors.ErrNotConfigured)
	}

	genReq := geminiGenerateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt(req.Action)}}},
	}
	for _, m := range req.History {
		if m.Content == "" {
			continue
		}
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		genReq.Contents = append(genReq.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	genReq.Contents = append(genReq.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: userContent(req)}}})

	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
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

	return newGeminiStream(resp.Body), nil
}

type geminiStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newGeminiStream(body io.ReadCloser) *geminiStream {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &geminiStream{body: body, scanner: scanner}
}

func (s *geminiStream) Next(ctx context.Context) (string, error) {
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

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Debug("Skipping malformed gemini stream frame", "error", err)
			continue
		}
		if len(chunk.Candidates) == 0 || len(chunk.Candidates[0].Content.Parts) == 0 {
			continue
		}
		text := chunk.Candidates[0].Content.Parts[0].Text
		if text == "" {
			continue
		}
		return text, nil
	}
}

func (s *geminiStream) Close() error {
	s.done = true
	return s.body.Close()
}
