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
	"time"

	"lectern/backend/internal/model"
)

// ollamaProvider streams completions from a local Ollama daemon. The wire
// format is newline-delimited JSON objects carrying a "response" field,
// terminated by an object with "done": true.
type ollamaProvider struct {
	url    string
	model  string
	client *http.Client
}

func NewOllamaProvider(url, modelName string) Provider {
	return &ollamaProvider{
		url:    strings.TrimRight(url, "/"),
		model:  modelName,
		client: newHTTPClient(),
	}
}

func (p *ollamaProvider) ID() string   { return "ollama" }
func (p *ollamaProvider) Name() string { return "Ollama (local)" }
func (p *ollamaProvider) Kind() Kind   { return KindLocal }

// Available probes the daemon root. Any failure counts as unavailable.
func (p *ollamaProvider) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.url+"/", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaStreamChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *ollamaProvider) Stream(ctx context.Context, req *model.CompletionRequest) (Stream, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.model,
		Prompt: flatPrompt(req),
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.ID(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &TransportError{Provider: p.ID(), Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	return newOllamaStream(resp.Body), nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newOllamaStream(body io.ReadCloser) *ollamaStream {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &ollamaStream{body: body, scanner: scanner}
}

func (s *ollamaStream) Next(ctx context.Context) (string, error) {
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
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// One bad line must not kill the whole stream.
			slog.Debug("Skipping malformed ollama stream line", "error", err)
			continue
		}
		if chunk.Done {
			s.done = true
			if chunk.Response != "" {
				return chunk.Response, nil
			}
			return "", io.EOF
		}
		if chunk.Response == "" {
			continue
		}
		return chunk.Response, nil
	}
}

func (s *ollamaStream) Close() error {
	s.done = true
	return s.body.Close()
}
