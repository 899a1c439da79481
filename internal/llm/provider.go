package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/backend/internal/model"
)

// Kind classifies where a provider runs.
type Kind string

const (
	KindLocal Kind = "local"
	KindCloud Kind = "cloud"
)

// Provider is the uniform contract every backend adapter implements.
// Stream opens the network call and returns a pull-based sequence of text
// fragments; configuration and transport failures surface from Stream
// itself, before the first fragment.
type Provider interface {
	ID() string
	Name() string
	Kind() Kind

	// Available reports whether the backend can currently serve requests.
	// It must not return an error: network failures are captured as false.
	Available(ctx context.Context) bool

	// Stream starts a completion. The returned Stream yields plain text
	// fragments and io.EOF on normal exhaustion. Close aborts the
	// underlying transport.
	Stream(ctx context.Context, req *model.CompletionRequest) (Stream, error)
}

// Stream is a lazy sequence of text fragments. Each Next call may block
// on network I/O and honours ctx cancellation.
type Stream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// TransportError reports a non-2xx response from a backend. The message
// always names the provider and the status code.
type TransportError struct {
	Provider string
	Status   int
	Body     string
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: http status %d", e.Provider, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Collect drains a stream into a single string. Used by background
// follow-up completions that do not need incremental delivery.
func Collect(ctx context.Context, s Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		fragment, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		sb.WriteString(fragment)
	}
}

// newHTTPClient returns the client adapters use for streaming calls.
// No overall timeout: streams are long-lived and bounded by the session
// manager's inactivity timer instead.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}
}

// readErrorBody captures up to 8KB of an error response for diagnostics.
func readErrorBody(body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, 8*1024))
	return strings.TrimSpace(string(b))
}
