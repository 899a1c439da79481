package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectern/backend/internal/config"
	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/model"
)

func testConfig(ollamaURL string) *config.Config {
	return &config.Config{
		OllamaURL:        ollamaURL,
		OllamaModel:      "test-model",
		OpenAIBaseURL:    "http://localhost:1",
		OpenAIModel:      "gpt-test",
		AnthropicBaseURL: "http://localhost:1",
		AnthropicModel:   "claude-test",
		GeminiBaseURL:    "http://localhost:1",
		GeminiModel:      "gemini-test",
		DefaultProvider:  "ollama",
		AvailabilityTTLS: 30,
	}
}

func TestRegistry_GetAndCurrent(t *testing.T) {
	reg := NewRegistry(testConfig("http://localhost:1"))

	p, err := reg.Get("ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.ID())

	_, err = reg.Get("nonexistent")
	require.ErrorIs(t, err, app_errors.ErrProviderNotFound)

	current, err := reg.Current()
	require.NoError(t, err)
	assert.Equal(t, "ollama", current.ID())

	assert.True(t, reg.SetCurrent("openai"))
	assert.False(t, reg.SetCurrent("nonexistent"))

	current, err = reg.Current()
	require.NoError(t, err)
	assert.Equal(t, "openai", current.ID())
}

func TestRegistry_AvailabilityCache(t *testing.T) {
	var probes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := NewRegistry(testConfig(server.URL))
	ctx := context.Background()

	// Two listings inside the TTL window issue at most one probe per
	// provider; the cloud adapters never probe the network at all.
	first := reg.ListWithAvailability(ctx)
	second := reg.ListWithAvailability(ctx)
	assert.Equal(t, int32(1), probes.Load())
	require.Len(t, first, 4)
	assert.Equal(t, first, second)

	var ollamaStatus ProviderStatus
	for _, s := range first {
		if s.ID == "ollama" {
			ollamaStatus = s
		}
	}
	assert.True(t, ollamaStatus.Available)

	// Invalidating one id forces only that provider to re-probe.
	reg.Invalidate("ollama")
	reg.ListWithAvailability(ctx)
	assert.Equal(t, int32(2), probes.Load())
}

func TestRegistry_AvailabilityCacheExpiry(t *testing.T) {
	var probes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := NewRegistry(testConfig(server.URL))
	now := time.Now()
	reg.now = func() time.Time { return now }

	ctx := context.Background()
	reg.ListWithAvailability(ctx)
	reg.ListWithAvailability(ctx)
	assert.Equal(t, int32(1), probes.Load())

	// Past the TTL the entry is stale and the next query probes again.
	now = now.Add(31 * time.Second)
	reg.ListWithAvailability(ctx)
	assert.Equal(t, int32(2), probes.Load())
}

func TestRegistry_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	reg := NewRegistry(cfg)
	ctx := context.Background()

	t.Run("empty id resolves current", func(t *testing.T) {
		p, err := reg.Resolve(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "ollama", p.ID())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := reg.Resolve(ctx, "nonexistent")
		require.ErrorIs(t, err, app_errors.ErrProviderNotFound)
	})

	t.Run("unconfigured cloud provider is unavailable", func(t *testing.T) {
		_, err := reg.Resolve(ctx, "openai")
		require.ErrorIs(t, err, app_errors.ErrProviderNotAvailable)
	})
}

func TestRegistry_RefreshRebuildsAdapters(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	reg := NewRegistry(cfg)
	ctx := context.Background()

	_, err := reg.Resolve(ctx, "openai")
	require.ErrorIs(t, err, app_errors.ErrProviderNotAvailable)

	// Adding a credential and refreshing makes the provider resolvable;
	// the stale "unavailable" cache entry must not survive the refresh.
	cfg.OpenAIAPIKey = "fresh-key"
	reg.Refresh(cfg)

	p, err := reg.Resolve(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID())
}

// scriptedStream is a canned llm.Stream for registry and collect tests.
type scriptedStream struct {
	fragments []string
	i         int
}

func (s *scriptedStream) Next(ctx context.Context) (string, error) {
	if s.i >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.i]
	s.i++
	return f, nil
}

func (s *scriptedStream) Close() error { return nil }

func TestCollect(t *testing.T) {
	text, err := Collect(context.Background(), &scriptedStream{fragments: []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestRegistry_RegisterCustomProvider(t *testing.T) {
	reg := NewRegistry(testConfig("http://localhost:1"))
	reg.Register(&staticProvider{id: "fake"})

	require.True(t, reg.SetCurrent("fake"))
	p, err := reg.Resolve(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, "fake", p.ID())
	assert.Len(t, reg.All(), 5)
}

type staticProvider struct {
	id string
}

func (p *staticProvider) ID() string                        { return p.id }
func (p *staticProvider) Name() string                      { return p.id }
func (p *staticProvider) Kind() Kind                        { return KindLocal }
func (p *staticProvider) Available(ctx context.Context) bool { return true }
func (p *staticProvider) Stream(ctx context.Context, req *model.CompletionRequest) (Stream, error) {
	return &scriptedStream{}, nil
}
