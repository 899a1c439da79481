package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/model"
)

func TestGeminiProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"One\"}]}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" two\"}]}}]}\n\n"))
	}))
	defer server.Close()

	provider := NewGeminiProvider(server.URL, "test-key", "gemini-test")
	stream, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{"One", " two"}, drain(t, stream))
}

func TestGeminiProvider_Stream_MalformedFramesAreTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Gemini under load can truncate a JSON payload mid-line; the
		// stream must skip it and keep reading.
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"par\n\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[]}\n\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"fine\"}]}}]}\n\n"))
	}))
	defer server.Close()

	provider := NewGeminiProvider(server.URL, "test-key", "gemini-test")
	stream, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{"ok", "fine"}, drain(t, stream))
}

func TestGeminiProvider_Stream_NoKeyFailsFast(t *testing.T) {
	provider := NewGeminiProvider("http://localhost:1", "", "gemini-test")
	_, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi"})
	require.ErrorIs(t, err, app_errors.ErrNotConfigured)
}

func TestGeminiProvider_Stream_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid model"}}`))
	}))
	defer server.Close()

	provider := NewGeminiProvider(server.URL, "test-key", "gemini-test")
	_, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini")
	assert.Contains(t, err.Error(), "400")
}

func TestGeminiProvider_RolesMapping(t *testing.T) {
	var gotBody geminiGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, decodeJSONBody(r, &gotBody))
	}))
	defer server.Close()

	provider := NewGeminiProvider(server.URL, "test-key", "gemini-test")
	stream, err := provider.Stream(context.Background(), &model.CompletionRequest{
		Text: "next",
		History: []model.ChatMessage{
			{Role: model.RoleUser, Content: "q"},
			{Role: model.RoleAssistant, Content: "a"},
		},
	})
	require.NoError(t, err)
	drain(t, stream)

	require.NotNil(t, gotBody.SystemInstruction)
	require.Len(t, gotBody.Contents, 3)
	assert.Equal(t, "user", gotBody.Contents[0].Role)
	assert.Equal(t, "model", gotBody.Contents[1].Role)
	assert.Equal(t, "user", gotBody.Contents[2].Role)
}
