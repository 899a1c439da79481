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

func TestAnthropicProvider_Stream_OnlyContentDeltasEmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\"}}\n\n",
			"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0}\n\n",
			"event: ping\ndata: {\"type\":\"ping\"}\n\n",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\" there\"}}\n\n",
			"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n",
			"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
		}
		for _, f := range frames {
			_, _ = w.Write([]byte(f))
		}
	}))
	defer server.Close()

	provider := NewAnthropicProvider(server.URL, "test-key", "claude-test")
	stream, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi"})
	require.NoError(t, err)

	fragments := drain(t, stream)
	assert.Equal(t, []string{"Hi", " there"}, fragments)
	// Lifecycle event types must never leak into the emitted text.
	assert.NotContains(t, fragments, "message_stop")
}

func TestAnthropicProvider_Stream_SystemPromptIsTopLevel(t *testing.T) {
	var gotBody anthropicMessagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, decodeJSONBody(r, &gotBody))
		_, _ = w.Write([]byte("event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"))
	}))
	defer server.Close()

	provider := NewAnthropicProvider(server.URL, "test-key", "claude-test")
	stream, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi", Action: model.ActionDefine})
	require.NoError(t, err)
	drain(t, stream)

	assert.NotEmpty(t, gotBody.System)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, model.RoleUser, gotBody.Messages[0].Role)
}

func TestAnthropicProvider_Stream_NoKeyFailsFast(t *testing.T) {
	provider := NewAnthropicProvider("http://localhost:1", "", "claude-test")
	_, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi"})
	require.ErrorIs(t, err, app_errors.ErrNotConfigured)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestAnthropicProvider_Stream_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewAnthropicProvider(server.URL, "test-key", "claude-test")
	_, err := provider.Stream(context.Background(), &model.CompletionRequest{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic")
	assert.Contains(t, err.Error(), "429")
}
