package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectern/backend/internal/config"
	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/llm"
	"lectern/backend/internal/model"
	"lectern/backend/internal/service"
)

type fakeCompletionService struct {
	channelID    string
	events       []model.StreamEvent
	err          error
	lastRequest  *service.StartCompletionRequest
	cancelCalls  []string
	cancelResult bool
}

func (f *fakeCompletionService) StartCompletion(ctx context.Context, req *service.StartCompletionRequest) (string, <-chan model.StreamEvent, error) {
	f.lastRequest = req
	if f.err != nil {
		return "", nil, f.err
	}
	ch := make(chan model.StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return f.channelID, ch, nil
}

func (f *fakeCompletionService) Cancel(channelID string) bool {
	f.cancelCalls = append(f.cancelCalls, channelID)
	return f.cancelResult
}

type fakeConversationService struct {
	conversations []*model.Conversation
	full          *model.FullConversation
	getErr        error
	updateErr     error
	deleted       []string
}

func (f *fakeConversationService) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	return f.conversations, nil
}

func (f *fakeConversationService) GetFullConversation(ctx context.Context, conversationID string) (*model.FullConversation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.full, nil
}

func (f *fakeConversationService) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	return f.updateErr
}

func (f *fakeConversationService) DeleteConversation(ctx context.Context, conversationID string) error {
	f.deleted = append(f.deleted, conversationID)
	return nil
}

func newTestRouter(comp *fakeCompletionService, conv *fakeConversationService, registry *llm.Registry, refresh func() error) http.Handler {
	if registry == nil {
		registry = llm.NewRegistry(&config.Config{DefaultProvider: "ollama", AvailabilityTTLS: 30, OllamaURL: "http://localhost:1"})
	}
	if refresh == nil {
		refresh = func() error { return nil }
	}
	return NewRouter(
		NewCompletionHandler(comp),
		NewConversationHandler(conv),
		NewProviderHandler(registry, refresh),
	)
}

func TestHandleStartCompletion_StreamsChannelFrameThenEvents(t *testing.T) {
	svc := &fakeCompletionService{
		channelID: "stream-1-abcd1234",
		events: []model.StreamEvent{
			{Type: model.EventChunk, Data: "Hello"},
			{Type: model.EventChunk, Data: " world"},
			{Type: model.EventDone},
		},
	}
	router := newTestRouter(svc, &fakeConversationService{}, nil, nil)

	body := strings.NewReader(`{"text":"What is entropy?","action":"explain"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	got := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(got, "\n\n"), "\n\n")
	require.Len(t, frames, 4)
	assert.Equal(t, "event: channel\ndata: {\"channel_id\":\"stream-1-abcd1234\"}", frames[0])
	assert.Equal(t, "data: {\"type\":\"chunk\",\"data\":\"Hello\"}", frames[1])
	assert.Equal(t, "data: {\"type\":\"chunk\",\"data\":\" world\"}", frames[2])
	assert.Equal(t, "data: {\"type\":\"done\"}", frames[3])

	require.NotNil(t, svc.lastRequest)
	assert.Equal(t, "What is entropy?", svc.lastRequest.Text)
	assert.Equal(t, model.ActionExplain, svc.lastRequest.Action)
}

func TestHandleStartCompletion_ErrorEventFrame(t *testing.T) {
	svc := &fakeCompletionService{
		channelID: "stream-1-ffff0000",
		events: []model.StreamEvent{
			{Type: model.EventError, Error: "ollama: http status 500"},
		},
	}
	router := newTestRouter(svc, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `data: {"type":"error","error":"ollama: http status 500"}`)
}

func TestHandleStartCompletion_MissingTextIsBadRequest(t *testing.T) {
	router := newTestRouter(&fakeCompletionService{}, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", strings.NewReader(`{"context":"page"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "Text")
	assert.Contains(t, resp.Error, "required")
}

func TestHandleStartCompletion_PreStreamFailuresAreJSON(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"provider not found", fmt.Errorf("%w: %q", app_errors.ErrProviderNotFound, "nope"), http.StatusNotFound},
		{"turn in progress", fmt.Errorf("%w: conversation c already has a turn in progress", app_errors.ErrConflict), http.StatusConflict},
		{"provider not available", fmt.Errorf("%w: ollama", app_errors.ErrProviderNotAvailable), http.StatusServiceUnavailable},
		{"not configured", fmt.Errorf("openai: %w", app_errors.ErrNotConfigured), http.StatusBadRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeCompletionService{err: tc.err}, &fakeConversationService{}, nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", strings.NewReader(`{"text":"hi"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.code, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleCancelCompletion(t *testing.T) {
	svc := &fakeCompletionService{cancelResult: true}
	router := newTestRouter(svc, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/completions/stream-1-abcd1234/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cancelled)
	assert.Equal(t, []string{"stream-1-abcd1234"}, svc.cancelCalls)
}

func TestHandleCancelCompletion_UnknownIDStillOK(t *testing.T) {
	svc := &fakeCompletionService{cancelResult: false}
	router := newTestRouter(svc, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/completions/unknown/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Cancelled)
}

func TestHandleListConversations(t *testing.T) {
	svc := &fakeConversationService{conversations: []*model.Conversation{{ID: "a", Title: "first"}}}
	router := newTestRouter(&fakeCompletionService{}, svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []*model.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestHandleGetConversation_NotFound(t *testing.T) {
	svc := &fakeConversationService{getErr: fmt.Errorf("%w: conversation x", app_errors.ErrNotFound)}
	router := newTestRouter(&fakeCompletionService{}, svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateTitle(t *testing.T) {
	router := newTestRouter(&fakeCompletionService{}, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/conversations/a/title", strings.NewReader(`{"title":"Renamed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleUpdateTitle_EmptyTitleRejected(t *testing.T) {
	router := newTestRouter(&fakeCompletionService{}, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/conversations/a/title", strings.NewReader(`{"title":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeleteConversation(t *testing.T) {
	svc := &fakeConversationService{}
	router := newTestRouter(&fakeCompletionService{}, svc, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/a", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a"}, svc.deleted)
}

func TestHandleListProviders(t *testing.T) {
	router := newTestRouter(&fakeCompletionService{}, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []llm.ProviderStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 4)
	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"ollama", "openai", "anthropic", "gemini"}, ids)
}

func TestHandleSelectProvider(t *testing.T) {
	router := newTestRouter(&fakeCompletionService{}, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/providers/current", strings.NewReader(`{"id":"openai"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/providers/current", strings.NewReader(`{"id":"nonexistent"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/providers/current", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRefreshProviders(t *testing.T) {
	refreshed := false
	router := newTestRouter(&fakeCompletionService{}, &fakeConversationService{}, nil, func() error {
		refreshed = true
		return nil
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/providers/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, refreshed)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&fakeCompletionService{}, &fakeConversationService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
