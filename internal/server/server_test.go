// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modelexplorer/internal/chat"
	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/llm/llmtest"
	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/ollama"
	"github.com/jeranaias/modelexplorer/internal/session"
	"github.com/jeranaias/modelexplorer/internal/sse"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

type testEnv struct {
	srv   *Server
	fake  *llmtest.Fake
	store *storage.ConversationStore
	ctrl  *chat.Controller
}

func newTestEnv(t *testing.T, fake *llmtest.Fake, opts Options) *testEnv {
	t.Helper()
	store := storage.NewConversationStore(storage.NewMemoryStore(), nil)
	ctrl := chat.New(store, fake, nil)
	srv := New(fake, ctrl, store, nil, opts)
	t.Cleanup(srv.baseCancel)
	return &testEnv{srv: srv, fake: fake, store: store, ctrl: ctrl}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEvents(t *testing.T, body io.Reader) []session.Event {
	t.Helper()
	dec := sse.NewDecoder(body)
	var events []session.Event
	for {
		ev, err := dec.NextEvent()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

var notReady = llm.StatusUnavailable(llm.NotReady, "The model is still downloading.", "Wait for the download to finish.")

// =============================================================================
// CHAT
// =============================================================================

func TestChat_OK(t *testing.T) {
	env := newTestEnv(t, llmtest.New("Hel", "Hello"), Options{})

	rec := env.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Hello", resp.Response)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, []string{"hi"}, env.fake.Prompts())
}

func TestChat_Unavailable(t *testing.T) {
	fake := llmtest.New("never")
	fake.SetStatus(notReady)
	env := newTestEnv(t, fake, Options{})

	rec := env.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, notReady.Summary(), resp.Response)
	assert.Empty(t, fake.Prompts(), "model must not be called when unavailable")
}

func TestChat_GenerationFailure(t *testing.T) {
	fake := llmtest.New("part")
	fake.Err = llm.NewSessionError("Generation failed", errors.New("boom"))
	env := newTestEnv(t, fake, Options{})

	rec := env.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChat_InvalidRequests(t *testing.T) {
	env := newTestEnv(t, llmtest.New("x"), Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"message":`, http.StatusBadRequest},
		{"missing message", `{}`, http.StatusBadRequest},
		{"blank message", `{"message":"   "}`, http.StatusBadRequest},
		{"oversized body", `{"message":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/chat", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	assert.Empty(t, env.fake.Prompts())
}

// =============================================================================
// STREAM
// =============================================================================

func TestStream_Frames(t *testing.T) {
	env := newTestEnv(t, llmtest.New("Hel", "Hello", "Hello!"), Options{})

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sse.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	assert.Equal(t, []session.Event{
		session.Content("Hel"),
		session.Content("Hello"),
		session.Content("Hello!"),
		session.Done("Hello!"),
	}, decodeEvents(t, rec.Body))
}

func TestStream_TerminalFrameTimestamp(t *testing.T) {
	env := newTestEnv(t, llmtest.New("Hi"), Options{})

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"hi"}`)
	dec := sse.NewDecoder(rec.Body)

	first, err := dec.Next()
	require.NoError(t, err)
	assert.Empty(t, first.Timestamp, "content frames carry no timestamp")

	last, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "done", last.Type)
	ts, err := last.Time()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestStream_Unavailable(t *testing.T) {
	fake := llmtest.New("never")
	fake.SetStatus(notReady)
	env := newTestEnv(t, fake, Options{})

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"hi"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, sse.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, []session.Event{session.Error(notReady.Summary())}, decodeEvents(t, rec.Body))
}

func TestStream_MidStreamFailure(t *testing.T) {
	fake := llmtest.New("partial")
	fake.Err = llm.NewSessionError("Generation failed", errors.New("connection reset"))
	env := newTestEnv(t, fake, Options{})

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := decodeEvents(t, rec.Body)
	require.Len(t, events, 2)
	assert.Equal(t, session.Content("partial"), events[0])
	assert.Equal(t, session.EventError, events[1].Type)
	assert.Contains(t, events[1].Content, "Generation failed")
}

func TestStream_Conversation(t *testing.T) {
	env := newTestEnv(t, llmtest.New("Hel", "Hello"), Options{})
	conv := env.store.Create()

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"hi","conversationId":"`+conv.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := decodeEvents(t, rec.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, session.Done("Hello"), events[len(events)-1])

	stored, err := env.store.Get(conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, model.RoleUser, stored.Messages[0].Role)
	assert.Equal(t, "hi", stored.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, stored.Messages[1].Role)
	assert.Equal(t, "Hello", stored.Messages[1].Content)
	assert.False(t, env.ctrl.IsLoading())
}

func TestStream_ConversationFailureRollsBack(t *testing.T) {
	fake := llmtest.New("half")
	fake.Err = llm.NewSessionError("Generation failed", errors.New("boom"))
	env := newTestEnv(t, fake, Options{})
	conv := env.store.Create()

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"hi","conversationId":"`+conv.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEvents(t, rec.Body)

	stored, err := env.store.Get(conv.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Messages, "the failed exchange is rolled back")
	assert.Equal(t, model.DefaultTitle, stored.Title)
}

func TestStream_ConversationNotFound(t *testing.T) {
	env := newTestEnv(t, llmtest.New("x"), Options{})

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"hi","conversationId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestStream_ConversationBusy(t *testing.T) {
	fake := llmtest.New("thinking")
	fake.Block = true
	env := newTestEnv(t, fake, Options{})
	conv := env.store.Create()
	require.NoError(t, env.ctrl.LoadConversation(conv.ID))

	ctx, cancel := context.WithCancel(context.Background())
	events, err := env.ctrl.SendMessage(ctx, "first")
	require.NoError(t, err)
	<-events // first content event: the exchange is streaming

	rec := env.do(http.MethodPost, "/api/stream", `{"message":"second","conversationId":"`+conv.ID+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodDelete, "/api/conversations/"+conv.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	cancel()
	for range events {
	}
	assert.Equal(t, []string{"first"}, fake.Prompts())
}

func TestStream_OtherConversationBusy(t *testing.T) {
	fake := llmtest.New("thinking")
	fake.Block = true
	env := newTestEnv(t, fake, Options{})
	streaming := env.store.Create()
	other := env.store.Create()
	require.NoError(t, env.ctrl.LoadConversation(streaming.ID))

	ctx, cancel := context.WithCancel(context.Background())
	events, err := env.ctrl.SendMessage(ctx, "first")
	require.NoError(t, err)
	<-events

	done := make(chan int, 4)
	for i := 0; i < cap(done); i++ {
		go func() {
			rec := env.do(http.MethodPost, "/api/stream", `{"message":"second","conversationId":"`+other.ID+`"}`)
			done <- rec.Code
		}()
	}
	for i := 0; i < cap(done); i++ {
		assert.Equal(t, http.StatusConflict, <-done)
	}

	assert.True(t, env.ctrl.IsLoading(), "the running stream is not cancelled")
	assert.Equal(t, streaming.ID, env.ctrl.CurrentConversationID())

	cancel()
	for range events {
	}
}

// ollamaRecorder is a minimal Ollama server that answers every chat with
// "ok" and records the messages it was sent.
type ollamaRecorder struct {
	mu       sync.Mutex
	requests [][]ollama.Message
}

func (o *ollamaRecorder) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Ollama is running")
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"models":[{"name":"llama3.2:latest"}]}`)
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		o.mu.Lock()
		o.requests = append(o.requests, req.Messages)
		o.mu.Unlock()
		if !req.Stream {
			io.WriteString(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`+"\n")
			return
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"ok"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	})
	return mux
}

func (o *ollamaRecorder) last() []ollama.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[len(o.requests)-1]
}

func TestAnonymousRequestsDoNotShareHistory(t *testing.T) {
	rec := &ollamaRecorder{}
	backend := httptest.NewServer(rec.handler())
	t.Cleanup(backend.Close)

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: backend.URL, Timeout: 5 * time.Second})
	m := ollama.NewModel(client, "llama3.2", "", nil)
	store := storage.NewConversationStore(storage.NewMemoryStore(), nil)
	srv := New(m, chat.New(store, m, nil), store, nil, Options{})
	t.Cleanup(srv.baseCancel)
	env := &testEnv{srv: srv, store: store}

	resp := env.do(http.MethodPost, "/api/stream", `{"message":"client A secret"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	decodeEvents(t, resp.Body)

	resp = env.do(http.MethodPost, "/api/stream", `{"message":"client B hello"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	decodeEvents(t, resp.Body)
	assert.Equal(t, []ollama.Message{{Role: "user", Content: "client B hello"}}, rec.last())

	resp = env.do(http.MethodPost, "/api/chat", `{"message":"client C"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []ollama.Message{{Role: "user", Content: "client C"}}, rec.last())

	// Conversation-bound streams keep their context.
	conv := store.Create()
	for _, msg := range []string{"one", "two"} {
		resp = env.do(http.MethodPost, "/api/stream", `{"message":"`+msg+`","conversationId":"`+conv.ID+`"}`)
		require.Equal(t, http.StatusOK, resp.Code)
		decodeEvents(t, resp.Body)
	}
	assert.Equal(t, []ollama.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "two"},
	}, rec.last())
}

// =============================================================================
// STATUS
// =============================================================================

func TestStatus(t *testing.T) {
	fake := llmtest.New()
	env := newTestEnv(t, fake, Options{})

	rec := env.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "fake", body["model"])
	_, hasReason := body["reason"]
	assert.False(t, hasReason, "reason is omitted while available")

	fake.SetStatus(notReady)
	rec = env.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Available)
	assert.Equal(t, notReady.Reason(), resp.Reason)
	assert.Equal(t, notReady.Message, resp.Message)
	assert.Equal(t, notReady.Remediation, resp.Remediation)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversations_CRUD(t *testing.T) {
	env := newTestEnv(t, llmtest.New("x"), Options{})

	rec := env.do(http.MethodPost, "/api/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Conversation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	rec = env.do(http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Conversations []storage.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, created.ID, list.Conversations[0].ID)

	rec = env.do(http.MethodGet, "/api/conversations/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodDelete, "/api/conversations/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/api/conversations/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/api/conversations/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, env.store.Len())
}

func TestConversations_Export(t *testing.T) {
	env := newTestEnv(t, llmtest.New("x"), Options{})

	conv := env.store.Create()
	rec := env.do(http.MethodGet, "/api/conversations/"+conv.ID+"/export", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.NoError(t, env.store.AddMessage(model.NewUserMessage("export this"), conv.ID))

	rec = env.do(http.MethodGet, "/api/conversations/"+conv.ID+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")
	assert.Contains(t, rec.Body.String(), "# export this")

	rec = env.do(http.MethodGet, "/api/conversations/"+conv.ID+"/export?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = env.do(http.MethodGet, "/api/conversations/"+conv.ID+"/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/conversations/missing/export", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// MISC ROUTES
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, llmtest.New(), Options{})

	rec := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebClient(t *testing.T) {
	env := newTestEnv(t, llmtest.New(), Options{})

	for _, path := range []string{"/", "/app.js", "/style.css"} {
		rec := env.do(http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}

	rec := env.do(http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "/app.js")
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, llmtest.New(), Options{})

	rec := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

// =============================================================================
// SHUTDOWN
// =============================================================================

func TestShutdownEndsStreams(t *testing.T) {
	fake := llmtest.New("partial")
	fake.Block = true
	env := newTestEnv(t, fake, Options{})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- env.srv.Serve(l) }()

	resp, err := http.Post("http://"+l.Addr().String()+"/api/stream", "application/json", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dec := sse.NewDecoder(resp.Body)
	ev, err := dec.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, session.Content("partial"), ev)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))
	require.NoError(t, <-served)

	// A cancelled stream ends without a terminal frame.
	_, err = dec.NextEvent()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, fake.Resets())
}
