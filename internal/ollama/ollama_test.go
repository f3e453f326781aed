// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modelexplorer/internal/llm"
)

// =============================================================================
// TEST SERVER
// =============================================================================

type fakeOllama struct {
	mu       sync.Mutex
	models   []string
	lines    []string
	status   int
	requests []ChatRequest
	hold     chan struct{}
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ollama is running")
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var resp ListModelsResponse
		for _, m := range f.models {
			resp.Models = append(resp.Models, ModelInfo{Name: m})
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.requests = append(f.requests, req)
		lines, status, hold := f.lines, f.status, f.hold
		f.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"model 'missing' not found"}`)
			return
		}
		if !req.Stream {
			fmt.Fprint(w, `{"model":"m","message":{"role":"assistant","content":"whole reply"},"done":true}`)
			return
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
			}
		}
	})
	return mux
}

func (f *fakeOllama) lastRequest() ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestModel(t *testing.T, f *fakeOllama) *Model {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	return NewModel(client, "llama3.2", "be brief", nil)
}

func deltaLine(s string) string {
	b, _ := json.Marshal(ChatResponse{Message: Message{Role: "assistant", Content: s}})
	return string(b)
}

const doneLine = `{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true,"eval_count":3,"done_reason":"stop"}`

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReaderAccumulates(t *testing.T) {
	body := strings.Join([]string{
		deltaLine("Hel"),
		"",
		"not json",
		deltaLine("lo"),
		doneLine,
	}, "\n")

	r := NewStreamReader(strings.NewReader(body))
	var deltas []string
	err := r.Process(context.Background(), func(c StreamChunk) {
		deltas = append(deltas, c.Content)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo", ""}, deltas)
	assert.Equal(t, "Hello", r.Accumulated())
	assert.Equal(t, 2, r.TokenCount())
	assert.Equal(t, "llama3.2", r.Model())
}

func TestStreamReaderMidStreamError(t *testing.T) {
	body := deltaLine("par") + "\n" + `{"error":"out of memory"}` + "\n"
	r := NewStreamReader(strings.NewReader(body))

	_, err := r.Next(context.Background())
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestModelStreamSnapshots(t *testing.T) {
	f := &fakeOllama{
		models: []string{"llama3.2:latest"},
		lines:  []string{deltaLine("A"), deltaLine("B"), deltaLine("C"), doneLine},
	}
	m := newTestModel(t, f)

	var snaps []string
	snapCh, errCh := m.Stream(context.Background(), "hi")
	for s := range snapCh {
		snaps = append(snaps, s)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"A", "AB", "ABC"}, snaps)

	req := f.lastRequest()
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[1].Content)

	// The completed exchange is sent as context with the next prompt.
	_, err := llm.Collect(m.Stream(context.Background(), "again"))
	require.NoError(t, err)
	assert.Len(t, f.lastRequest().Messages, 4)

	m.Reset()
	got, err := m.Complete(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "whole reply", got)
	assert.Len(t, f.lastRequest().Messages, 2)
}

func TestModelStreamModelMissing(t *testing.T) {
	f := &fakeOllama{status: http.StatusNotFound}
	m := newTestModel(t, f)

	snapCh, errCh := m.Stream(context.Background(), "hi")
	for range snapCh {
		t.Fatal("no snapshots expected")
	}
	err := <-errCh
	assert.True(t, llm.IsUnavailable(err), "got %v", err)
}

func TestModelStreamServerError(t *testing.T) {
	f := &fakeOllama{status: http.StatusInternalServerError}
	m := newTestModel(t, f)

	_, errCh := m.Stream(context.Background(), "hi")
	err := <-errCh
	assert.True(t, llm.IsSessionFailure(err), "got %v", err)
}

func TestModelStreamCancel(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	f := &fakeOllama{lines: []string{deltaLine("partial")}, hold: hold}
	m := newTestModel(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	snapCh, errCh := m.Stream(ctx, "hi")

	first := <-snapCh
	assert.Equal(t, "partial", first)
	cancel()

	for range snapCh {
	}
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, m.history.Len(), "cancelled exchange must not enter history")
}

func TestModelForkHasOwnHistory(t *testing.T) {
	f := &fakeOllama{lines: []string{deltaLine("ok"), doneLine}}
	m := newTestModel(t, f)

	_, err := llm.Collect(m.Stream(context.Background(), "client A secret"))
	require.NoError(t, err)

	fork := m.Fork()
	_, err = llm.Collect(fork.Stream(context.Background(), "client B hello"))
	require.NoError(t, err)

	msgs := f.lastRequest().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "be brief", msgs[0].Content, "the fork keeps the system prompt")
	assert.Equal(t, "client B hello", msgs[1].Content)
	assert.Equal(t, 2, m.history.Len())
}

func TestModelAvailability(t *testing.T) {
	f := &fakeOllama{models: []string{"llama3.2:latest"}}
	m := newTestModel(t, f)
	status := m.CheckAvailability(context.Background())
	assert.True(t, status.IsAvailable(), status.Summary())

	f.mu.Lock()
	f.models = []string{"mistral:7b"}
	f.mu.Unlock()
	status = m.CheckAvailability(context.Background())
	assert.Equal(t, llm.NotReady, status.Kind)
	assert.Contains(t, status.Remediation, "ollama pull llama3.2")

	dead := NewModel(NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}), "x", "", nil)
	status = dead.CheckAvailability(context.Background())
	assert.Equal(t, llm.UnsupportedEnvironment, status.Kind)
	assert.True(t, status.Remediable)
}

func TestNormalizeModelName(t *testing.T) {
	tests := map[string]string{
		"llama3.2":     "llama3.2:latest",
		"qwen2.5:7b":   "qwen2.5:7b",
		"model:latest": "model:latest",
	}
	for in, want := range tests {
		if got := normalizeModelName(in); got != want {
			t.Errorf("normalizeModelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("ctx: %w", &ClientError{Type: ErrTypeNotRunning, Message: "x"})
	if !IsNotRunning(wrapped) {
		t.Error("IsNotRunning(wrapped) = false")
	}
	if IsTimeout(wrapped) {
		t.Error("IsTimeout(wrapped) = true")
	}
	if !IsModelNotFound(ErrModelNotFound) {
		t.Error("IsModelNotFound(ErrModelNotFound) = false")
	}
}

func TestTokensPerSecond(t *testing.T) {
	r := &ChatResponse{EvalCount: 100, EvalDuration: int64(2 * time.Second)}
	if got := r.TokensPerSecond(); got != 50 {
		t.Errorf("TokensPerSecond() = %v, want 50", got)
	}
	if got := (&ChatResponse{}).TokensPerSecond(); got != 0 {
		t.Errorf("TokensPerSecond() with zero duration = %v, want 0", got)
	}
}
