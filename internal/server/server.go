// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/modelexplorer/internal/chat"
	"github.com/jeranaias/modelexplorer/internal/export"
	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/observability"
	"github.com/jeranaias/modelexplorer/internal/session"
	"github.com/jeranaias/modelexplorer/internal/sse"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// statusProbeTimeout bounds the availability check behind each request.
	statusProbeTimeout = 5 * time.Second
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	Addr        string
	RateLimit   float64
	RateBurst   int
	CORSOrigins []string
}

// Server is the HTTP gateway: a JSON chat endpoint, an SSE stream endpoint,
// availability status, conversation management and a small web client.
type Server struct {
	model   llm.Model
	chat    *chat.Controller
	store   *storage.ConversationStore
	logger  observability.Logger
	limiter *RateLimiter
	cors    *CORSConfig

	router *http.ServeMux
	server *http.Server
	now    func() time.Time

	// baseCtx parents every request context so Shutdown can end streams.
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates a server. Requests without a conversation ID run on a fork of
// m with no history; conversation-bound streams go through ctrl so they are
// recorded and rolled back like the TUI.
func New(m llm.Model, ctrl *chat.Controller, store *storage.ConversationStore, logger observability.Logger, opts Options) *Server {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Server{
		model:   m,
		chat:    ctrl,
		store:   store,
		logger:  logger.WithComponent("server"),
		limiter: NewRateLimiter(opts.RateLimit, opts.RateBurst),
		cors:    NewCORSConfig(opts.CORSOrigins),
		router:  http.NewServeMux(),
		now:     time.Now,
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: streams last as long as the generation.
	}
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/stream", s.handleStream)
	s.router.HandleFunc("GET /api/status", s.handleStatus)

	s.router.HandleFunc("GET /api/conversations", s.handleListConversations)
	s.router.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	s.router.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	s.router.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	s.router.HandleFunc("GET /api/conversations/{id}/export", s.handleExportConversation)

	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.Handle("GET /", webHandler())
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		RateLimitMiddleware(s.limiter, s.logger),
	)(s.router)
}

// SetRateLimit changes the per-client rate limit of a running server.
func (s *Server) SetRateLimit(perSecond float64, burst int) {
	s.limiter.SetLimit(perSecond, burst)
	s.logger.Info("rate limit updated", "rate", perSecond, "burst", burst)
}

// ============================================================================
// API TYPES
// ============================================================================

// ChatRequest is the body of /api/chat and /api/stream.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatResponse is the reply of /api/chat.
type ChatResponse struct {
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the reply of /api/status.
type StatusResponse struct {
	Available   bool   `json:"available"`
	Message     string `json:"message"`
	Reason      string `json:"reason,omitempty"`
	Remediation string `json:"remediation,omitempty"`
	Model       string `json:"model"`
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	if status := s.probe(r.Context()); !status.IsAvailable() {
		s.writeJSON(w, http.StatusServiceUnavailable, ChatResponse{Response: status.Summary(), Timestamp: s.now()})
		return
	}

	text, err := s.model.Fork().Complete(r.Context(), req.Message)
	if err != nil {
		code := http.StatusInternalServerError
		if llm.IsUnavailable(err) {
			code = http.StatusServiceUnavailable
		}
		s.logger.WarnContext(r.Context(), "chat request failed", "error", err)
		s.writeJSON(w, code, ChatResponse{Response: err.Error(), Timestamp: s.now()})
		return
	}
	s.writeJSON(w, http.StatusOK, ChatResponse{Response: text, Timestamp: s.now()})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	sse.WriteHeaders(w.Header())
	enc := sse.NewEncoder(w)

	var status llm.AvailabilityStatus
	if req.ConversationID != "" {
		// The controller keeps its own view of availability; refresh it so a
		// recovered backend is not rejected with a stale status.
		ctx, cancel := context.WithTimeout(r.Context(), statusProbeTimeout)
		status = s.chat.RefreshAvailability(ctx)
		cancel()
	} else {
		status = s.probe(r.Context())
	}
	if !status.IsAvailable() {
		w.WriteHeader(http.StatusServiceUnavailable)
		enc.Encode(session.Error(status.Summary()))
		return
	}

	var events <-chan session.Event
	if req.ConversationID != "" {
		var err error
		events, err = s.chat.SendToConversation(r.Context(), req.ConversationID, req.Message)
		switch {
		case errors.Is(err, chat.ErrBusy):
			s.writeError(w, http.StatusConflict, "A response is already streaming")
			return
		case errors.Is(err, storage.ErrConversationNotFound):
			s.writeStoreError(w, err)
			return
		case err != nil:
			w.WriteHeader(http.StatusServiceUnavailable)
			enc.Encode(session.Error(err.Error()))
			return
		}
	} else {
		// Each anonymous request is its own session; clients never share
		// context.
		events = session.New(s.model.Fork(), s.logger).Run(r.Context(), req.Message)
	}

	w.WriteHeader(http.StatusOK)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// The client went away; r.Context() is cancelled, which stops
			// the session. Keep draining until it closes the channel.
			s.logger.DebugContext(r.Context(), "stream write failed", "error", err)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.probe(r.Context())
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Available:   status.IsAvailable(),
		Message:     status.Message,
		Reason:      status.Reason(),
		Remediation: status.Remediation,
		Model:       s.model.Name(),
	})
}

// decodeChatRequest reads and validates a chat body, writing the error
// response itself when it fails.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "Request body exceeds 1MB")
			return req, false
		}
		s.logger.DebugContext(r.Context(), "invalid request body", "error", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return req, false
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "Message is required")
		return req, false
	}
	return req, true
}

func (s *Server) probe(ctx context.Context) llm.AvailabilityStatus {
	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()
	return s.model.CheckAvailability(ctx)
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": s.store.Summaries(),
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv := s.store.Create()
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	err := s.chat.DeleteConversation(r.PathValue("id"))
	if errors.Is(err, chat.ErrBusy) {
		s.writeError(w, http.StatusConflict, "Conversation is streaming")
		return
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportConversation serves a conversation as a download in the format
// named by ?format= (markdown by default).
func (s *Server) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	exp, err := export.ForFormat(r.URL.Query().Get("format"), export.DefaultOptions())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conv, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	data, err := exp.Export(conv)
	if errors.Is(err, export.ErrEmptyConversation) {
		s.writeError(w, http.StatusUnprocessableEntity, "Conversation has no messages")
		return
	}
	if err != nil {
		s.logger.Warn("export failed", "conversation_id", conv.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	w.Header().Set("Content-Type", exp.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(conv, exp, s.now())))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("server started", "addr", l.Addr().String(), "model", s.model.Name())
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until
// Shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting connections, cancels in-flight streams so their
// partial responses are kept, and waits for handlers until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	s.baseCancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.server.Close()
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, message)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrConversationNotFound) {
		s.writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	s.writeError(w, http.StatusInternalServerError, "Request failed")
}

// writeError writes a JSON error body. Headers already set for an event
// stream are replaced.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Connection")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
