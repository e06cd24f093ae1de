// Package api exposes the agent over HTTP: inbox seeding, the annotation
// pipeline, chat, drafts, and prompt management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"inboxagent/internal/agent"
	"inboxagent/internal/domain"
	"inboxagent/internal/metrics"
	"inboxagent/internal/store"
)

const maxBodySize = 1 << 20 // 1MB

type annotationRunner interface {
	Run(ctx context.Context, scope agent.Scope) (agent.Summary, error)
}

type chatResponder interface {
	Respond(ctx context.Context, email *domain.Email, query, history string) string
}

type draftGenerator interface {
	Generate(ctx context.Context, email *domain.Email) (*domain.Draft, error)
}

type promptStore interface {
	All() domain.PromptSet
	Update(ctx context.Context, updates map[string]string) (domain.PromptSet, error)
	Reset(ctx context.Context) (domain.PromptSet, error)
}

// Server wires the HTTP routes to the engine components.
type Server struct {
	emails    domain.EmailStore
	drafts    domain.DraftStore
	prompts   promptStore
	annotator annotationRunner
	chat      chatResponder
	drafter   draftGenerator
	mock      domain.EmailSource
	live      domain.EmailSource // nil when IMAP is not configured
	seedLimit int
	metricsAt string // endpoint path, "" disables the exposition route
	logger    *slog.Logger

	srv *http.Server
}

type ServerConfig struct {
	Emails    domain.EmailStore
	Drafts    domain.DraftStore
	Prompts   promptStore
	Annotator annotationRunner
	Chat      chatResponder
	Drafter   draftGenerator
	Mock      domain.EmailSource
	Live      domain.EmailSource
	SeedLimit int
	MetricsAt string
	Logger    *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.SeedLimit <= 0 {
		cfg.SeedLimit = 20
	}
	return &Server{
		emails:    cfg.Emails,
		drafts:    cfg.Drafts,
		prompts:   cfg.Prompts,
		annotator: cfg.Annotator,
		chat:      cfg.Chat,
		drafter:   cfg.Drafter,
		mock:      cfg.Mock,
		live:      cfg.Live,
		seedLimit: cfg.SeedLimit,
		metricsAt: cfg.MetricsAt,
		logger:    cfg.Logger,
	}
}

// Handler returns the route table. Exposed separately so tests can drive it
// with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/emails", s.handleListEmails)
	mux.HandleFunc("POST /api/emails/load-mock", s.handleLoadMock)
	mux.HandleFunc("POST /api/emails/fetch", s.handleFetch)
	mux.HandleFunc("POST /api/emails/process", s.handleProcess)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/drafts/generate", s.handleGenerateDraft)
	mux.HandleFunc("GET /api/drafts", s.handleListDrafts)
	mux.HandleFunc("DELETE /api/drafts/{id}", s.handleDeleteDraft)
	mux.HandleFunc("GET /api/prompts", s.handleGetPrompts)
	mux.HandleFunc("PUT /api/prompts", s.handleUpdatePrompts)
	mux.HandleFunc("POST /api/prompts/reset", s.handleResetPrompts)
	if s.metricsAt != "" {
		mux.HandleFunc("GET "+s.metricsAt, metrics.Collector.Handler())
	}

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      150 * time.Second, // pipeline runs can take a while
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("api server started", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "inboxagent",
		"mockMode": s.live == nil,
	})
}

func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := s.emails.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if emails == nil {
		emails = []domain.Email{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": emails, "count": len(emails)})
}

func (s *Server) handleLoadMock(w http.ResponseWriter, r *http.Request) {
	s.seed(w, r, s.mock)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "Mail credentials not configured. Set up the imap source or use mock data.",
		})
		return
	}
	s.seed(w, r, s.live)
}

func (s *Server) seed(w http.ResponseWriter, r *http.Request, src domain.EmailSource) {
	emails, err := src.Fetch(r.Context(), s.seedLimit)
	if err != nil {
		s.writeError(w, fmt.Errorf("fetch from %s: %w", src.Name(), err))
		return
	}
	if err := s.emails.UpsertAll(r.Context(), emails); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("inbox seeded", "source", src.Name(), "count", len(emails))
	writeJSON(w, http.StatusOK, map[string]any{
		"source": src.Name(),
		"count":  len(emails),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	scope := agent.ScopeAll
	switch r.URL.Query().Get("scope") {
	case "", "all":
	case "unannotated":
		scope = agent.ScopeUnannotated
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "scope must be all or unannotated"})
		return
	}

	summary, err := s.annotator.Run(r.Context(), scope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailID string `json:"emailId"`
		Query   string `json:"query"`
		History string `json:"history"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.EmailID == "" || strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "emailId and query are required"})
		return
	}

	email, err := s.emails.Get(r.Context(), req.EmailID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	answer := s.chat.Respond(r.Context(), email, req.Query, req.History)
	writeJSON(w, http.StatusOK, map[string]any{"response": answer})
}

func (s *Server) handleGenerateDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailID string `json:"emailId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.EmailID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "emailId is required"})
		return
	}

	email, err := s.emails.Get(r.Context(), req.EmailID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	draft, err := s.drafter.Generate(r.Context(), email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.drafts.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if drafts == nil {
		drafts = []domain.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts, "count": len(drafts)})
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.drafts.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleGetPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": s.prompts.All()})
}

func (s *Server) handleUpdatePrompts(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if !s.decode(w, r, &updates) {
		return
	}
	if len(updates) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "prompt data is required"})
		return
	}

	set, err := s.prompts.Update(r.Context(), updates)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": set})
}

func (s *Server) handleResetPrompts(w http.ResponseWriter, r *http.Request) {
	set, err := s.prompts.Reset(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": set})
}

// --- Plumbing ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad request"})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON"})
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses. Unavailable gateways
// surface as "not configured" guidance rather than a bare 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	default:
		switch domain.GatewayErrKind(err) {
		case domain.ErrKindUnavailable:
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": "Model provider not configured or unreachable. Check your API credentials.",
			})
		case domain.ErrKindTimeout:
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{"error": "Model call timed out. Try again."})
		case domain.ErrKindUpstream:
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		default:
			s.logger.Error("request failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
