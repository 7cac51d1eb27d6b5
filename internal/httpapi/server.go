// Package httpapi is the HTTP boundary: the tracked-link redirect, the
// cron trigger for scheduling cycles, and health endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/nudge/internal/engage"
	"github.com/steveyegge/nudge/internal/scheduler"
	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/types"
)

// Server serves the redirect, cron, and health endpoints.
type Server struct {
	engage    *engage.Tracker
	scheduler *scheduler.Scheduler

	addr      string
	cronToken string
	// cronOnly restricts /cron/cycle to requests carrying the App
	// Engine cron header, on top of the bearer token check.
	cronOnly bool

	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex
}

// Config holds the server's listen and auth settings.
type Config struct {
	Addr      string
	CronToken string
	CronOnly  bool
}

func NewServer(tracker *engage.Tracker, sched *scheduler.Scheduler, cfg Config) *Server {
	return &Server{
		engage:    tracker,
		scheduler: sched,
		addr:      cfg.Addr,
		cronToken: cfg.CronToken,
		cronOnly:  cfg.CronOnly,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /redirect/{todoID}/{token}", s.handleRedirect)
	mux.HandleFunc("POST /respond/{token}", s.handleRespond)
	mux.HandleFunc("POST /cron/cycle", s.handleCronCycle)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // cron cycles are slow
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("httpapi: listening on %s", listener.Addr())
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// handleRedirect resolves a tracked link and forwards to the provider.
// Unknown pairs are a plain 404: the response must not reveal whether
// the todo exists.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	todoID := r.PathValue("todoID")
	token := r.PathValue("token")

	url, err := s.engage.ResolveRedirect(r.Context(), todoID, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Printf("httpapi: redirect todo=%s failed: %v", todoID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// handleRespond records a prospect prompt answer. The prompt message's
// token authenticates the reply; like redirects, unknown tokens are a
// plain 404.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var req struct {
		Level int    `json:"level"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Level < 1 || req.Level > types.StatusLevelCount {
		http.Error(w, "invalid level", http.StatusBadRequest)
		return
	}

	err := s.engage.RecordProspectReply(r.Context(), token, req.Level, req.Text)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	case err != nil:
		log.Printf("httpapi: respond failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleCronCycle runs one scheduling cycle. Authorized by the cron
// bearer token, or by the App Engine cron header which only the
// platform's cron service can set.
func (s *Server) handleCronCycle(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeCron(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	summary, err := s.scheduler.RunCycle(r.Context())
	if err != nil {
		log.Printf("httpapi: cycle failed: %v", err)
		http.Error(w, "cycle failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		log.Printf("httpapi: encode cycle summary: %v", err)
	}
}

func (s *Server) authorizeCron(r *http.Request) bool {
	fromCron := r.Header.Get("X-Appengine-Cron") == "true"
	if s.cronOnly && !fromCron {
		return false
	}
	if fromCron {
		return true
	}
	if s.cronToken == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == s.cronToken
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
