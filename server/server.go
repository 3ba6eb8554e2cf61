// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shibayu36/salesagent/agent"
	"github.com/shibayu36/salesagent/memory"
	"github.com/shibayu36/salesagent/metrics"
)

const (
	maxRequestBytes    = 64 << 10
	defaultListLimit   = 20
	shutdownTimeout    = 30 * time.Second
	internalErrMessage = "Sorry, something went wrong while answering. Please try again."
)

// Responder answers a single user turn.
type Responder interface {
	Respond(ctx context.Context, sessionID, message string) (*agent.Reply, error)
}

// Config configures a Server.
type Config struct {
	Agent        Responder
	Memory       *memory.Manager // optional
	Dataset      string
	Model        string
	ArtifactsDir string

	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server serves the chat API and generated artifacts.
type Server struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, log: cfg.Logger}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the response of POST /api/chat.
type ChatResponse struct {
	SessionID string       `json:"session_id,omitempty"`
	Reply     *agent.Reply `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/chat", s.chat)
	r.Get("/api/sessions", s.listSessions)
	r.Get("/api/sessions/{id}/messages", s.sessionMessages)
	r.Get("/artifacts/{name}", s.artifact)

	return r
}

// Run serves Handler on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	sessionID := req.SessionID
	if s.cfg.Memory != nil {
		if sessionID == "" {
			session, err := s.cfg.Memory.StartSession(s.cfg.Dataset, s.cfg.Model)
			if err != nil {
				s.log.Error("server: failed to start session", "error", err)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalErrMessage})
				return
			}
			sessionID = session.ID
		} else if _, err := s.cfg.Memory.RestoreSession(sessionID); err != nil {
			if errors.Is(err, memory.ErrSessionNotFound) {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
				return
			}
			s.log.Error("server: failed to restore session", "session", sessionID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalErrMessage})
			return
		}
	}

	reply, err := s.cfg.Agent.Respond(r.Context(), sessionID, req.Message)
	if err != nil {
		s.log.Error("server: failed to respond", "session", sessionID, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalErrMessage})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{SessionID: sessionID, Reply: reply})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Memory == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session memory is disabled"})
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	sessions, err := s.cfg.Memory.ListSessions(s.cfg.Dataset, limit)
	if err != nil {
		s.log.Error("server: failed to list sessions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalErrMessage})
		return
	}
	if sessions == nil {
		sessions = []*memory.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) sessionMessages(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Memory == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session memory is disabled"})
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.cfg.Memory.RestoreSession(id); err != nil {
		if errors.Is(err, memory.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
			return
		}
		s.log.Error("server: failed to restore session", "session", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalErrMessage})
		return
	}

	messages, err := s.cfg.Memory.GetSessionMessages(id)
	if err != nil {
		s.log.Error("server: failed to get messages", "session", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalErrMessage})
		return
	}

	// ツールの入出力は返さない
	visible := []*memory.Message{}
	for _, msg := range messages {
		if msg.Role == "tool" || msg.ToolCalls != nil {
			continue
		}
		visible = append(visible, msg)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": visible})
}

func (s *Server) artifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.cfg.ArtifactsDir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// ArtifactURL returns the URL under which the artifact at path is served.
func ArtifactURL(path string) string {
	return "/artifacts/" + filepath.Base(path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
