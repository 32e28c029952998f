// Package server exposes the conversation engine over HTTP: a JSON chat
// endpoint for request/response clients, a websocket endpoint for
// token-streamed replies, and a health probe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/internal/conversation"
)

// Server is the HTTP front of the core.
type Server struct {
	engine *conversation.Engine
	cfg    config.ServerConfig
	sec    config.SecurityConfig
	http   *http.Server
	log    zerolog.Logger
}

// New creates a server around the engine.
func New(engine *conversation.Engine, cfg config.ServerConfig, sec config.SecurityConfig) *Server {
	s := &Server{
		engine: engine,
		cfg:    cfg,
		sec:    sec,
		log:    log.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /ws/chat", s.handleWS)

	limiter := newIPLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	handler := securityHeaders(rateLimit(limiter, requireAuth(sec, mux)))

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: websocket streams and slow LLM generations
		// outlive any fixed deadline; per-request contexts bound them.
	}
	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Str("mode", s.sec.Mode).Msg("listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (cr *chatRequest) validate() error {
	if cr.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if cr.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if cr.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.engine.Chat(r.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		if r.Context().Err() != nil {
			return // client went away
		}
		s.log.Error().Err(err).Msg("chat failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("response write failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
