package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/productshot/internal/models"
	"github.com/digkill/productshot/internal/quota"
)

// Usage is the privileged part of the quota tracker.
type Usage interface {
	Stats(ctx context.Context) (quota.Stats, error)
	ClearToday(ctx context.Context) error
	Prune(ctx context.Context) (int, error)
}

type History interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.GenerationLog, error)
}

type Notifier interface {
	Broadcast(text string) (sent, total int)
}

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	usage    Usage
	history  History
	notifier Notifier
	router   *chi.Mux
}

// NewServer builds the operator API. history and notifier may be nil when
// MySQL or Telegram are not configured.
func NewServer(addr, username, password string, log *slog.Logger, usage Usage, history History, notifier Notifier) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		usage:    usage,
		history:  history,
		notifier: notifier,
		router:   r,
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.basicAuthMiddleware())
		r.Get("/stats", s.handleStats)
		r.Delete("/usage/today", s.handleClearToday)
		r.Post("/usage/prune", s.handlePrune)
		r.Get("/users/{id}/generations", s.handleUserGenerations)
		r.Post("/broadcast", s.handleBroadcast)
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type statsResponse struct {
	quota.Stats
	// Degraded is set when the ledger could not be read and the figures are empty.
	Degraded bool `json:"degraded,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.usage.Stats(r.Context())
	if err != nil && !quota.IsPersistence(err) {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Stats: stats, Degraded: err != nil})
}

func (s *Server) handleClearToday(w http.ResponseWriter, r *http.Request) {
	if err := s.usage.ClearToday(r.Context()); err != nil {
		s.internalError(w, err)
		return
	}
	s.log.Info("today's usage cleared by operator", "ip", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	removed, err := s.usage.Prune(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"days_removed": removed})
}

func (s *Server) handleUserGenerations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "not_configured", "generation history requires MySQL")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
			return
		}
		limit = n
	}
	logs, err := s.history.ListByUser(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if logs == nil {
		logs = []models.GenerationLog{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type broadcastRequest struct {
	Message string `json:"message"`
}

// handleBroadcast posts a message to the operator chats.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		s.writeError(w, http.StatusNotFound, "not_configured", "telegram is not configured")
		return
	}
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "message required")
		return
	}
	sent, total := s.notifier.Broadcast(req.Message)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  sent,
		"total": total,
	})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="productshot"`)
				s.writeError(w, http.StatusUnauthorized, "unauthorized", "admin credentials required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError uses the same {"error","message"} body as the public API.
func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal", "internal error")
}
