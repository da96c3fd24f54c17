package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/digkill/productshot/internal/archive"
	"github.com/digkill/productshot/internal/rules"
	"github.com/digkill/productshot/internal/service"
	"github.com/digkill/productshot/internal/session"
	"github.com/digkill/productshot/internal/shots"
)

const (
	SessionHeader = "X-Session-Token"

	defaultRunTTL    = 30 * time.Minute
	defaultMaxUpload = 10 << 20
)

type Options struct {
	Addr           string
	AccessPassword string
	MaxUploadBytes int64
	RunTTL         time.Duration
}

type Server struct {
	opts        Options
	log         *slog.Logger
	sessions    *session.Manager
	generations *service.GenerationService
	runs        *cache.Cache
	router      *chi.Mux
}

func NewServer(opts Options, log *slog.Logger, sessions *session.Manager, generations *service.GenerationService) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.RunTTL <= 0 {
		opts.RunTTL = defaultRunTTL
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		opts:        opts,
		log:         log,
		sessions:    sessions,
		generations: generations,
		runs:        cache.New(opts.RunTTL, opts.RunTTL),
		router:      r,
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/shot-types", s.handleShotTypes)
		r.Get("/exclusion-presets", s.handleExclusionPresets)
		r.Group(func(protected chi.Router) {
			protected.Use(s.sessionMiddleware)
			protected.Get("/quota", s.handleQuota)
			protected.Post("/preflight", s.handlePreflight)
			protected.Post("/generations", s.handleGenerate)
			protected.Get("/runs/{id}/archive", s.handleArchive)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		// A batch of several model calls can take minutes.
		WriteTimeout: 15 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

type sessionKey struct{}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(SessionHeader)
		sess, err := s.sessions.Get(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		s.sessions.Touch(token)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

type sessionResponse struct {
	Token         string        `json:"token"`
	UserID        string        `json:"user_id"`
	OwnCredential bool          `json:"own_credential"`
	Quota         quotaResponse `json:"quota"`
}

type quotaResponse struct {
	CanProceed bool `json:"can_proceed"`
	Remaining  int  `json:"remaining"`
	Unlimited  bool `json:"unlimited"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.opts.AccessPassword)) != 1 {
		s.log.Warn("session rejected: wrong access password", "ip", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized", "wrong access password")
		return
	}

	sess := s.sessions.Create(req.APIKey)
	s.log.Info("session created", "user", sess.UserID, "own_credential", sess.OwnCredential())
	writeJSON(w, http.StatusCreated, sessionResponse{
		Token:         sess.Token,
		UserID:        sess.UserID,
		OwnCredential: sess.OwnCredential(),
		Quota:         s.quotaFor(r.Context(), sess),
	})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.quotaFor(r.Context(), sessionFrom(r.Context())))
}

func (s *Server) quotaFor(ctx context.Context, sess *session.Session) quotaResponse {
	d := s.generations.Quota(ctx, sess.UserID, sess.OwnCredential())
	return quotaResponse{CanProceed: d.CanProceed, Remaining: d.Remaining, Unlimited: d.Unlimited}
}

func (s *Server) handleShotTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"shot_types":    shots.All(),
		"product_types": shots.ProductTypes,
		"sizes":         archive.SizePresets,
	})
}

func (s *Server) handleExclusionPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"presets":           s.generations.Rules().Presets(),
		"common_exclusions": rules.CommonExclusions(),
		"base_clauses":      rules.BaseClauses(),
		"strict_clauses":    rules.StrictClauses(),
	})
}

type preflightRequest struct {
	ProductName     string   `json:"product_name"`
	Material        string   `json:"material"`
	ProductType     string   `json:"product_type"`
	Preset          string   `json:"preset"`
	Exclusions      []string `json:"exclusions"`
	ExtraExclusions string   `json:"extra_exclusions"`
	Strict          *bool    `json:"strict"`
}

func (p preflightRequest) input() service.PreflightInput {
	strict := true
	if p.Strict != nil {
		strict = *p.Strict
	}
	return service.PreflightInput{
		ProductName:     p.ProductName,
		Material:        p.Material,
		ProductType:     p.ProductType,
		Preset:          p.Preset,
		Exclusions:      p.Exclusions,
		ExtraExclusions: p.ExtraExclusions,
		Strict:          strict,
	}
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	var req preflightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	p, err := s.generations.Preflight(req.input())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preflight": p,
		"blocked":   p.Blocked(),
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
	Hits      any    `json:"hits,omitempty"`
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var (
		blocked  *service.ContentBlockedError
		exceeded *service.QuotaExceededError
	)
	switch {
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: "content_blocked", Message: err.Error(), Hits: blocked.Hits,
		})
	case errors.As(err, &exceeded):
		remaining := exceeded.Remaining
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: "quota_exceeded", Message: err.Error(), Remaining: &remaining,
		})
	case errors.Is(err, service.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress", err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.log.Error("api handler error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
