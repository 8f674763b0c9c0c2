// Package server exposes the answer engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corpwise/corpwise/internal/auth"
	"github.com/corpwise/corpwise/internal/repository"
	"github.com/corpwise/corpwise/internal/service"
)

// HTTPServer serves the chat, feedback, and tenant admin endpoints.
type HTTPServer struct {
	server *http.Server
	router *chi.Mux
	logger *slog.Logger

	chat     *service.ChatService
	feedback *service.FeedbackService
	tenants  *service.TenantService
	ready    func(ctx context.Context) error
}

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string

	Auth     *auth.Middleware
	Chat     *service.ChatService
	Feedback *service.FeedbackService
	Tenants  *service.TenantService

	// Ready reports backing-store readiness for /readyz. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

// NewHTTPServer builds the router and wires all routes.
func NewHTTPServer(cfg HTTPServerConfig) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &HTTPServer{
		logger:   logger,
		chat:     cfg.Chat,
		feedback: cfg.Feedback,
		tenants:  cfg.Tenants,
		ready:    cfg.Ready,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)

	router.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.RequireTenant)
			r.Post("/chat", s.handleChat)
			r.Post("/feedback", s.handleFeedback)
		})

		r.Route("/admin/tenants", func(r chi.Router) {
			r.Use(cfg.Auth.RequireAdmin)
			r.Post("/", s.handleCreateTenant)
			r.Get("/", s.handleListTenants)
			r.Get("/{slug}", s.handleGetTenant)
			r.Patch("/{slug}", s.handleUpdateTenant)
			r.Delete("/{slug}", s.handleDeleteTenant)
		})
	})

	s.router = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying chi router, used by tests.
func (s *HTTPServer) Router() *chi.Mux {
	return s.router
}

type chatRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantInfo, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant context not found")
		return
	}

	answer := s.chat.ProcessChat(r.Context(), service.ChatRequest{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		TenantID:       tenantInfo.Slug,
		Question:       req.Question,
	})
	writeJSON(w, http.StatusOK, answer)
}

type feedbackRequest struct {
	ConversationID string `json:"conversation_id"`
	Helpful        bool   `json:"helpful"`
	Comment        string `json:"comment,omitempty"`
}

func (s *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.feedback.Submit(r.Context(), service.FeedbackRequest{
		ConversationID: req.ConversationID,
		Helpful:        req.Helpful,
		Comment:        req.Comment,
	})
	if err != nil {
		if errors.Is(err, service.ErrNoExchange) {
			writeError(w, http.StatusConflict, "conversation has no answered exchange")
			return
		}
		s.logger.Error("feedback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "feedback could not be recorded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type createTenantRequest struct {
	Slug   string                   `json:"slug"`
	Name   string                   `json:"name"`
	Tier   string                   `json:"tier"`
	Config *repository.TenantConfig `json:"config,omitempty"`
}

type tenantResponse struct {
	ID        string                  `json:"id"`
	Slug      string                  `json:"slug"`
	Name      string                  `json:"name"`
	Tier      string                  `json:"tier"`
	APIKey    string                  `json:"api_key,omitempty"`
	Config    repository.TenantConfig `json:"config"`
	CreatedAt time.Time               `json:"created_at"`
}

func (s *HTTPServer) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.tenants.Create(r.Context(), service.CreateTenantRequest{
		Slug:   req.Slug,
		Name:   req.Name,
		Tier:   req.Tier,
		Config: req.Config,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidTenant) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("tenant creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "tenant could not be created")
		return
	}
	writeJSON(w, http.StatusCreated, toTenantResponse(t, true))
}

func (s *HTTPServer) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.tenants.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.logger.Error("tenant lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "tenant lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(t, false))
}

func (s *HTTPServer) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, total, err := s.tenants.List(r.Context(), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		s.logger.Error("tenant list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "tenant list failed")
		return
	}

	out := make([]tenantResponse, len(tenants))
	for i, t := range tenants {
		out[i] = toTenantResponse(t, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": out, "total": total})
}

func (s *HTTPServer) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var patch repository.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.tenants.UpdateConfig(r.Context(), chi.URLParam(r, "slug"), patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.logger.Error("tenant update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "tenant update failed")
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(t, false))
}

func (s *HTTPServer) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.tenants.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.logger.Error("tenant deletion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "tenant deletion failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func toTenantResponse(t *repository.Tenant, includeKey bool) tenantResponse {
	resp := tenantResponse{
		ID:        t.ID.String(),
		Slug:      t.Slug,
		Name:      t.Name,
		Tier:      t.Tier,
		Config:    t.Config,
		CreatedAt: t.CreatedAt,
	}
	if includeKey {
		resp.APIKey = t.APIKey
	}
	return resp
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-API-Key")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
