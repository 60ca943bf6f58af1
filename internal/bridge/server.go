// Package bridge serves the local HTTP API used by the browser extension to
// read, save and use prompts of the running library.
package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/thebtf/promptlib/internal/bridge/sse"
	"github.com/thebtf/promptlib/internal/library"
	"github.com/thebtf/promptlib/pkg/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// TokenHeader carries the shared bridge token when one is configured.
const TokenHeader = "X-Promptlib-Token"

// extensionSchemes are origins only browser extensions can send.
var extensionSchemes = []string{"chrome-extension://", "moz-extension://", "safari-web-extension://"}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithAllowedOrigins limits cross-origin callers to origins. Without it only
// browser-extension origins are accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithToken requires every API request to carry token in the TokenHeader.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithSyncStatus reports the sync state in /health.
func WithSyncStatus(fn func() string) Option {
	return func(s *Server) { s.syncStatus = fn }
}

// Server is the extension bridge.
type Server struct {
	lib         *library.Library
	broadcaster *sse.Broadcaster
	router      chi.Router
	version     string
	syncStatus  func() string
	origins     []string
	token       string
	startTime   time.Time
	ready       atomic.Bool

	unsubscribe func()
	httpServer  *http.Server
}

// New creates a bridge over lib and starts relaying library events to SSE
// clients.
func New(lib *library.Library, opts ...Option) *Server {
	s := &Server{
		lib:         lib,
		broadcaster: sse.NewBroadcaster(),
		router:      chi.NewRouter(),
		version:     "dev",
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = lib.Subscribe(func(ev library.Event) {
		s.broadcaster.Broadcast(ev)
	})
	s.setupRoutes()
	s.ready.Store(true)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireReady)
		r.Use(s.requireToken)
		r.Get("/prompts", s.handleGetPrompts)
		r.Post("/prompts", s.handleSavePrompts)
		r.Post("/prompts/{id}/use", s.handleUsePrompt)
		r.Get("/sync", s.handleSync)
		r.Get("/events", s.broadcaster.HandleSSE)
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("Extension bridge listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.ready.Store(false)
	s.unsubscribe()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Bridge shutdown did not complete cleanly")
		return s.httpServer.Close()
	}
	log.Info().Msg("Extension bridge stopped")
	return nil
}

func (s *Server) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if !s.ready.Load() {
		status = "starting"
	}
	resp := map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"prompts": len(s.lib.Prompts()),
		"clients": s.broadcaster.ClientCount(),
	}
	if s.syncStatus != nil {
		resp["sync"] = s.syncStatus()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetPrompts returns the bare prompt array the extension stores.
func (s *Server) handleGetPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lib.Prompts())
}

type savePromptsRequest struct {
	Prompts []*models.Prompt `json:"prompts"`
	// AllowEmpty must be set to clear the library with an empty list.
	AllowEmpty bool `json:"allowEmpty"`
}

func (s *Server) handleSavePrompts(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}
	var req savePromptsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Prompts == nil {
		writeError(w, http.StatusBadRequest, "prompts is required")
		return
	}
	if len(req.Prompts) == 0 && !req.AllowEmpty {
		writeError(w, http.StatusBadRequest, "refusing to delete every prompt without allowEmpty")
		return
	}

	if err := s.lib.ApplyPrompts(r.Context(), req.Prompts); err != nil {
		writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(req.Prompts)})
}

func (s *Server) handleUsePrompt(w http.ResponseWriter, r *http.Request) {
	p, err := s.lib.IncrementUsage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request) {
	data, err := s.lib.ExportSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeLibraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, library.ErrValidation),
		errors.Is(err, library.ErrDuplicateID),
		errors.Is(err, library.ErrDuplicateModel):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// cors echoes allowed origins and rejects requests from any other origin.
// Requests without an Origin header come from local tools, not web pages.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.originAllowed(origin) {
				log.Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("Rejected bridge request")
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TokenHeader)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.origins) > 0 {
		return lo.Contains(s.origins, origin)
	}
	return lo.ContainsBy(extensionSchemes, func(scheme string) bool {
		return strings.HasPrefix(origin, scheme)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(TokenHeader)), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or wrong bridge token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("Bridge request")
	})
}
