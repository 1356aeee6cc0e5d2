package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
)

//go:embed templates/*
var templateFS embed.FS

const (
	// DefaultAddr is the default listen address
	DefaultAddr = "localhost:8080"

	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 30 * time.Second
	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 30 * time.Second

	// MaxUploadSize bounds the multipart body of an analysis request
	MaxUploadSize = 32 << 20

	// MaxJSONBodySize bounds JSON request bodies
	MaxJSONBodySize = 64 << 10
)

// Server exposes the session controller over HTTP
type Server struct {
	addr      string
	ctrl      *session.Controller
	templates *template.Template
	handler   http.Handler
	mounts    map[string]http.Handler
}

// Option is a functional option for Server
type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithMount serves h under pattern next to the built-in routes, e.g. "/mcp"
func WithMount(pattern string, h http.Handler) Option {
	return func(s *Server) {
		s.mounts[pattern] = h
	}
}

// New creates a server. It fails only when the embedded templates cannot be parsed.
func New(ctrl *session.Controller, opts ...Option) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse templates")
	}

	s := &Server{
		addr:      DefaultAddr,
		ctrl:      ctrl,
		templates: tmpl,
		mounts:    map[string]http.Handler{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = withRequestLogger(mux)

	return s, nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)

	mux.HandleFunc("GET /api/history", s.handleListHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("GET /api/history/{id}", s.handleGetHistory)
	mux.HandleFunc("GET /api/history/{id}/share", s.handleShareHistory)

	mux.HandleFunc("GET /api/display", s.handleGetDisplay)
	mux.HandleFunc("PUT /api/display/{id}", s.handleViewHistory)
	mux.HandleFunc("DELETE /api/display", s.handleResetDisplay)

	mux.HandleFunc("GET /api/view", s.handleDecodeView)
	mux.HandleFunc("POST /api/credential", s.handleSetCredential)

	for pattern, h := range s.mounts {
		mux.Handle(pattern, h)
	}
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	logger := logging.From(ctx)

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return logging.With(context.Background(), logger)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "server shutdown failed")
		}
		logger.Info("server stopped")
		return nil

	case err := <-errCh:
		return goerr.Wrap(err, "server error", goerr.V("addr", s.addr))
	}
}

func withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.From(r.Context()).With("method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logging.With(r.Context(), logger)))
	})
}
