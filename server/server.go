// This package contains the HTTP API serving rounds, filters, guess scoring
// and buffer stats.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/reelguess/reelguess"
	"github.com/reelguess/reelguess/tmdb"
)

// Buffer is the slice of the prefetch buffer the API needs.
type Buffer interface {
	Next(ctx context.Context) (tmdb.Round, bool)
	Filters() tmdb.Filters
	SetFilters(filters tmdb.Filters)
	Stats() reelguess.Stats
	ResetStats()
}

var _ Buffer = (*reelguess.Buffer[tmdb.Round, tmdb.Filters])(nil)

type Option = func(*Server)

func WithListen(addr string) Option {
	if strings.TrimSpace(addr) == "" {
		panic("addr can't be blank")
	}
	return func(s *Server) {
		s.listen = addr
	}
}

func WithLogger(logger *zap.Logger) Option {
	if logger == nil {
		panic("logger can't be nil")
	}
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRetryAfter sets the Retry-After hint attached to 503 responses from the
// round endpoint.
func WithRetryAfter(d time.Duration) Option {
	if d < time.Second {
		panic("retryAfter can't be < 1s")
	}
	return func(s *Server) {
		s.retryAfter = d
	}
}

type Server struct {
	buffer     Buffer
	logger     *zap.Logger
	listen     string
	retryAfter time.Duration
	httpServer *http.Server
}

func New(buffer Buffer, options ...Option) *Server {
	if buffer == nil {
		panic("buffer can't be nil")
	}

	server := Server{
		buffer:     buffer,
		logger:     zap.NewNop(),
		listen:     ":8080",
		retryAfter: time.Second * 2,
	}
	for _, opt := range options {
		opt(&server)
	}

	server.httpServer = &http.Server{
		Addr:         server.listen,
		Handler:      server.routes(),
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 120,
	}

	return &server
}

// Handler returns the routed handler, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown. A clean shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})
}
