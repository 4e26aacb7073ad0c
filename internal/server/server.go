// Package server exposes a session over HTTP.
//
// Requests that run interpreter statements are serialized so that the
// output they produce can be returned with the response. An optional file
// watcher re-reads the model files whenever one of them changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/session"
)

// Config holds configuration for the server.
type Config struct {
	Session *session.Session
	Addr    string
	// Watch lists model files re-read, in order, after a reset whenever
	// one of them changes.
	Watch []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server serves one session.
type Server struct {
	sess     *session.Session
	addr     string
	watch    []string
	metrics  http.Handler
	logger   *slog.Logger
	notifier *Notifier

	// runMu serializes statement-running requests; capture collects the
	// interpreter output of the one in progress.
	runMu     sync.Mutex
	captureMu sync.Mutex
	capture   *[]outputLine
}

type outputLine struct {
	Kind    engine.OutputKind `json:"kind"`
	Message string            `json:"message"`
}

// New creates a server and installs its output handler on the session.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		sess:     cfg.Session,
		addr:     cfg.Addr,
		watch:    cfg.Watch,
		metrics:  cfg.Metrics,
		logger:   logger,
		notifier: NewNotifier(),
	}
	s.sess.SetOutputHandler(engine.OutputHandlerFunc(s.handleOutput))
	return s
}

// Notifier returns the notifier that reload events are broadcast on.
func (s *Server) Notifier() *Notifier { return s.notifier }

func (s *Server) handleOutput(kind engine.OutputKind, msg string) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.capture != nil {
		*s.capture = append(*s.capture, outputLine{Kind: kind, Message: msg})
		return
	}
	s.logger.Info("interpreter output", slog.String("kind", string(kind)), slog.String("message", msg))
}

// run calls fn with output capture enabled and returns what was produced.
func (s *Server) run(fn func() error) ([]outputLine, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	out := []outputLine{}
	s.captureMu.Lock()
	s.capture = &out
	s.captureMu.Unlock()

	err := fn()

	s.captureMu.Lock()
	s.capture = nil
	s.captureMu.Unlock()
	return out, err
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)
	s.routes(r)
	return r
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(s.watch) > 0 {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
