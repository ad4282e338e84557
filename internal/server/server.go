// Package server exposes an authoritative store over HTTP: JSON routes for
// lists, sharing, invites and todos, a websocket change feed per list and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/idilsaglam/tada/internal/auth"
	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/feed/wsfeed"
	"github.com/idilsaglam/tada/internal/logging"
	"github.com/idilsaglam/tada/internal/metrics"
)

// Options configures New. Every field is optional.
type Options struct {
	Logger  *log.Logger
	Metrics metrics.Recorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// Server routes requests to store and streams feed.
type Server struct {
	store   backend.Store
	feed    *wsfeed.Handler
	logger  *log.Logger
	metrics metrics.Recorder
	router  *mux.Router
}

// New builds the router. Every route but /metrics requires a bearer token.
func New(store backend.Store, feed backend.Feed, opts Options) *Server {
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	logger := logging.OrDiscard(opts.Logger)
	s := &Server{
		store:   store,
		feed:    wsfeed.NewHandler(feed, logger),
		logger:  logger,
		metrics: rec,
		router:  mux.NewRouter(),
	}
	s.routes(opts.MetricsHandler)
	return s
}

// Handler is the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(metricsHandler http.Handler) {
	r := s.router
	r.Use(s.access)
	if metricsHandler != nil {
		r.Methods(http.MethodGet).Path("/metrics").Handler(metricsHandler)
	}

	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.Methods(http.MethodPut).Path("/me").HandlerFunc(s.putProfile)

	api.Methods(http.MethodGet).Path("/lists").HandlerFunc(s.getLists)
	api.Methods(http.MethodPost).Path("/lists").HandlerFunc(s.postList)
	api.Methods(http.MethodGet).Path("/lists/{list}").HandlerFunc(s.getList)
	api.Methods(http.MethodPatch).Path("/lists/{list}").HandlerFunc(s.patchList)
	api.Methods(http.MethodDelete).Path("/lists/{list}").HandlerFunc(s.deleteList)
	api.Methods(http.MethodGet).Path("/lists/{list}/members").HandlerFunc(s.getMembers)
	api.Methods(http.MethodGet).Path("/lists/{list}/shares").HandlerFunc(s.getShares)
	api.Methods(http.MethodPost).Path("/lists/{list}/shares").HandlerFunc(s.postShare)
	api.Methods(http.MethodDelete).Path("/shares/{share}").HandlerFunc(s.deleteShare)
	api.Methods(http.MethodPost).Path("/lists/{list}/invites").HandlerFunc(s.postInvite)
	api.Methods(http.MethodPost).Path("/invites/{token}/accept").HandlerFunc(s.acceptInvite)

	api.Methods(http.MethodGet).Path("/lists/{list}/todos").HandlerFunc(s.getTodos)
	api.Methods(http.MethodPost).Path("/lists/{list}/todos").HandlerFunc(s.postTodo)
	api.Methods(http.MethodDelete).Path("/lists/{list}/todos/completed").HandlerFunc(s.deleteCompleted)
	api.Methods(http.MethodPatch).Path("/todos/{todo}").HandlerFunc(s.patchTodo)
	api.Methods(http.MethodDelete).Path("/todos/{todo}").HandlerFunc(s.deleteTodo)

	api.Methods(http.MethodGet).Path("/lists/{list}/feed").HandlerFunc(s.getFeed)
}

// access logs and measures every request.
func (s *Server) access(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.Request(r.Method, route, m.Code, m.Duration)
		s.logger.Info("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.FromRequest(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token", Code: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), uid)))
	})
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		wg.Wait()
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	// Hijacked websocket connections are not closed by Shutdown.
	_ = httpServer.Close()
	wg.Wait()
	return err
}
