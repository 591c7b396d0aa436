// Package controld implements the drone control daemon: a single
// process owning the drone session and exposing it over HTTP. All
// clients go through this daemon; the drone itself accepts only one
// controlling socket, so the daemon is the serialization point.
package controld

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tellolink/tellolink/internal/drone"
	"github.com/tellolink/tellolink/internal/pkg/metrics"
	"github.com/tellolink/tellolink/pkg/log"
	"github.com/tellolink/tellolink/pkg/options"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after
// a termination signal.
const shutdownGrace = 5 * time.Second

// Server is the control daemon.
type Server struct {
	httpOpts *options.HttpOptions
	logger   log.Logger

	ctrl     *drone.Controller
	metrics  *metrics.Metrics
	reporter *reporter
	router   *mux.Router
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down with a bounded
// grace period and drops the drone session.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.httpOpts.Timeout,
	}

	ln, err := net.Listen(s.httpOpts.Network, s.httpOpts.Addr)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if s.reporter != nil {
		g.Go(func() error {
			return s.reporter.run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(err, "http shutdown failed")
		}

		s.ctrl.Disconnect()
		return ctx.Err()
	})

	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware, s.loggingMiddleware)

	// OPTIONS is matched everywhere so the CORS middleware can answer
	// preflights; it never reaches the handlers.
	get := []string{http.MethodGet, http.MethodOptions}
	post := []string{http.MethodPost, http.MethodOptions}

	r.HandleFunc("/health", s.handleHealth).Methods(get...)

	r.HandleFunc("/connect", s.handleConnect).Methods(post...)
	r.HandleFunc("/disconnect", s.handleDisconnect).Methods(post...)
	r.HandleFunc("/status", s.handleStatus).Methods(get...)
	r.HandleFunc("/battery", s.handleBattery).Methods(get...)

	r.HandleFunc("/takeoff", s.handleTakeoff).Methods(post...)
	r.HandleFunc("/land", s.handleLand).Methods(post...)
	r.HandleFunc("/emergency", s.handleEmergency).Methods(post...)
	r.HandleFunc("/reset", s.handleReset).Methods(post...)
	r.HandleFunc("/move", s.handleMove).Methods(post...)
	r.HandleFunc("/rotate", s.handleRotate).Methods(post...)

	r.HandleFunc("/stream/start", s.handleStreamStart).Methods(post...)
	r.HandleFunc("/stream/stop", s.handleStreamStop).Methods(post...)

	r.HandleFunc("/log", s.handleLog).Methods(get...)

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods(get...)

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}
