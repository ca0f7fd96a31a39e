package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bolasblack/gowfp/internal/logging"
	"github.com/bolasblack/gowfp/internal/registry"
)

const shutdownTimeout = 5 * time.Second

// FilterLister lists the filters installed in the engine.
type FilterLister interface {
	ListFilters(ctx context.Context) ([]registry.Descriptor, error)
}

// Server serves /metrics and a read-only JSON view of installed filters.
// The lister is only called from request handlers; callers that share it
// with other goroutines must serialize access themselves.
type Server struct {
	metrics *Metrics
	lister  FilterLister
	logger  *logging.Logger
	router  *mux.Router
}

// NewServer builds the router. lister may be nil, in which case the filter
// routes answer 503.
func NewServer(m *Metrics, lister FilterLister, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{metrics: m, lister: lister, logger: logger, router: mux.NewRouter()}
	s.RegisterRoutes(s.router)
	return s
}

// RegisterRoutes adds the server's routes to router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	router.HandleFunc("/filters", s.handleListFilters).Methods("GET")
	router.HandleFunc("/filters/{name}", s.handleGetFilter).Methods("GET")
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	s.logger.Info("status server listening", "addr", l.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	all, err := s.lister.ListFilters(r.Context())
	if err != nil {
		s.logger.Warn("failed to list filters", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]registry.View, 0, len(all))
	for _, d := range all {
		views = append(views, d.View())
	}
	s.writeJSON(w, views)
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	name := mux.Vars(r)["name"]

	all, err := s.lister.ListFilters(r.Context())
	if err != nil {
		s.logger.Warn("failed to list filters", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, d := range all {
		if d.Name == name {
			s.writeJSON(w, d.View())
			return
		}
	}
	http.Error(w, "filter not found", http.StatusNotFound)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
