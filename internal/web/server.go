// Package web provides an HTTP status server for the irrigation controller.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/storage"
)

// HistorySource serves archived moisture history.
type HistorySource interface {
	RecentHistory(ctx context.Context, limit int) ([]storage.Point, error)
}

// Options are the optional data sources of the server.
type Options struct {
	History HistorySource
	Metrics *metrics.Metrics
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    HistorySource
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	s := &Server{tracker: tracker, history: opts.History}

	m := opts.Metrics
	r := mux.NewRouter()
	r.Handle("/", m.WrapHandler("/", http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet)
	r.Handle("/index.html", m.WrapHandler("/index.html", http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet)
	r.Handle("/index.json", m.WrapHandler("/index.json", http.HandlerFunc(s.handleJSON))).Methods(http.MethodGet)
	r.Handle("/history.json", m.WrapHandler("/history.json", http.HandlerFunc(s.handleHistory))).Methods(http.MethodGet)
	r.Handle("/health", m.WrapHandler("/health", http.HandlerFunc(s.handleHealth))).Methods(http.MethodGet)
	if m != nil {
		r.Handle("/metrics", m.WrapHandler("/metrics", m.Handler())).Methods(http.MethodGet)
	}

	h := handlers.CompressHandler(r)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		slog.Warn("render status page", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	if !snap.Running {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}

// historyJSON is the /history.json response.
type historyJSON struct {
	Points []storage.Point `json:"points"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history archive disabled", http.StatusNotFound)
		return
	}

	limit := storage.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	points, err := s.history.RecentHistory(r.Context(), limit)
	if err != nil {
		slog.Warn("history query failed", "err", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(historyJSON{Points: points})
}
