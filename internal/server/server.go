// Package server exposes the HTTP control surface of the daemon: session
// status and control, command-mapping reload, health and readiness probes,
// Prometheus metrics, and a websocket stream of live transcripts.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harkd/hark/internal/health"
	"github.com/harkd/hark/internal/observe"
	"github.com/harkd/hark/internal/output"
	"github.com/harkd/hark/internal/output/postgres"
	"github.com/harkd/hark/internal/session"
)

// Controller is the subset of the session machine the server drives.
type Controller interface {
	Status() session.Status
	StartSession()
	StopSession()
}

// ReloadFunc re-reads the command mappings from their source of truth and
// applies them. Wired by the application to the config file.
type ReloadFunc func(ctx context.Context) error

// History is the transcript query surface behind GET /transcripts, satisfied
// by [postgres.Store].
type History interface {
	Recent(ctx context.Context, sessionID string, within time.Duration) ([]output.Entry, error)
	Search(ctx context.Context, query string, opts postgres.SearchOpts) ([]output.Entry, error)
}

// Config holds the server settings.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., "127.0.0.1:8675").
	ListenAddr string

	// ShutdownTimeout bounds graceful shutdown. Default: 10 s.
	ShutdownTimeout time.Duration
}

// Server is the HTTP control server. Construct with [New], run with
// [Server.Run].
type Server struct {
	cfg     Config
	ctrl    Controller
	reload  ReloadFunc
	hub     *Hub
	history History
	httpSrv *http.Server
}

// New assembles the server and its routes. health, history, and metrics may
// be nil, in which case the corresponding endpoints are not registered. The
// returned server owns hub and closes it on shutdown.
func New(cfg Config, ctrl Controller, reload ReloadFunc, hub *Hub, h *health.Handler, history History, metrics *observe.Metrics) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("server: controller is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		reload:  reload,
		hub:     hub,
		history: history,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /commands/reload", s.handleReload)
	mux.Handle("GET /events", hub)
	if history != nil {
		mux.HandleFunc("GET /transcripts", s.handleTranscripts)
	}
	if h != nil {
		h.Register(mux)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	var handler http.Handler = mux
	if metrics != nil {
		handler = observe.Middleware(metrics)(mux)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Hub returns the transcript broadcast hub so the application can publish
// entries into it.
func (s *Server) Hub() *Hub { return s.hub }

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("control server listening", "addr", s.cfg.ListenAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen on %q: %w", s.cfg.ListenAddr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.hub.Close()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Handler returns the assembled HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.StartSession()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "start requested"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.StopSession()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stop requested"})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "command reload is not configured"})
		return
	}
	if err := s.reload(r.Context()); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleTranscripts answers GET /transcripts. With ?q= it runs a full-text
// search (optionally narrowed by ?session= and ?limit=); without it,
// ?session= returns that session's entries from the last ?within= window
// (default 24h).
func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("q")
	sessionID := params.Get("session")

	limit := 0
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = n
	}

	within := 24 * time.Hour
	if v := params.Get("within"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid within %q", v)})
			return
		}
		within = d
	}

	var (
		entries []output.Entry
		err     error
	)
	switch {
	case query != "":
		entries, err = s.history.Search(r.Context(), query, postgres.SearchOpts{
			SessionID: sessionID,
			Limit:     limit,
		})
	case sessionID != "":
		entries, err = s.history.Recent(r.Context(), sessionID, within)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q or session parameter is required"})
		return
	}
	if err != nil {
		slog.Warn("transcript query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "transcript query failed"})
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response failed", "error", err)
	}
}
