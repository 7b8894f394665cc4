// File: internal/dashboard/server.go

// Package dashboard exposes the campaign control surface over HTTP:
// start, pause, resume, and stop, plus a live state snapshot. It writes
// only the control flags of the shared session state; progress belongs to
// the orchestrator.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mpellegro/wasend-cli/internal/orchestrator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StartFunc launches a campaign for count contacts. It must return
// orchestrator.ErrAlreadyRunning when one is active.
type StartFunc func(ctx context.Context, count int) error

// Server is the HTTP control surface.
type Server struct {
	state  *orchestrator.SessionState
	start  StartFunc
	logger *zap.Logger

	// base context for runs kicked off over HTTP; runs must outlive the
	// request that started them.
	runCtx context.Context
}

func NewServer(runCtx context.Context, state *orchestrator.SessionState, start StartFunc, logger *zap.Logger) *Server {
	return &Server{
		state:  state,
		start:  start,
		logger: logger.Named("dashboard"),
		runCtx: runCtx,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/resume", s.handleResume)
	return mux
}

// ListenAndServe runs the control surface until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("Dashboard listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "count must be a non-negative integer", http.StatusBadRequest)
			return
		}
		count = n
	}

	if s.state.Snapshot().Running {
		http.Error(w, "a run is already active", http.StatusConflict)
		return
	}

	go func() {
		if err := s.start(s.runCtx, count); err != nil && !errors.Is(err, orchestrator.ErrAlreadyRunning) {
			s.logger.Error("Run failed", zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.state.RequestStop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.state.SetPaused(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.state.SetPaused(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
