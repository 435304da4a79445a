// Package syncserver is a self-hostable remote snapshot store speaking the
// same save/load contract the sync transport uses.
package syncserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/fuusan091240-hub/flow-schedule/internal/accesskey"
	"github.com/fuusan091240-hub/flow-schedule/internal/transport"
)

const (
	ExecPath       = "/exec"
	maxRequestSize = 1 << 20
	shutdownGrace  = 5 * time.Second
)

var callbackPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

type Server struct {
	store  *SnapshotStore
	logger *slog.Logger
}

func New(store *SnapshotStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger.With("component", "syncserver")}
}

// Handler routes save and load on ExecPath by their action query value.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)
	r.Methods(http.MethodPost).Path(ExecPath).Queries("action", transport.ActionSave).HandlerFunc(s.handleSave)
	r.Methods(http.MethodGet).Path(ExecPath).Queries("action", transport.ActionLoad).HandlerFunc(s.handleLoad)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.handleHealth)
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"method", r.Method,
			"path", r.URL.Path,
			"action", r.URL.Query().Get("action"),
			"duration", m.Duration,
			"status", m.Code,
			"bytes", m.Written,
		)
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	var req transport.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed save body", http.StatusBadRequest)
		return
	}
	if !accesskey.Valid(req.AccessKey) {
		http.Error(w, "invalid access key", http.StatusBadRequest)
		return
	}
	replaced, err := s.store.Put(r.Context(), req.AccessKey, req.Envelope)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("save rejected", "key", accesskey.Key(req.AccessKey).Short(), "err", err)
		http.Error(w, "save rejected", http.StatusBadRequest)
		return
	}
	if !replaced {
		s.logger.Info("stale save ignored", "key", accesskey.Key(req.AccessKey).Short(), "saved_at", req.SavedAt)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("accessKey")
	if !accesskey.Valid(key) {
		http.Error(w, "invalid access key", http.StatusBadRequest)
		return
	}
	callback := q.Get("callback")
	if callback != "" && !callbackPattern.MatchString(callback) {
		http.Error(w, "invalid callback", http.StatusBadRequest)
		return
	}

	env, err := s.store.Get(r.Context(), key)
	if err != nil {
		s.logger.Error("load failed", "key", accesskey.Key(key).Short(), "err", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	body := []byte("null")
	if env != nil {
		if body, err = json.Marshal(env); err != nil {
			s.logger.Error("encode snapshot failed", "key", accesskey.Key(key).Short(), "err", err)
			http.Error(w, "load failed", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if callback != "" {
		w.Header().Set(transport.CallbackHeader, callback)
	}
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("write load response failed", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "snapshots": n})
}
