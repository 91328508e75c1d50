package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// Server exposes the daemon's HTTP surface: webhook trigger, health, status,
// and metrics.
type Server struct {
	addr    string
	daemon  *Daemon
	metrics http.Handler
}

// NewServer creates the HTTP server. A nil metrics handler hides /metrics.
func NewServer(addr string, d *Daemon) *Server {
	return &Server{addr: addr, daemon: d}
}

// WithMetricsHandler attaches the metrics endpoint.
func (s *Server) WithMetricsHandler(h http.Handler) *Server {
	s.metrics = h
	return s
}

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	server := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleWebhook accepts POST requests that trigger a run. The body is ignored;
// any forge's push payload means the same thing here.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	queued := s.daemon.Trigger(TriggerWebhook)
	slog.Info("Webhook received",
		logfields.RemoteAddr(r.RemoteAddr),
		slog.Bool("queued", queued))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{"queued": queued})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	status := s.daemon.Status()
	recent, err := s.daemon.store.Recent(r.Context(), 20)
	if err != nil {
		slog.Warn("Failed to read run history", logfields.Error(err))
	} else {
		status.Recent = recent
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Rejected request",
		logfields.Method(r.Method),
		logfields.Path(r.URL.Path))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", logfields.Error(err))
	}
}
