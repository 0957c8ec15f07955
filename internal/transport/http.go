// Package transport serves the dispatcher's status API and live transaction feed.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/walletpulse/internal/storage"
	"github.com/gateway-fm/walletpulse/internal/store"
	"github.com/gateway-fm/walletpulse/pkg/types"
)

// Pagination bounds for /v1/txs.
const (
	defaultTxLimit = 50
	maxTxLimit     = 100
)

const shutdownTimeout = 5 * time.Second

// StatusProvider is the read-only view of the running dispatcher.
type StatusProvider interface {
	Status() types.Status
	Personas() map[string]store.Persona
	DeadProxies() map[string]store.DeadProxy
}

// ServerConfig holds Server dependencies. Archive, Hub and Gatherer are optional.
type ServerConfig struct {
	Provider StatusProvider
	Archive  storage.Archive
	Hub      *Hub
	Gatherer prometheus.Gatherer

	CORSAllowedOrigins string
	Logger             *slog.Logger
}

// Server handles HTTP requests for the status API.
type Server struct {
	provider  StatusProvider
	archive   storage.Archive
	hub       *Hub
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	startTime time.Time

	// CORS configuration
	corsAllowedOrigins []string
	corsAllowAll       bool
}

// NewServer creates a new status server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		provider:  cfg.Provider,
		archive:   cfg.Archive,
		hub:       cfg.Hub,
		gatherer:  cfg.Gatherer,
		logger:    logger,
		startTime: time.Now(),
	}

	origins := strings.TrimSpace(cfg.CORSAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}

	return s
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/v1/personas", s.corsMiddleware(s.handlePersonas))
	mux.HandleFunc("/v1/dead-proxies", s.corsMiddleware(s.handleDeadProxies))
	mux.HandleFunc("/v1/txs", s.corsMiddleware(s.handleTxs))
	mux.HandleFunc("/v1/txs/", s.corsMiddleware(s.handleTxByHash))
	if s.hub != nil {
		mux.HandleFunc("/v1/ws", s.hub.Handler())
	}

	mux.HandleFunc("/health", s.handleHealth)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// handleStatus returns the live dispatcher status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.provider.Status())
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.provider.Personas())
}

func (s *Server) handleDeadProxies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.provider.DeadProxies())
}

// handleTxs returns archived transaction log entries, newest first.
func (s *Server) handleTxs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		s.writeJSONError(w, "Transaction archive not enabled", http.StatusNotFound)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	limit := defaultTxLimit
	offset := 0

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxTxLimit {
			limit = l
		}
	}
	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	result, err := s.archive.GetTxLogs(r.Context(), limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to get transactions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, result)
}

// handleTxByHash handles /v1/txs/{hash}.
func (s *Server) handleTxByHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		s.writeJSONError(w, "Transaction archive not enabled", http.StatusNotFound)
		return
	}

	hash := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/txs/"), "/")
	if hash == "" {
		s.writeJSONError(w, "Missing transaction hash", http.StatusBadRequest)
		return
	}

	entry, err := s.archive.GetTxLogByHash(r.Context(), hash)
	if err != nil {
		s.writeJSONError(w, "Failed to get transaction: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entry == nil {
		s.writeJSONError(w, "Transaction not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, entry)
}

// handleHealth handles liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to encode response", slog.String("error", err.Error()))
	}
}

// writeJSONError writes a JSON error response.
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
