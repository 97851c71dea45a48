// Package webhook runs the HTTP endpoint that receives asynchronous
// generation results from the external queue.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Resolver matches a callback to a waiting generation request.
type Resolver interface {
	Resolve(correlationID, text string) bool
}

// callbackPayload is the body of POST /webhook/generated.
type callbackPayload struct {
	CorrelationID string `json:"correlation_id"`
	GeneratedText string `json:"generated_text"`
}

// Server is the callback webhook HTTP server.
type Server struct {
	srv      *http.Server
	resolver Resolver
	logger   *slog.Logger
}

// NewServer creates the webhook server listening on addr.
func NewServer(addr string, resolver Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		resolver: resolver,
		logger:   logger.With("component", "webhook"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/generated", s.handleGenerated)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving callbacks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Webhook server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the webhook server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down webhook server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleGenerated(w http.ResponseWriter, r *http.Request) {
	var payload callbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.logger.Warn("Malformed webhook payload", "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if payload.CorrelationID == "" || payload.GeneratedText == "" {
		s.logger.Warn("Webhook payload missing required fields")
		http.Error(w, "correlation_id and generated_text are required", http.StatusBadRequest)
		return
	}

	if !s.resolver.Resolve(payload.CorrelationID, payload.GeneratedText) {
		// Unknown or expired request, the sender should not retry.
		http.Error(w, "unknown correlation_id", http.StatusNotFound)
		return
	}

	s.logger.Debug("Webhook callback delivered", "correlation_id", payload.CorrelationID)
	w.WriteHeader(http.StatusOK)
}
