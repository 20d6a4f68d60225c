// Package webhook serves the Slack Events API endpoint: it verifies
// request signatures, answers URL verification challenges, and hands
// accepted events to the daemon's event handler.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/salim/tukang/pkg/slack"
)

// ServerOptions holds webhook server configuration
type ServerOptions struct {
	Host          string
	Port          int
	SigningSecret string

	// RequireHTTPS rejects requests whose X-Forwarded-Proto is not
	// https, for deployments behind a TLS-terminating proxy
	RequireHTTPS bool

	// MetricsHandler, when set, is served at /metrics
	MetricsHandler http.Handler
}

// Server is the Slack events HTTP server
type Server struct {
	options        ServerOptions
	server         *http.Server
	handler        slack.Handler
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a Slack events server
func NewServer(options ServerOptions, handler slack.Handler, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 3000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("event handler is required")
	}

	return &Server{
		options:   options,
		handler:   handler,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Start starts the webhook server and blocks until shutdown
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Routes(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting Slack events server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start events server: %w", err)
	}

	return nil
}

// Routes returns the server's handler, exposed for tests
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/slack/events", s.handleEvents)
	if s.options.MetricsHandler != nil {
		mux.Handle("/metrics", s.options.MetricsHandler)
	}
	return mux
}

// Stop gracefully stops the webhook server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down events server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown events server: %w", err)
	}

	s.logger.Info().Msg("Events server stopped")
	return nil
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleEvents handles Slack Events API requests
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.options.RequireHTTPS && r.Header.Get("X-Forwarded-Proto") != "https" {
		http.Error(w, "HTTPS required", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read request body")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if !verifySignature(s.options.SigningSecret, timestamp, signature, body, time.Now()) {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("Invalid request signature")
		http.Error(w, "Invalid request signature", http.StatusUnauthorized)
		return
	}

	parsed := gjson.ParseBytes(body)
	switch parsed.Get("type").String() {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, parsed.Get("challenge").String())
		return

	case "event_callback":
		ev := slack.ParseEvent(body)

		// Ignore our own messages to avoid loops
		if ev.BotID != "" {
			fmt.Fprint(w, "ok")
			return
		}

		// Ack within Slack's deadline; the run happens in the
		// background and replies through the Web API
		go s.handler(context.Background(), ev)

		fmt.Fprint(w, "ok")
		return

	default:
		fmt.Fprint(w, "ok")
	}
}
