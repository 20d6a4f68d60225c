package slack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// SocketClient receives events over a Slack Socket Mode connection,
// for deployments without a publicly reachable webhook endpoint.
type SocketClient struct {
	appToken   string
	baseURL    string
	httpClient *http.Client
	handler    Handler
	logger     zerolog.Logger
}

// SocketClientConfig holds socket client configuration
type SocketClientConfig struct {
	AppToken string
	BaseURL  string // defaults to DefaultBaseURL
	Handler  Handler
	Logger   zerolog.Logger
}

// NewSocketClient creates a Socket Mode client
func NewSocketClient(cfg SocketClientConfig) (*SocketClient, error) {
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("app token is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("event handler is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &SocketClient{
		appToken:   cfg.AppToken,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		handler:    cfg.Handler,
		logger:     cfg.Logger,
	}, nil
}

// Run connects and processes envelopes until ctx is cancelled,
// reconnecting with backoff on disconnect.
func (s *SocketClient) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		wsURL, err := s.openConnection(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Failed to open socket mode connection")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := s.readLoop(ctx, wsURL); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("Socket mode connection lost, reconnecting")
		}
	}
}

// openConnection requests a websocket URL from apps.connections.open
func (s *SocketClient) openConnection(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/apps.connections.open", bytes.NewReader(nil))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.appToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("apps.connections.open request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read apps.connections.open response: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.Get("ok").Bool() {
		return "", &APIError{Method: "apps.connections.open", Code: parsed.Get("error").String()}
	}

	return parsed.Get("url").String(), nil
}

func (s *SocketClient) readLoop(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller shuts down
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.logger.Info().Msg("Socket mode connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		envelope := gjson.ParseBytes(message)
		switch envelope.Get("type").String() {
		case "hello":
			continue

		case "disconnect":
			// Slack asks clients to reconnect; the outer loop handles
			// getting a fresh URL
			return fmt.Errorf("server requested disconnect: %s", envelope.Get("reason").String())

		case "events_api":
			if id := envelope.Get("envelope_id").String(); id != "" {
				if err := conn.WriteJSON(map[string]string{"envelope_id": id}); err != nil {
					return fmt.Errorf("failed to ack envelope: %w", err)
				}
			}

			payload := envelope.Get("payload")
			ev := ParseEvent([]byte(payload.Raw))
			go s.handler(ctx, ev)
		}
	}
}
