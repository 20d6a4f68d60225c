// Package slack is a thin Slack client: Web API calls for replies and
// reactions, event payload parsing, and a Socket Mode connection for
// deployments without a public HTTP endpoint.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the Slack Web API root
const DefaultBaseURL = "https://slack.com/api"

// Client calls the Slack Web API
type Client struct {
	httpClient *http.Client
	botToken   string
	baseURL    string
	logger     zerolog.Logger
}

// ClientConfig holds client configuration
type ClientConfig struct {
	BotToken string
	BaseURL  string // defaults to DefaultBaseURL
	Logger   zerolog.Logger
}

// NewClient creates a Slack Web API client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		botToken:   cfg.BotToken,
		baseURL:    baseURL,
		logger:     cfg.Logger,
	}, nil
}

// PostMessage posts a threaded reply to a channel
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string) error {
	return c.call(ctx, "chat.postMessage", map[string]interface{}{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      text,
	})
}

// AddReaction adds an emoji reaction to a message. An already present
// reaction is not an error.
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, name string) error {
	err := c.call(ctx, "reactions.add", map[string]interface{}{
		"channel":   channel,
		"timestamp": timestamp,
		"name":      name,
	})
	if err != nil && isAPIError(err, "already_reacted") {
		return nil
	}
	return err
}

// APIError is a Slack Web API level failure (ok=false)
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
}

func isAPIError(err error, code string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == code
}

func (c *Client) call(ctx context.Context, method string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	parsed := gjson.ParseBytes(respBody)
	if !parsed.Get("ok").Bool() {
		code := parsed.Get("error").String()
		if code == "" {
			code = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return &APIError{Method: method, Code: code}
	}

	c.logger.Debug().Str("method", method).Msg("Slack API call succeeded")
	return nil
}
