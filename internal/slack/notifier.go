// Package slack posts chat notifications via the Slack Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://slack.com/api"

// Notifier sends chat.postMessage calls. All task notifications are
// best-effort: use Notify, which logs failures and never returns them.
type Notifier struct {
	baseURL    string
	channel    string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures the notifier.
type Option func(*Notifier)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(n *Notifier) {
		n.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithLogger sets the failure logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = client
	}
}

// NewNotifier creates a notifier posting to the given channel.
func NewNotifier(channel string, opts ...Option) *Notifier {
	n := &Notifier{
		baseURL:    DefaultBaseURL,
		channel:    channel,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// PostMessage sends one chat.postMessage with the given bot token.
func (n *Notifier) PostMessage(ctx context.Context, botToken, text string) error {
	body, err := json.Marshal(map[string]string{
		"channel": n.channel,
		"text":    text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+botToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("slack chat.postMessage failed: %s", out.Error)
	}
	return nil
}

// Notify posts best-effort: failures are logged and swallowed so they can
// never affect the outcome of the task that triggered them.
func (n *Notifier) Notify(ctx context.Context, botToken, text string) {
	if err := n.PostMessage(ctx, botToken, text); err != nil {
		n.logger.Printf("slack notification failed: %v", err)
	}
}
