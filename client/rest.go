// Package client implements the browser-side half of the chat delivery
// path: a REST client for the request/response channel, a persistent
// session for the realtime channel, and a conversation timeline that
// merges the two.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
)

// RESTClient talks to the router's request/response channel. Every call
// carries the opaque credential handed in at construction time.
type RESTClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Conversations returns the peers that have an open conversation with
// identity. Order is server-defined.
func (c *RESTClient) Conversations(ctx context.Context, identity string) ([]domain.ConversationSummary, error) {
	var peers []domain.ConversationSummary
	path := "/api/v1/conversations/" + url.PathEscape(identity)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// History returns all messages between self and peer, oldest first.
func (c *RESTClient) History(ctx context.Context, self, peer string) ([]domain.Message, error) {
	var messages []domain.Message
	path := "/api/v1/history/" + url.PathEscape(self) + "/" + url.PathEscape(peer)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Send originates a message over the request/response channel. It runs
// the same persistence path as the realtime frame and works before any
// realtime exchange has happened.
func (c *RESTClient) Send(ctx context.Context, sender, receiver, body string) error {
	payload := map[string]string{
		"sender":   sender,
		"receiver": receiver,
		"message":  body,
	}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/messages", payload, nil)
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("malformed response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		return fmt.Errorf("chat api error %d: %s", resp.StatusCode, envelope.Error)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
