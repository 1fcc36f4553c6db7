// Package directory is the REST client for chat resource CRUD: listing,
// creating, renaming and deleting chats, loading message history, and the
// HTTP fallback for messages and feedback. It is consumed by the session
// layer; realtime traffic goes over the websocket instead.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

// ErrUnauthorized maps HTTP 401 so callers can route back to the login flow.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the directory.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	httpc   *http.Client
	tokenFn func() string
	logger  zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

func NewClient(baseURL string, tokenFn func() string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		tokenFn: tokenFn,
		logger:  logger.With().Str("component", "directory").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListChats returns the user's chats, most recently updated first.
func (c *Client) ListChats(ctx context.Context) ([]chatwire.Chat, error) {
	var out []chatwire.Chat
	if err := c.do(ctx, http.MethodGet, "/api/chat/", nil, &out); err != nil {
		return nil, errors.Wrap(err, "listing chats")
	}
	return out, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (chatwire.Chat, error) {
	var out chatwire.Chat
	if err := c.do(ctx, http.MethodGet, "/api/chat/"+chatID+"/", nil, &out); err != nil {
		return chatwire.Chat{}, errors.Wrap(err, "fetching chat")
	}
	return out, nil
}

// CreateChat creates a chat; an empty title lets the server pick one.
func (c *Client) CreateChat(ctx context.Context, title string) (chatwire.Chat, error) {
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	var out chatwire.Chat
	if err := c.do(ctx, http.MethodPost, "/api/chat/", body, &out); err != nil {
		return chatwire.Chat{}, errors.Wrap(err, "creating chat")
	}
	return out, nil
}

func (c *Client) RenameChat(ctx context.Context, chatID, title string) (chatwire.Chat, error) {
	var out chatwire.Chat
	if err := c.do(ctx, http.MethodPatch, "/api/chat/"+chatID+"/", map[string]string{"title": title}, &out); err != nil {
		return chatwire.Chat{}, errors.Wrap(err, "renaming chat")
	}
	return out, nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/chat/"+chatID+"/", nil, nil); err != nil {
		return errors.Wrap(err, "deleting chat")
	}
	return nil
}

func (c *Client) ListMessages(ctx context.Context, chatID string) ([]chatwire.Message, error) {
	var out []chatwire.Message
	if err := c.do(ctx, http.MethodGet, "/api/chat/"+chatID+"/messages/", nil, &out); err != nil {
		return nil, errors.Wrap(err, "listing messages")
	}
	return out, nil
}

// SendMessage is the request/response fallback for posting a message outside
// the websocket.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (chatwire.Message, error) {
	var out chatwire.Message
	if err := c.do(ctx, http.MethodPost, "/api/chat/"+chatID+"/messages/", map[string]string{"content": content}, &out); err != nil {
		return chatwire.Message{}, errors.Wrap(err, "sending message")
	}
	return out, nil
}

// SendFeedback submits a rating for an assistant message.
func (c *Client) SendFeedback(ctx context.Context, messageID string, rating int, comment string) error {
	body := map[string]any{
		"message_id": messageID,
		"rating":     rating,
		"comment":    comment,
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat/feedback/", body, nil); err != nil {
		return errors.Wrap(err, "sending feedback")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokenFn != nil {
		if token := c.tokenFn(); token != "" {
			req.Header.Set("Authorization", "Token "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("directory call failed")
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
