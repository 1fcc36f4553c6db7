// Package accounts is the REST client for authentication and profile
// management. It only consumes tokens issued by the server; issuance itself
// is out of scope for this client.
package accounts

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

	"github.com/iccupwin/planfix-ai-assistant/pkg/credentials"
)

// ErrInvalidCredentials maps HTTP 400/401 on the login endpoint.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Client struct {
	baseURL string
	httpc   *http.Client
	store   *credentials.Store
	logger  zerolog.Logger
}

func NewClient(baseURL string, store *credentials.Store, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		store:   store,
		logger:  logger.With().Str("component", "accounts").Logger(),
	}
}

type loginResponse struct {
	Token              string `json:"token"`
	UserID             int    `json:"user_id"`
	Email              string `json:"email"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	IsPlanfixConnected bool   `json:"is_planfix_connected"`
}

// Login authenticates and persists the returned token and profile in the
// credential store.
func (c *Client) Login(ctx context.Context, email, password string) (credentials.User, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/accounts/login/",
		map[string]string{"email": email, "password": password}, &resp, false)
	if err != nil {
		return credentials.User{}, err
	}
	user := credentials.User{
		ID:                 resp.UserID,
		Email:              resp.Email,
		FirstName:          resp.FirstName,
		LastName:           resp.LastName,
		IsPlanfixConnected: resp.IsPlanfixConnected,
	}
	if err := c.store.Save(resp.Token, &user); err != nil {
		return credentials.User{}, errors.Wrap(err, "persisting credentials")
	}
	return user, nil
}

type registerResponse struct {
	Token string            `json:"token"`
	User  *credentials.User `json:"user"`
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, email, password, firstName, lastName string) (credentials.User, error) {
	body := map[string]string{
		"email":      email,
		"password":   password,
		"password2":  password,
		"first_name": firstName,
		"last_name":  lastName,
	}
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/api/accounts/register/", body, &resp, false); err != nil {
		return credentials.User{}, err
	}
	user := credentials.User{Email: email, FirstName: firstName, LastName: lastName}
	if resp.User != nil {
		user = *resp.User
	}
	if err := c.store.Save(resp.Token, &user); err != nil {
		return credentials.User{}, errors.Wrap(err, "persisting credentials")
	}
	return user, nil
}

// CurrentUser fetches the profile from the server.
func (c *Client) CurrentUser(ctx context.Context) (credentials.User, error) {
	var user credentials.User
	if err := c.do(ctx, http.MethodGet, "/api/accounts/me/", nil, &user, true); err != nil {
		return credentials.User{}, err
	}
	return user, nil
}

// UpdateUser writes profile changes and refreshes the cached copy.
func (c *Client) UpdateUser(ctx context.Context, firstName, lastName string) (credentials.User, error) {
	body := map[string]string{"first_name": firstName, "last_name": lastName}
	var user credentials.User
	if err := c.do(ctx, http.MethodPut, "/api/accounts/me/", body, &user, true); err != nil {
		return credentials.User{}, err
	}
	if err := c.store.Save(c.store.Token(), &user); err != nil {
		c.logger.Warn().Err(err).Msg("failed to refresh cached profile")
	}
	return user, nil
}

// ConnectPlanfix links the account to a Planfix workspace.
func (c *Client) ConnectPlanfix(ctx context.Context, planfixToken, planfixID string) error {
	body := map[string]string{
		"planfix_token": planfixToken,
		"planfix_id":    planfixID,
	}
	return c.do(ctx, http.MethodPost, "/api/accounts/connect-planfix/", body, nil, true)
}

// Logout clears the stored credentials. Purely local: the server keeps no
// session state beyond the token.
func (c *Client) Logout() error {
	return c.store.Clear()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
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
	if authed {
		if token := c.store.Token(); token != "" {
			req.Header.Set("Authorization", "Token "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusBadRequest && strings.HasSuffix(path, "/login/"):
		return ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("accounts returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
