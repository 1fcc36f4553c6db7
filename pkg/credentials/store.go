// Package credentials holds the process-wide bearer token and cached user
// profile, persisted in the user config dir. It is read by both the REST
// clients and the websocket transport; the only writer besides login/logout
// is the transport's unauthorized-close path, which purges it exactly once.
package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// User is the cached profile from the accounts API.
type User struct {
	ID                 int    `json:"id"`
	Email              string `json:"email"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	IsPlanfixConnected bool   `json:"is_planfix_connected"`
}

type fileFormat struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Store is a file-backed credential store safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	token  string
	user   *User
	logger zerolog.Logger

	logoutOnce sync.Once
	onLogout   func()
}

// DefaultPath returns the credentials file location under the user config
// dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving user config dir")
	}
	return filepath.Join(dir, "planfix-chat", "credentials.json"), nil
}

func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "credentials").Logger(),
	}
}

// Load reads the credentials file. A missing file is not an error: the store
// just stays empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading credentials file")
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return errors.Wrap(err, "parsing credentials file")
	}
	s.token = ff.Token
	s.user = ff.User
	return nil
}

// Save stores the token and profile in memory and on disk.
func (s *Store) Save(token string, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.user = user

	data, err := json.MarshalIndent(fileFormat{Token: token, User: user}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding credentials")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "creating credentials dir")
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "writing credentials file")
	}
	return nil
}

// Token returns the current bearer token, empty when logged out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the cached profile.
func (s *Store) User() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// SetLogoutHook registers the host application's redirect-to-login action,
// fired at most once per store lifetime by ClearOnce.
func (s *Store) SetLogoutHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = fn
}

// Clear wipes the token and profile from memory and disk. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.user = nil
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing credentials file")
	}
	return nil
}

// ClearOnce is the unauthorized-close path: purge credentials and fire the
// logout hook, guaranteed at most once even under repeated unauthorized
// signals.
func (s *Store) ClearOnce() {
	s.logoutOnce.Do(func() {
		if err := s.Clear(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear credentials")
		}
		s.mu.Lock()
		fn := s.onLogout
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
