package accounts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iccupwin/planfix-ai-assistant/pkg/credentials"
)

func testStore(t *testing.T) *credentials.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	return credentials.NewStore(path, zerolog.Nop())
}

func TestLoginPersistsTokenAndProfile(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/accounts/login/", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_, _ = w.Write([]byte(`{
			"token": "tok-1",
			"user_id": 7,
			"email": "a@b.c",
			"first_name": "Ada",
			"last_name": "L",
			"is_planfix_connected": true
		}`))
	}))
	t.Cleanup(srv.Close)

	store := testStore(t)
	c := NewClient(srv.URL, store, zerolog.Nop())

	user, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	require.Equal(t, 7, user.ID)
	require.True(t, user.IsPlanfixConnected)
	require.Equal(t, map[string]string{"email": "a@b.c", "password": "pw"}, gotBody)

	require.Equal(t, "tok-1", store.Token())
	cached, ok := store.User()
	require.True(t, ok)
	require.Equal(t, "Ada", cached.FirstName)
}

func TestLoginRejectionMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"non_field_errors":["Unable to log in."]}`))
	}))
	t.Cleanup(srv.Close)

	store := testStore(t)
	c := NewClient(srv.URL, store, zerolog.Nop())

	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Empty(t, store.Token())
}

func TestCurrentUserSendsTokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Token tok-1", r.Header.Get("Authorization"))
		require.Equal(t, "/api/accounts/me/", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":7,"email":"a@b.c","first_name":"Ada"}`))
	}))
	t.Cleanup(srv.Close)

	store := testStore(t)
	require.NoError(t, store.Save("tok-1", nil))
	c := NewClient(srv.URL, store, zerolog.Nop())

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ada", user.FirstName)
}

func TestExpiredTokenMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	store := testStore(t)
	require.NoError(t, store.Save("stale", nil))
	c := NewClient(srv.URL, store, zerolog.Nop())

	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterStoresReturnedProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/accounts/register/", r.URL.Path)
		var body map[string]string
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		require.Equal(t, body["password"], body["password2"])
		_, _ = w.Write([]byte(`{"token":"tok-2","user":{"id":8,"email":"n@b.c","first_name":"New"}}`))
	}))
	t.Cleanup(srv.Close)

	store := testStore(t)
	c := NewClient(srv.URL, store, zerolog.Nop())

	user, err := c.Register(context.Background(), "n@b.c", "pw", "New", "User")
	require.NoError(t, err)
	require.Equal(t, 8, user.ID)
	require.Equal(t, "tok-2", store.Token())
}

func TestLogoutClearsStore(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save("tok-1", &credentials.User{ID: 7}))

	c := NewClient("http://unused", store, zerolog.Nop())
	require.NoError(t, c.Logout())
	require.Empty(t, store.Token())
	_, ok := store.User()
	require.False(t, ok)
}
