package credentials

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	return NewStore(path, zerolog.Nop()), path
}

func TestStoreSaveLoadRoundtrip(t *testing.T) {
	s, path := tempStore(t)
	user := &User{ID: 7, Email: "a@b.c", FirstName: "Ada", IsPlanfixConnected: true}
	require.NoError(t, s.Save("tok-1", user))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded := NewStore(path, zerolog.Nop())
	require.NoError(t, reloaded.Load())
	require.Equal(t, "tok-1", reloaded.Token())
	got, ok := reloaded.User()
	require.True(t, ok)
	require.Equal(t, *user, got)
}

func TestStoreLoadMissingFileIsEmpty(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.Load())
	require.Empty(t, s.Token())
	_, ok := s.User()
	require.False(t, ok)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	s, path := tempStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	require.Error(t, s.Load())
}

func TestStoreClearIsIdempotent(t *testing.T) {
	s, path := tempStore(t)
	require.NoError(t, s.Save("tok-1", &User{ID: 7}))

	require.NoError(t, s.Clear())
	require.Empty(t, s.Token())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// clearing an already-empty store must not fail
	require.NoError(t, s.Clear())
}

func TestStoreClearOnceFiresHookExactlyOnce(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.Save("tok-1", &User{ID: 7}))

	var hookCalls int
	s.SetLogoutHook(func() { hookCalls++ })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ClearOnce()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, hookCalls)
	require.Empty(t, s.Token())
}

func TestStoreClearOnceWithoutHook(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.Save("tok-1", nil))

	s.ClearOnce()
	require.Empty(t, s.Token())
}
