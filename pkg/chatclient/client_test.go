package chatclient

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

type fakeLoader struct {
	chats   map[string]chatwire.Chat
	history map[string][]chatwire.Message
	chatErr error
	histErr error
}

func (f *fakeLoader) GetChat(_ context.Context, chatID string) (chatwire.Chat, error) {
	if f.chatErr != nil {
		return chatwire.Chat{}, f.chatErr
	}
	return f.chats[chatID], nil
}

func (f *fakeLoader) ListMessages(_ context.Context, chatID string) ([]chatwire.Message, error) {
	if f.histErr != nil {
		return nil, f.histErr
	}
	return f.history[chatID], nil
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		chats: map[string]chatwire.Chat{
			"a": {ID: "a", Title: "Chat A"},
			"b": {ID: "b", Title: "Chat B"},
		},
		history: map[string][]chatwire.Message{
			"a": {{ID: "a1", Role: chatwire.RoleAssistant, Content: "old A"}},
			"b": nil,
		},
	}
}

func testSwitcher(t *testing.T, s *wsServer, loader ChatLoader) *Switcher {
	t.Helper()
	sw := NewSwitcher(Config{
		BaseURL: s.URL(),
		Logger:  zerolog.Nop(),
	}, loader)
	t.Cleanup(sw.Deactivate)
	return sw
}

func TestChatClientActivateLoadsAndConnects(t *testing.T) {
	s := newWSServer(t)
	sw := testSwitcher(t, s, newFakeLoader())

	c, err := sw.Activate(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, LoadReady, c.Session().Load())
	require.Equal(t, "Chat A", c.Session().Title())
	require.Len(t, c.Session().Messages(), 1)

	sc := s.accept(t)
	require.Equal(t, "/ws/chat/a/", sc.path)
	require.Eventually(t, func() bool {
		return c.Transport().State() == StateConnected
	}, time.Second, 10*time.Millisecond)
}

func TestChatClientLoadFailureNeverConnects(t *testing.T) {
	s := newWSServer(t)
	loader := newFakeLoader()
	loader.histErr = errors.New("directory down")
	sw := testSwitcher(t, s, loader)

	c, err := sw.Activate(context.Background(), "a")
	require.EqualError(t, err, "directory down")
	require.Equal(t, LoadErrored, c.Session().Load())
	require.EqualError(t, c.Session().LastError(), "directory down")

	s.expectNoConn(t, 150*time.Millisecond)
	require.ErrorIs(t, c.Start(context.Background()), ErrNotConnected)
}

func TestSwitcherHandoffIsolatesSessions(t *testing.T) {
	s := newWSServer(t)
	sw := testSwitcher(t, s, newFakeLoader())

	a, err := sw.Activate(context.Background(), "a")
	require.NoError(t, err)
	oldConn := s.accept(t)
	require.Eventually(t, func() bool {
		return a.Transport().State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	b, err := sw.Activate(context.Background(), "b")
	require.NoError(t, err)
	require.Same(t, b, sw.Active())
	newConn := s.accept(t)
	require.Equal(t, "/ws/chat/b/", newConn.path)
	require.Eventually(t, func() bool {
		return b.Transport().State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	// a frame arriving on the superseded connection must not leak into the
	// new chat's session
	oldConn.sendRaw(chatMessageFrame("ghost", "assistant", "stale"))
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, b.Session().Messages())

	newConn.sendRaw(chatMessageFrame("b1", "assistant", "fresh"))
	require.Eventually(t, func() bool {
		msgs := b.Session().Messages()
		return len(msgs) == 1 && msgs[0].ID == "b1"
	}, time.Second, 10*time.Millisecond)
}

func TestChatClientSendMessageAppendsOptimistic(t *testing.T) {
	s := newWSServer(t)
	sw := testSwitcher(t, s, newFakeLoader())

	c, err := sw.Activate(context.Background(), "b")
	require.NoError(t, err)
	sc := s.accept(t)
	require.Eventually(t, func() bool {
		return c.Transport().State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	tempID, err := c.SendMessage("Hello")
	require.NoError(t, err)

	msgs := c.Session().Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, tempID, msgs[0].ID)
	require.Equal(t, chatwire.StatusSending, msgs[0].Status)

	frame := sc.nextFrame(t)
	require.Equal(t, "user_message", frame["type"])
	require.Equal(t, tempID, frame["id"])
}

func TestChatClientSendMessageFailureAppendsNothing(t *testing.T) {
	s := newWSServer(t)
	loader := newFakeLoader()
	cfg := Config{BaseURL: s.URL(), Logger: zerolog.Nop()}
	c := NewChatClient("a", cfg)
	t.Cleanup(c.Close)
	require.NoError(t, c.Load(context.Background(), loader))

	// transport never started
	_, err := c.SendMessage("Hello")
	require.ErrorIs(t, err, ErrNotConnected)
	require.Empty(t, c.Session().Messages())
}

func TestChatClientDisconnectClearsTypingAndFailsPending(t *testing.T) {
	s := newWSServer(t)
	sw := testSwitcher(t, s, newFakeLoader())

	c, err := sw.Activate(context.Background(), "b")
	require.NoError(t, err)
	sc := s.accept(t)
	require.Eventually(t, func() bool {
		return c.Transport().State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	sc.sendRaw([]byte(`{"type":"assistant_typing","is_typing":true}`))
	require.Eventually(t, c.Session().AssistantTyping, time.Second, 10*time.Millisecond)

	tempID, err := c.SendMessage("unconfirmed")
	require.NoError(t, err)

	sc.closeWith(1000, "bye")
	require.Eventually(t, func() bool {
		return c.Transport().State() == StateDisconnected
	}, time.Second, 10*time.Millisecond)

	require.False(t, c.Session().AssistantTyping())
	msgs := c.Session().Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, tempID, msgs[0].ID)
	require.Equal(t, chatwire.StatusFailed, msgs[0].Status)
}
