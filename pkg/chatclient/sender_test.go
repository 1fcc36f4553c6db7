package chatclient

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSenderSendMessageOverWire(t *testing.T) {
	s := newWSServer(t)
	tr, router := testTransport(t, s, TransportConfig{})
	sender := NewSender(tr, router, zerolog.Nop())

	require.NoError(t, tr.Connect(context.Background(), "42"))
	sc := s.accept(t)
	require.Eventually(t, func() bool {
		return tr.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	tempID, err := sender.SendMessage("Hello")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(tempID, "temp-"))

	frame := sender_nextUserMessage(t, sc)
	require.Equal(t, "Hello", frame["content"])
	require.Equal(t, tempID, frame["id"])
}

func sender_nextUserMessage(t *testing.T, sc *serverConn) map[string]any {
	t.Helper()
	for {
		frame := sc.nextFrame(t)
		if frame["type"] == "user_message" {
			return frame
		}
	}
}

func TestSenderSendMessageWhileDisconnected(t *testing.T) {
	s := newWSServer(t)
	tr, router := testTransport(t, s, TransportConfig{})
	sender := NewSender(tr, router, zerolog.Nop())

	var notifications atomic.Int32
	router.OnError(func(err error) {
		require.ErrorIs(t, err, ErrNotConnected)
		notifications.Add(1)
	})

	_, err := sender.SendMessage("Hello")
	require.ErrorIs(t, err, ErrNotConnected)

	// exactly one error notification, no frame on the wire
	require.EqualValues(t, 1, notifications.Load())
	s.expectNoConn(t, 100*time.Millisecond)
}

func TestSenderTypingIsSilentWhileDisconnected(t *testing.T) {
	s := newWSServer(t)
	tr, router := testTransport(t, s, TransportConfig{})
	sender := NewSender(tr, router, zerolog.Nop())

	var notifications atomic.Int32
	router.OnError(func(error) { notifications.Add(1) })

	sender.SendTyping(true)

	require.Zero(t, notifications.Load())
}

func TestSenderFeedbackRequiresConnection(t *testing.T) {
	s := newWSServer(t)
	tr, router := testTransport(t, s, TransportConfig{})
	sender := NewSender(tr, router, zerolog.Nop())

	var notifications atomic.Int32
	router.OnError(func(error) { notifications.Add(1) })

	require.ErrorIs(t, sender.SendFeedback("m1", 5, ""), ErrNotConnected)
	require.EqualValues(t, 1, notifications.Load())
}

func TestSenderFeedbackFrameShape(t *testing.T) {
	s := newWSServer(t)
	tr, router := testTransport(t, s, TransportConfig{})
	sender := NewSender(tr, router, zerolog.Nop())

	require.NoError(t, tr.Connect(context.Background(), "42"))
	sc := s.accept(t)
	require.Eventually(t, func() bool {
		return tr.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sender.SendFeedback("msg-9", 4, "helpful"))

	frame := sc.nextFrame(t)
	require.Equal(t, "feedback", frame["type"])
	require.Equal(t, "msg-9", frame["message_id"])
	require.EqualValues(t, 4, frame["rating"])
	require.Equal(t, "helpful", frame["comment"])
}

func TestSenderTempIDsAreUnique(t *testing.T) {
	sender := NewSender(nil, nil, zerolog.Nop())
	fixed := time.UnixMilli(1700000000000)
	sender.now = func() time.Time { return fixed }

	require.Equal(t, "temp-1700000000000", sender.nextTempID())
	require.Equal(t, "temp-1700000000001", sender.nextTempID())
	require.Equal(t, "temp-1700000000002", sender.nextTempID())
}
