package chatclient

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

// Sender turns user intents into outbound frames. Message and feedback sends
// require a connected transport and raise exactly one error notification when
// it is unavailable; typing signals are best-effort and dropped silently.
type Sender struct {
	transport *Transport
	router    *Router
	logger    zerolog.Logger

	mu     sync.Mutex
	now    func() time.Time
	lastMs int64
}

func NewSender(t *Transport, r *Router, logger zerolog.Logger) *Sender {
	return &Sender{
		transport: t,
		router:    r,
		logger:    logger.With().Str("component", "chat-sender").Logger(),
		now:       time.Now,
	}
}

// SendMessage encodes a user_message frame carrying a freshly generated
// temporary id and returns that id so the session can reconcile the
// optimistic entry later.
func (s *Sender) SendMessage(content string) (string, error) {
	tempID := s.nextTempID()
	data, err := json.Marshal(chatwire.NewUserMessageFrame(content, tempID))
	if err != nil {
		return "", err
	}
	if err := s.transport.Send(data); err != nil {
		s.logger.Debug().Err(err).Msg("send message rejected")
		s.router.DispatchError(err)
		return "", err
	}
	return tempID, nil
}

// SendTyping signals the user's typing state. Undeliverable typing frames are
// dropped without any error notification.
func (s *Sender) SendTyping(isTyping bool) {
	data, err := json.Marshal(chatwire.NewTypingFrame(isTyping))
	if err != nil {
		return
	}
	if err := s.transport.Send(data); err != nil {
		s.logger.Trace().Err(err).Msg("typing signal dropped")
	}
}

// SendFeedback rates an assistant message. Same connectivity precondition
// and error behavior as SendMessage; the rating is fire-and-forget and never
// mutated locally before server confirmation.
func (s *Sender) SendFeedback(messageID string, rating int, comment string) error {
	data, err := json.Marshal(chatwire.NewFeedbackFrame(messageID, rating, comment))
	if err != nil {
		return err
	}
	if err := s.transport.Send(data); err != nil {
		s.logger.Debug().Err(err).Msg("send feedback rejected")
		s.router.DispatchError(err)
		return err
	}
	return nil
}

// nextTempID keeps the web client's millisecond-epoch id format but
// guarantees uniqueness across rapid consecutive sends.
func (s *Sender) nextTempID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	return fmt.Sprintf("temp-%d", ms)
}
