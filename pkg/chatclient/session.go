package chatclient

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

// LoadState is the session's directory-load state machine. The transport is
// only started once the session is ready.
type LoadState string

const (
	LoadIdle    LoadState = "idle"
	LoadLoading LoadState = "loading"
	LoadReady   LoadState = "ready"
	LoadErrored LoadState = "errored"
)

type SessionOption func(*Session)

// WithoutReconciliation preserves the original web client's behavior where an
// optimistic entry and its server-confirmed counterpart coexist as two list
// entries instead of being merged.
func WithoutReconciliation() SessionOption {
	return func(s *Session) { s.reconcile = false }
}

// WithChangeNotifier registers a hook invoked after every state mutation so a
// reactive consumer can re-render. The hook runs outside the session lock.
func WithChangeNotifier(fn func()) SessionOption {
	return func(s *Session) { s.onChange = fn }
}

// Session is the single source of truth for what the active chat displays:
// the ordered message list, typing flags, load state and last error. It owns
// this state exclusively for one chat id; switching chats discards it.
type Session struct {
	mu sync.Mutex

	chatID          string
	title           string
	messages        []chatwire.Message
	pending         []string
	load            LoadState
	userTyping      bool
	assistantTyping bool
	lastErr         error

	reconcile bool
	onChange  func()
	now       func() time.Time
	logger    zerolog.Logger
}

func NewSession(chatID string, logger zerolog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		chatID:    chatID,
		load:      LoadIdle,
		reconcile: true,
		now:       time.Now,
		logger:    logger.With().Str("component", "chat-session").Str("chat_id", chatID).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach registers the session's handlers on the router and returns a detach
// func that removes all of them. Detach is part of the chat handoff: it must
// run before a new chat's session attaches.
func (s *Session) Attach(router *Router) func() {
	unsubs := []UnsubscribeFunc{
		router.OnMessage(s.applyMessage),
		router.OnTyping(s.applyTyping),
		router.OnAck(s.applyAck),
		router.OnError(s.applyError),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// BeginLoad transitions idle (or errored, on retry) to loading.
func (s *Session) BeginLoad() {
	s.mu.Lock()
	s.load = LoadLoading
	s.mu.Unlock()
	s.notify()
}

// LoadSucceeded installs the history fetched from the directory and
// transitions to ready.
func (s *Session) LoadSucceeded(title string, history []chatwire.Message) {
	s.mu.Lock()
	s.title = title
	s.messages = make([]chatwire.Message, len(history))
	copy(s.messages, history)
	for i := range s.messages {
		s.messages[i].Status = chatwire.StatusSent
	}
	s.pending = nil
	s.load = LoadReady
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Session) LoadFailed(err error) {
	s.mu.Lock()
	s.load = LoadErrored
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}

// AppendOptimistic inserts the user's message immediately, before any server
// acknowledgment, with status sending.
func (s *Session) AppendOptimistic(tempID, content string) {
	s.mu.Lock()
	s.messages = append(s.messages, chatwire.Message{
		ID:        tempID,
		ChatID:    s.chatID,
		Role:      chatwire.RoleUser,
		Content:   content,
		CreatedAt: s.now(),
		Status:    chatwire.StatusSending,
	})
	s.pending = append(s.pending, tempID)
	s.mu.Unlock()
	s.notify()
}

// ResetOnDisconnect clears the ephemeral typing flags and fails any
// optimistic entries still awaiting confirmation.
func (s *Session) ResetOnDisconnect() {
	s.mu.Lock()
	s.userTyping = false
	s.assistantTyping = false
	for _, tempID := range s.pending {
		if i := s.indexOfLocked(tempID); i >= 0 {
			s.messages[i].Status = chatwire.StatusFailed
		}
	}
	s.pending = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Session) ChatID() string { return s.chatID }

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) Load() LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load
}

// Messages returns a copy of the ordered message list.
func (s *Session) Messages() []chatwire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatwire.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) AssistantTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistantTyping
}

func (s *Session) UserTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userTyping
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// applyMessage appends a server-confirmed message. Under reconciliation a
// confirmed user message replaces the oldest optimistic entry still awaiting
// its counterpart, in place, so the list never shows both.
func (s *Session) applyMessage(msg chatwire.Message, _ map[string]any) {
	msg.Status = chatwire.StatusSent

	s.mu.Lock()
	if s.reconcile && msg.Role == chatwire.RoleUser && len(s.pending) > 0 {
		tempID := s.pending[0]
		s.pending = s.pending[1:]
		if i := s.indexOfLocked(tempID); i >= 0 {
			s.messages[i] = msg
			s.mu.Unlock()
			s.notify()
			return
		}
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) applyTyping(ev chatwire.TypingEvent) {
	s.mu.Lock()
	switch ev.Party {
	case chatwire.PartyAssistant:
		s.assistantTyping = ev.IsTyping
	case chatwire.PartyUser:
		s.userTyping = ev.IsTyping
	}
	s.mu.Unlock()
	s.notify()
}

// applyAck flips the matching optimistic entry from sending to sent. The
// entry stays in the pending list until its confirmed counterpart arrives.
func (s *Session) applyAck(ev chatwire.AckEvent) {
	s.mu.Lock()
	if i := s.indexOfLocked(ev.TempID); i >= 0 && s.messages[i].Status == chatwire.StatusSending {
		s.messages[i].Status = chatwire.StatusSent
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) applyError(err error) {
	s.logger.Debug().Err(err).Msg("session error")
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}

func (s *Session) indexOfLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
