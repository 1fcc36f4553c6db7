package chatclient

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

// Listener signatures for the three event categories the server pushes, plus
// the message_received ack used for optimistic reconciliation.
type (
	MessageListener func(msg chatwire.Message, metadata map[string]any)
	TypingListener  func(ev chatwire.TypingEvent)
	AckListener     func(ev chatwire.AckEvent)
	ErrorListener   func(err error)
)

// UnsubscribeFunc removes exactly one previously registered listener. Calling
// it more than once is a no-op, and it is safe to call from inside the
// listener's own callback.
type UnsubscribeFunc func()

// Router decodes inbound frames and fans them out to all registered
// listeners of the matching category. Unknown frame types are logged and
// dropped; malformed payloads are reported to error listeners and never
// propagate out of the receive path.
type Router struct {
	mu       sync.Mutex
	seq      int
	message  map[int]MessageListener
	typing   map[int]TypingListener
	ack      map[int]AckListener
	errs     map[int]ErrorListener
	logger   zerolog.Logger
}

func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		message: map[int]MessageListener{},
		typing:  map[int]TypingListener{},
		ack:     map[int]AckListener{},
		errs:    map[int]ErrorListener{},
		logger:  logger.With().Str("component", "chat-router").Logger(),
	}
}

func (r *Router) OnMessage(fn MessageListener) UnsubscribeFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextLocked()
	r.message[id] = fn
	return r.unsubscribe(func() { delete(r.message, id) })
}

func (r *Router) OnTyping(fn TypingListener) UnsubscribeFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextLocked()
	r.typing[id] = fn
	return r.unsubscribe(func() { delete(r.typing, id) })
}

func (r *Router) OnAck(fn AckListener) UnsubscribeFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextLocked()
	r.ack[id] = fn
	return r.unsubscribe(func() { delete(r.ack, id) })
}

func (r *Router) OnError(fn ErrorListener) UnsubscribeFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextLocked()
	r.errs[id] = fn
	return r.unsubscribe(func() { delete(r.errs, id) })
}

// Reset drops every registered listener. Used during chat handoff so a
// superseded connection can never reach the new session's state.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message = map[int]MessageListener{}
	r.typing = map[int]TypingListener{}
	r.ack = map[int]AckListener{}
	r.errs = map[int]ErrorListener{}
}

// Dispatch decodes one raw frame and delivers it. It is called from the
// transport's read pump, one frame at a time, preserving arrival order.
func (r *Router) Dispatch(data []byte) {
	ev, err := chatwire.DecodeFrame(data)
	if err != nil {
		if ufe, ok := err.(*chatwire.UnknownFrameError); ok {
			r.logger.Debug().Str("frame_type", ufe.Type).Msg("dropping unknown frame type")
			return
		}
		r.logger.Warn().Err(err).Msg("failed to decode inbound frame")
		r.DispatchError(err)
		return
	}

	switch ev := ev.(type) {
	case chatwire.ChatMessageEvent:
		for _, fn := range r.messageSnapshot() {
			fn(ev.Message, ev.Metadata)
		}
	case chatwire.TypingEvent:
		for _, fn := range r.typingSnapshot() {
			fn(ev)
		}
	case chatwire.AckEvent:
		for _, fn := range r.ackSnapshot() {
			fn(ev)
		}
	case chatwire.ErrorEvent:
		r.DispatchError(&ServerError{Message: ev.Message})
	}
}

// DispatchError delivers a local or server-reported error to all error
// listeners.
func (r *Router) DispatchError(err error) {
	for _, fn := range r.errorSnapshot() {
		fn(err)
	}
}

func (r *Router) nextLocked() int {
	r.seq++
	return r.seq
}

// unsubscribe wraps a removal closure so it runs under the router lock and at
// most once. Listener maps are snapshotted before dispatch, so removal from
// inside a callback cannot deadlock or disturb the in-flight fan-out.
func (r *Router) unsubscribe(remove func()) UnsubscribeFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			remove()
		})
	}
}

func (r *Router) messageSnapshot() []MessageListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MessageListener, 0, len(r.message))
	for _, fn := range r.message {
		out = append(out, fn)
	}
	return out
}

func (r *Router) typingSnapshot() []TypingListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TypingListener, 0, len(r.typing))
	for _, fn := range r.typing {
		out = append(out, fn)
	}
	return out
}

func (r *Router) ackSnapshot() []AckListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AckListener, 0, len(r.ack))
	for _, fn := range r.ack {
		out = append(out, fn)
	}
	return out
}

func (r *Router) errorSnapshot() []ErrorListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorListener, 0, len(r.errs))
	for _, fn := range r.errs {
		out = append(out, fn)
	}
	return out
}
