// Package chatwire defines the frames exchanged with the assistant chat
// service over its realtime websocket, plus the REST entity types both the
// websocket and the directory API share.
package chatwire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound frame types pushed by the server.
const (
	FrameChatMessage     = "chat_message"
	FrameUserTyping      = "user_typing"
	FrameAssistantTyping = "assistant_typing"
	FrameMessageReceived = "message_received"
	FrameError           = "error"
)

// Outbound frame types sent by the client.
const (
	FrameUserMessage = "user_message"
	FrameTyping      = "typing"
	FrameFeedback    = "feedback"
)

// Websocket close codes with application meaning. Everything else is an
// ordinary disconnect.
const (
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DeliveryStatus tracks a message's client-side delivery lifecycle. The
// server never sends it; it only exists for locally appended entries.
type DeliveryStatus string

const (
	StatusSending DeliveryStatus = "sending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// Message is a single chat message as the server serializes it.
type Message struct {
	ID        string         `json:"id"`
	ChatID    string         `json:"chat_id,omitempty"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Status    DeliveryStatus `json:"-"`
	Rating    *int           `json:"rating,omitempty"`
}

// Chat is a chat session resource from the directory API.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// ChatMessageEvent carries a server-confirmed message and optional metadata.
type ChatMessageEvent struct {
	Message  Message
	Metadata map[string]any
}

// TypingParty identifies whose typing state a TypingEvent reports.
type TypingParty string

const (
	PartyUser      TypingParty = "user"
	PartyAssistant TypingParty = "assistant"
)

type TypingEvent struct {
	Party    TypingParty
	UserID   string
	IsTyping bool
}

// AckEvent echoes the client-supplied temporary id once the server has
// accepted a user_message frame.
type AckEvent struct {
	TempID string
}

// ErrorEvent is a server-reported error on the socket.
type ErrorEvent struct {
	Message string
}

// UnknownFrameError reports a frame whose type the client does not handle.
// The router logs and drops these without side effects.
type UnknownFrameError struct {
	Type string
}

func (e *UnknownFrameError) Error() string {
	return fmt.Sprintf("unknown frame type %q", e.Type)
}

// envelope is the superset of all inbound frame fields.
type envelope struct {
	Type     string          `json:"type"`
	Message  json.RawMessage `json:"message,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
	IsTyping bool            `json:"is_typing"`
	ID       string          `json:"id,omitempty"`
}

// the error frame reuses the "message" key for a plain string, so it needs a
// second decoding pass distinct from chat_message's object payload.
type errorEnvelope struct {
	Message string `json:"message"`
}

// DecodeFrame parses one inbound websocket frame into a typed event. The
// returned value is one of ChatMessageEvent, TypingEvent, AckEvent or
// ErrorEvent. Malformed JSON yields a decode error; a recognized envelope
// with an unhandled type yields *UnknownFrameError.
func DecodeFrame(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	switch env.Type {
	case FrameChatMessage:
		var msg Message
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, fmt.Errorf("decoding chat_message payload: %w", err)
		}
		return ChatMessageEvent{Message: msg, Metadata: env.Metadata}, nil
	case FrameUserTyping:
		return TypingEvent{Party: PartyUser, UserID: env.UserID, IsTyping: env.IsTyping}, nil
	case FrameAssistantTyping:
		return TypingEvent{Party: PartyAssistant, IsTyping: env.IsTyping}, nil
	case FrameMessageReceived:
		return AckEvent{TempID: env.ID}, nil
	case FrameError:
		var ee errorEnvelope
		if err := json.Unmarshal(data, &ee); err != nil {
			return nil, fmt.Errorf("decoding error payload: %w", err)
		}
		return ErrorEvent{Message: ee.Message}, nil
	default:
		return nil, &UnknownFrameError{Type: env.Type}
	}
}

// UserMessageFrame is the outbound send-message command. ID is a
// client-generated temporary identifier echoed back via message_received.
type UserMessageFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ID      string `json:"id"`
}

func NewUserMessageFrame(content, tempID string) UserMessageFrame {
	return UserMessageFrame{Type: FrameUserMessage, Content: content, ID: tempID}
}

// TypingFrame signals the user's typing state. Best-effort on the wire.
type TypingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

func NewTypingFrame(isTyping bool) TypingFrame {
	return TypingFrame{Type: FrameTyping, IsTyping: isTyping}
}

// FeedbackFrame rates an assistant message.
type FeedbackFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func NewFeedbackFrame(messageID string, rating int, comment string) FeedbackFrame {
	return FeedbackFrame{Type: FrameFeedback, MessageID: messageID, Rating: rating, Comment: comment}
}
