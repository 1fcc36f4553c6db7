package chatclient

import "errors"

var (
	// ErrNotConnected is raised when an outbound command is attempted while
	// the transport is not in the connected state. The frame is dropped, not
	// queued; the caller must resend.
	ErrNotConnected = errors.New("connection not established")

	// ErrSendBufferFull is raised when the bounded outbound queue is full.
	ErrSendBufferFull = errors.New("outbound send queue full")

	// ErrAlreadyConnected is returned by Connect when a connection attempt
	// is already in flight or established for this transport.
	ErrAlreadyConnected = errors.New("transport already connected")
)

// ServerError is an error frame pushed by the server over the websocket.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}
