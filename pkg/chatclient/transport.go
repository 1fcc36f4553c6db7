package chatclient

import (
	"context"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

// ConnState is the transport's connection state. It is owned exclusively by
// the Transport; everything else only observes it.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateUnauthorized ConnState = "closed-unauthorized"
)

const (
	defaultSendBuffer   = 16
	writeTimeout        = 10 * time.Second
	pongTimeout         = 60 * time.Second
	pingInterval        = 30 * time.Second
	maxInboundFrameSize = 1 << 20
)

// ReconnectPolicy controls automatic redial after an unexpected close.
// Unauthorized closes and explicit disconnects are never retried.
type ReconnectPolicy struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     uint64
}

// DefaultReconnectPolicy is a bounded exponential backoff with jitter.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:         true,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		MaxAttempts:     6,
	}
}

// TransportConfig wires a Transport to its environment.
type TransportConfig struct {
	// BaseURL is the server's http(s) base URL; it is rewritten to ws(s)
	// when the websocket target is built.
	BaseURL string

	// TokenFunc supplies the bearer token attached as a query credential.
	TokenFunc func() string

	// OnUnauthorized fires at most once per transport when the server
	// closes the socket with the unauthorized close code. It is expected to
	// purge credentials and route the user back to login.
	OnUnauthorized func()

	// OnStateChange observes connection state transitions. It is invoked
	// synchronously and must not call back into the Transport.
	OnStateChange func(ConnState)

	Reconnect  ReconnectPolicy
	SendBuffer int
	Dialer     *websocket.Dialer
	Logger     zerolog.Logger
}

// connSession is one live websocket connection. A new session is created per
// successful dial so stale pump goroutines can never touch a successor.
type connSession struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	gen    int
}

// Transport manages exactly one live websocket connection bound to a chat
// id. It is a per-chat value: construct on activation, dispose on
// deactivation.
type Transport struct {
	cfg    TransportConfig
	router *Router
	logger zerolog.Logger

	mu       sync.Mutex
	state    ConnState
	cur      *connSession
	gen      int
	chatID   string
	explicit bool

	unauthorizedOnce sync.Once
}

func NewTransport(cfg TransportConfig, router *Router) *Transport {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return &Transport{
		cfg:    cfg,
		router: router,
		logger: cfg.Logger.With().Str("component", "chat-transport").Logger(),
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (t *Transport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ChatID returns the chat id this transport is bound to, if any.
func (t *Transport) ChatID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chatID
}

// Connect starts a connection attempt scoped to chatID. It transitions to
// connecting and returns; success or failure is observed asynchronously
// through state changes and error events, not through a return value.
func (t *Transport) Connect(ctx context.Context, chatID string) error {
	t.mu.Lock()
	if t.state == StateConnecting || t.state == StateConnected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.gen++
	gen := t.gen
	t.chatID = chatID
	t.explicit = false
	changed := t.setStateLocked(StateConnecting)
	t.mu.Unlock()
	t.notifyState(changed, StateConnecting)

	go func() {
		if err := t.dial(ctx, gen, chatID); err != nil {
			t.dialFailed(ctx, gen, chatID, err)
		}
	}()
	return nil
}

// Disconnect closes the connection if one is open. It is idempotent and safe
// to call in any state.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.explicit = true
	t.gen++
	cur := t.cur
	t.cur = nil
	changed := t.setStateLocked(StateDisconnected)
	t.mu.Unlock()
	t.notifyState(changed, StateDisconnected)

	if cur != nil {
		close(cur.done)
		_ = cur.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = cur.conn.Close()
	}
}

// Send enqueues one encoded frame on the bounded outbound queue. It fails
// with ErrNotConnected outside the connected state and with
// ErrSendBufferFull when the queue is saturated.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	cur := t.cur
	if t.state != StateConnected || cur == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.mu.Unlock()

	select {
	case cur.sendCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// dial performs one connection attempt. On success it installs the session,
// transitions to connected and starts the pumps.
func (t *Transport) dial(ctx context.Context, gen int, chatID string) error {
	target, err := t.websocketURL(chatID)
	if err != nil {
		return err
	}

	t.logger.Debug().Str("chat_id", chatID).Msg("dialing chat websocket")
	conn, resp, err := t.cfg.Dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.Wrap(err, "dialing chat websocket")
	}

	t.mu.Lock()
	if gen != t.gen || t.explicit {
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	cs := &connSession{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, t.cfg.SendBuffer),
		done:   make(chan struct{}),
		gen:    gen,
	}
	t.cur = cs
	changed := t.setStateLocked(StateConnected)
	t.mu.Unlock()
	t.notifyState(changed, StateConnected)

	t.logger.Debug().Str("chat_id", chatID).Str("conn_id", cs.id).Msg("chat websocket connected")

	conn.SetReadLimit(maxInboundFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	go t.writePump(cs)
	go t.readPump(cs, chatID)
	return nil
}

func (t *Transport) dialFailed(ctx context.Context, gen int, chatID string, err error) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	changed := t.setStateLocked(StateDisconnected)
	explicit := t.explicit
	t.mu.Unlock()
	t.notifyState(changed, StateDisconnected)

	t.logger.Warn().Err(err).Str("chat_id", chatID).Msg("chat websocket dial failed")
	t.router.DispatchError(err)
	if !explicit && t.cfg.Reconnect.Enabled {
		go t.reconnectLoop(ctx, gen, chatID)
	}
}

func (t *Transport) readPump(cs *connSession, chatID string) {
	for {
		_, data, err := cs.conn.ReadMessage()
		if err != nil {
			t.handleReadError(cs, chatID, err)
			return
		}
		t.router.Dispatch(data)
	}
}

func (t *Transport) writePump(cs *connSession) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cs.done:
			return
		case data := <-cs.sendCh:
			_ = cs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logger.Warn().Err(err).Msg("chat websocket write failed")
				t.router.DispatchError(errors.Wrap(err, "writing frame"))
				return
			}
		case <-ticker.C:
			_ = cs.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		}
	}
}

// handleReadError runs the close taxonomy: unauthorized closes are fatal and
// purge credentials exactly once, everything else is an ordinary disconnect
// that may trigger the bounded reconnect policy.
func (t *Transport) handleReadError(cs *connSession, chatID string, err error) {
	t.mu.Lock()
	if cs.gen != t.gen {
		// superseded connection, its teardown already happened
		t.mu.Unlock()
		return
	}
	t.cur = nil
	explicit := t.explicit

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == chatwire.CloseUnauthorized {
		changed := t.setStateLocked(StateUnauthorized)
		t.mu.Unlock()
		t.notifyState(changed, StateUnauthorized)
		close(cs.done)
		_ = cs.conn.Close()

		t.logger.Warn().Str("chat_id", chatID).Msg("chat websocket closed unauthorized, forcing logout")
		t.unauthorizedOnce.Do(func() {
			if t.cfg.OnUnauthorized != nil {
				t.cfg.OnUnauthorized()
			}
		})
		return
	}

	gen := cs.gen
	changed := t.setStateLocked(StateDisconnected)
	t.mu.Unlock()
	t.notifyState(changed, StateDisconnected)
	close(cs.done)
	_ = cs.conn.Close()

	if explicit {
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		t.logger.Warn().Err(err).Str("chat_id", chatID).Msg("chat websocket read failed")
		t.router.DispatchError(errors.Wrap(err, "connection lost"))
	} else {
		t.logger.Debug().Str("chat_id", chatID).Msg("chat websocket closed")
	}
	if t.cfg.Reconnect.Enabled {
		go t.reconnectLoop(context.Background(), gen, chatID)
	}
}

// reconnectLoop redials with bounded exponential backoff and jitter. It
// aborts as soon as the session is superseded, explicitly disconnected, or
// closed unauthorized.
func (t *Transport) reconnectLoop(ctx context.Context, gen int, chatID string) {
	bo := backoff.NewExponentialBackOff()
	if t.cfg.Reconnect.InitialInterval > 0 {
		bo.InitialInterval = t.cfg.Reconnect.InitialInterval
	}
	if t.cfg.Reconnect.MaxInterval > 0 {
		bo.MaxInterval = t.cfg.Reconnect.MaxInterval
	}
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = bo
	if t.cfg.Reconnect.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(bo, t.cfg.Reconnect.MaxAttempts)
	}
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		t.mu.Lock()
		if gen != t.gen || t.explicit || t.state == StateUnauthorized {
			t.mu.Unlock()
			return backoff.Permanent(errors.New("reconnect aborted"))
		}
		changed := t.setStateLocked(StateConnecting)
		t.mu.Unlock()
		t.notifyState(changed, StateConnecting)

		attempt++
		t.logger.Debug().Int("attempt", attempt).Str("chat_id", chatID).Msg("reconnecting chat websocket")
		if err := t.dial(ctx, gen, chatID); err != nil {
			t.mu.Lock()
			reverted := false
			if gen == t.gen {
				reverted = t.setStateLocked(StateDisconnected)
			}
			t.mu.Unlock()
			t.notifyState(reverted, StateDisconnected)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		t.logger.Warn().Err(err).Str("chat_id", chatID).Int("attempts", attempt).Msg("chat websocket reconnect gave up")
		t.router.DispatchError(errors.Wrap(err, "reconnect failed"))
	}
}

// setStateLocked records a transition and reports whether anything changed.
// Observers are notified via notifyState after the lock is released.
func (t *Transport) setStateLocked(s ConnState) bool {
	if t.state == s {
		return false
	}
	t.state = s
	return true
}

func (t *Transport) notifyState(changed bool, s ConnState) {
	if changed && t.cfg.OnStateChange != nil {
		t.cfg.OnStateChange(s)
	}
}

// websocketURL builds ws(s)://host/ws/chat/{chatID}/?token=... from the
// configured base URL.
func (t *Transport) websocketURL(chatID string) (string, error) {
	u, err := url.Parse(t.cfg.BaseURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing base URL")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = path.Join(u.Path, "ws", "chat", chatID) + "/"

	q := u.Query()
	if t.cfg.TokenFunc != nil {
		q.Set("token", t.cfg.TokenFunc())
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
