package chatclient

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

// ChatLoader is the slice of the directory API the session layer needs to
// load a chat before its transport starts.
type ChatLoader interface {
	GetChat(ctx context.Context, chatID string) (chatwire.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]chatwire.Message, error)
}

// Config carries everything needed to assemble per-chat clients.
type Config struct {
	BaseURL        string
	TokenFunc      func() string
	OnUnauthorized func()
	OnStateChange  func(ConnState)
	Reconnect      ReconnectPolicy
	SendBuffer     int
	Dialer         *websocket.Dialer
	SessionOptions []SessionOption
	Logger         zerolog.Logger
}

// ChatClient composes transport, router, sender and session for exactly one
// chat id. It is constructed on chat activation and disposed on deactivation;
// nothing about it survives a chat switch.
type ChatClient struct {
	chatID    string
	router    *Router
	transport *Transport
	sender    *Sender
	session   *Session

	detachOnce sync.Once
	detach     func()
}

func NewChatClient(chatID string, cfg Config) *ChatClient {
	router := NewRouter(cfg.Logger)
	session := NewSession(chatID, cfg.Logger, cfg.SessionOptions...)

	transport := NewTransport(TransportConfig{
		BaseURL:        cfg.BaseURL,
		TokenFunc:      cfg.TokenFunc,
		OnUnauthorized: cfg.OnUnauthorized,
		OnStateChange: func(s ConnState) {
			if s == StateDisconnected || s == StateUnauthorized {
				session.ResetOnDisconnect()
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(s)
			}
		},
		Reconnect:  cfg.Reconnect,
		SendBuffer: cfg.SendBuffer,
		Dialer:     cfg.Dialer,
		Logger:     cfg.Logger,
	}, router)

	return &ChatClient{
		chatID:    chatID,
		router:    router,
		transport: transport,
		sender:    NewSender(transport, router, cfg.Logger),
		session:   session,
		detach:    session.Attach(router),
	}
}

func (c *ChatClient) ChatID() string        { return c.chatID }
func (c *ChatClient) Router() *Router       { return c.router }
func (c *ChatClient) Transport() *Transport { return c.transport }
func (c *ChatClient) Sender() *Sender       { return c.sender }
func (c *ChatClient) Session() *Session     { return c.session }

// Load runs the session load state machine against the directory: chat
// metadata and history are fetched concurrently, and the transport may only
// be started once this succeeds.
func (c *ChatClient) Load(ctx context.Context, loader ChatLoader) error {
	c.session.BeginLoad()

	var (
		chat    chatwire.Chat
		history []chatwire.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chat, err = loader.GetChat(gctx, c.chatID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = loader.ListMessages(gctx, c.chatID)
		return err
	})
	if err := g.Wait(); err != nil {
		c.session.LoadFailed(err)
		return err
	}
	c.session.LoadSucceeded(chat.Title, history)
	return nil
}

// Start opens the websocket. The session must be ready.
func (c *ChatClient) Start(ctx context.Context) error {
	if c.session.Load() != LoadReady {
		return ErrNotConnected
	}
	return c.transport.Connect(ctx, c.chatID)
}

// SendMessage appends the optimistic entry and puts the frame on the wire.
// When the transport rejects the send, nothing is appended: the action is
// discarded and the user must resend.
func (c *ChatClient) SendMessage(content string) (string, error) {
	tempID, err := c.sender.SendMessage(content)
	if err != nil {
		return "", err
	}
	c.session.AppendOptimistic(tempID, content)
	return tempID, nil
}

func (c *ChatClient) SendTyping(isTyping bool) {
	c.sender.SendTyping(isTyping)
}

func (c *ChatClient) SendFeedback(messageID string, rating int, comment string) error {
	return c.sender.SendFeedback(messageID, rating, comment)
}

// Close deregisters every listener and closes the connection. Idempotent.
func (c *ChatClient) Close() {
	c.detachOnce.Do(func() {
		c.detach()
		c.router.Reset()
	})
	c.transport.Disconnect()
}

// Switcher owns the active chat. Activation is an atomic handoff: the
// previous client's listeners are deregistered and its connection closed
// before the new client exists, so a superseded connection's events can never
// mutate the new chat's state.
type Switcher struct {
	cfg    Config
	loader ChatLoader

	mu     sync.Mutex
	active *ChatClient
}

func NewSwitcher(cfg Config, loader ChatLoader) *Switcher {
	return &Switcher{cfg: cfg, loader: loader}
}

// Activate switches to chatID: closes the previous client, loads the chat
// from the directory, and starts the transport. On load failure the returned
// client is in the errored load state with its transport never started.
func (sw *Switcher) Activate(ctx context.Context, chatID string) (*ChatClient, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.active != nil {
		sw.active.Close()
		sw.active = nil
	}

	c := NewChatClient(chatID, sw.cfg)
	sw.active = c

	if err := c.Load(ctx, sw.loader); err != nil {
		return c, err
	}
	if err := c.Start(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Active returns the currently active chat client, if any.
func (sw *Switcher) Active() *ChatClient {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.active
}

// Deactivate closes the active client, if any.
func (sw *Switcher) Deactivate() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.active != nil {
		sw.active.Close()
		sw.active = nil
	}
}
