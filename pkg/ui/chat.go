// Package ui is the terminal chat surface: a viewport over the session's
// message list, a textarea wired to typing signals, and a status line that
// tracks the transport's connection state.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatclient"
	"github.com/iccupwin/planfix-ai-assistant/pkg/chatwire"
)

// Messages pushed into the program from the chat client's callbacks.
type (
	// SessionChangedMsg signals that the session state mutated and the view
	// should re-render.
	SessionChangedMsg struct{}
	// StateChangedMsg carries a transport state transition.
	StateChangedMsg chatclient.ConnState
	// ForcedLogoutMsg ends the program after an unauthorized close.
	ForcedLogoutMsg struct{}

	typingIdleMsg struct{}
)

const typingIdle = 2 * time.Second

// ChatModel is the interactive chat program for one active chat.
type ChatModel struct {
	client *chatclient.ChatClient
	events <-chan tea.Msg
	logger zerolog.Logger

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width, height int
	ready         bool
	connState     chatclient.ConnState
	typingActive  bool
	errLine       string
	statusLine    string
	forcedLogout  bool
}

func NewChatModel(client *chatclient.ChatClient, events <-chan tea.Msg, logger zerolog.Logger) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Message the assistant..."
	ta.Focus()
	ta.Prompt = "| "
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))

	return ChatModel{
		client:    client,
		events:    events,
		logger:    logger.With().Str("component", "chat-ui").Logger(),
		textarea:  ta,
		spinner:   sp,
		connState: client.Transport().State(),
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForEvent())
}

func (m ChatModel) waitForEvent() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 6
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.textarea.SetWidth(msg.Width - 2)
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(msg.Width-4)); err == nil {
			m.renderer = r
		}
		m.refreshViewport(true)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.stopTyping()
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "ctrl+y":
			m.copyLastAnswer()
		default:
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
			if !m.typingActive && strings.TrimSpace(m.textarea.Value()) != "" {
				m.typingActive = true
				m.client.SendTyping(true)
			}
			if m.typingActive {
				cmds = append(cmds, tea.Tick(typingIdle, func(time.Time) tea.Msg { return typingIdleMsg{} }))
			}
			return m, tea.Batch(cmds...)
		}

	case typingIdleMsg:
		m.stopTyping()

	case SessionChangedMsg:
		if err := m.client.Session().LastError(); err != nil {
			m.errLine = err.Error()
		}
		m.refreshViewport(true)
		cmds = append(cmds, m.waitForEvent())

	case StateChangedMsg:
		m.connState = chatclient.ConnState(msg)
		if m.connState == chatclient.StateConnected {
			m.errLine = ""
		}
		cmds = append(cmds, m.waitForEvent())

	case ForcedLogoutMsg:
		m.forcedLogout = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// ForcedLogout reports whether the program ended because the server revoked
// the credential.
func (m ChatModel) ForcedLogout() bool { return m.forcedLogout }

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.textarea.Value())
	if content == "" {
		return m, nil
	}
	m.stopTyping()
	if _, err := m.client.SendMessage(content); err != nil {
		m.errLine = err.Error()
		return m, nil
	}
	m.errLine = ""
	m.textarea.Reset()
	m.refreshViewport(true)
	return m, nil
}

func (m *ChatModel) stopTyping() {
	if m.typingActive {
		m.typingActive = false
		m.client.SendTyping(false)
	}
}

func (m *ChatModel) copyLastAnswer() {
	msgs := m.client.Session().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chatwire.RoleAssistant {
			if err := clipboard.WriteAll(msgs[i].Content); err != nil {
				m.errLine = "clipboard: " + err.Error()
			} else {
				m.statusLine = "copied last answer"
			}
			return
		}
	}
}

func (m *ChatModel) refreshViewport(gotoBottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

func (m *ChatModel) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.client.Session().Messages() {
		switch msg.Role {
		case chatwire.RoleAssistant:
			b.WriteString(assistantLabelStyle.Render("assistant"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg.Content))
		case chatwire.RoleUser:
			label := userLabelStyle.Render("you")
			switch msg.Status {
			case chatwire.StatusSending:
				label += pendingStyle.Render(" (sending...)")
			case chatwire.StatusFailed:
				label += failedStyle.Render(" (failed, resend)")
			}
			b.WriteString(label)
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		default:
			continue
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *ChatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content + "\n"
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

func (m ChatModel) View() string {
	if !m.ready {
		return "loading..."
	}

	title := m.client.Session().Title()
	if title == "" {
		title = m.client.ChatID()
	}
	state := string(m.connState)
	badge := state
	if st, ok := stateStyles[state]; ok {
		badge = st.Render(state)
	}
	header := headerStyle.Render(title) + "  " + badge

	var status string
	switch {
	case m.client.Session().AssistantTyping():
		status = m.spinner.View() + typingStyle.Render(" assistant is typing...")
	case m.statusLine != "":
		status = typingStyle.Render(m.statusLine)
	}
	errLine := ""
	if m.errLine != "" {
		errLine = errorStyle.Render(m.errLine)
	}

	help := helpStyle.Render("enter: send - ctrl+y: copy last answer - esc: quit")

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		status,
		errLine,
		m.textarea.View(),
		help,
	)
}
