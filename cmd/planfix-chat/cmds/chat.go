package cmds

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iccupwin/planfix-ai-assistant/pkg/chatclient"
	"github.com/iccupwin/planfix-ai-assistant/pkg/logging"
	"github.com/iccupwin/planfix-ai-assistant/pkg/ui"
)

func NewChatCmd() *cobra.Command {
	var (
		createTitle string
		noReconcile bool
	)
	cmd := &cobra.Command{
		Use:   "chat [chat-id]",
		Short: "Open an interactive chat with the assistant",
		Long: `Open an interactive chat with the assistant.

Without a chat id the most recently updated chat is opened, or a new one is
created when none exist.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// the fullscreen program owns the terminal, logs go to a file
			// or nowhere
			logger, err := logging.TUIInit(logging.Settings{
				Level:   viper.GetString("log-level"),
				LogFile: viper.GetString("log-file"),
			})
			if err != nil {
				return err
			}

			store, err := requireAuth()
			if err != nil {
				return err
			}
			dir := newDirectory(store)
			ctx := cmd.Context()

			chatID := ""
			if len(args) == 1 {
				chatID = args[0]
			} else {
				chats, err := dir.ListChats(ctx)
				if err != nil {
					return err
				}
				if len(chats) > 0 {
					chatID = chats[0].ID
				} else {
					chat, err := dir.CreateChat(ctx, createTitle)
					if err != nil {
						return err
					}
					chatID = chat.ID
				}
			}

			// callbacks from the transport and session goroutines feed the
			// program through this channel
			events := make(chan tea.Msg, 64)
			push := func(msg tea.Msg) {
				select {
				case events <- msg:
				default:
				}
			}
			store.SetLogoutHook(func() { push(ui.ForcedLogoutMsg{}) })

			sessionOpts := []chatclient.SessionOption{
				chatclient.WithChangeNotifier(func() { push(ui.SessionChangedMsg{}) }),
			}
			if noReconcile {
				sessionOpts = append(sessionOpts, chatclient.WithoutReconciliation())
			}

			sw := chatclient.NewSwitcher(chatclient.Config{
				BaseURL:        serverURL(),
				TokenFunc:      store.Token,
				OnUnauthorized: store.ClearOnce,
				OnStateChange:  func(s chatclient.ConnState) { push(ui.StateChangedMsg(s)) },
				Reconnect:      chatclient.DefaultReconnectPolicy(),
				SessionOptions: sessionOpts,
				Logger:         logger,
			}, dir)
			defer sw.Deactivate()

			client, err := sw.Activate(ctx, chatID)
			if err != nil {
				return errors.Wrap(err, "opening chat")
			}

			p := tea.NewProgram(ui.NewChatModel(client, events, logger), tea.WithAltScreen())
			final, err := p.Run()
			if err != nil {
				return err
			}
			if m, ok := final.(ui.ChatModel); ok && m.ForcedLogout() {
				fmt.Println("session expired; run `planfix-chat login` to sign in again")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&createTitle, "title", "", "title when a new chat has to be created")
	cmd.Flags().BoolVar(&noReconcile, "no-reconcile", false, "keep optimistic and confirmed messages as separate entries")
	return cmd
}
