package cmds

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage chat sessions",
	}
	cmd.AddCommand(newChatsListCmd(), newChatsCreateCmd(), newChatsRenameCmd(), newChatsDeleteCmd())
	return cmd
}

func newChatsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireAuth()
			if err != nil {
				return err
			}
			chats, err := newDirectory(store).ListChats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
			for _, c := range chats {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newChatsCreateCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireAuth()
			if err != nil {
				return err
			}
			chat, err := newDirectory(store).CreateChat(cmd.Context(), title)
			if err != nil {
				return err
			}
			fmt.Printf("created chat %s (%s)\n", chat.ID, chat.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "chat title (server picks one when empty)")
	return cmd
}

func newChatsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chat-id> <title>",
		Short: "Rename a chat session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireAuth()
			if err != nil {
				return err
			}
			chat, err := newDirectory(store).RenameChat(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("renamed chat %s to %q\n", chat.ID, chat.Title)
			return nil
		},
	}
}

func newChatsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireAuth()
			if err != nil {
				return err
			}
			if err := newDirectory(store).DeleteChat(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted chat %s\n", args[0])
			return nil
		},
	}
}
