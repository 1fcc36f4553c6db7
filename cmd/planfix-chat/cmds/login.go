package cmds

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/iccupwin/planfix-ai-assistant/pkg/accounts"
)

func promptUI() *input.UI {
	return &input.UI{Writer: os.Stdout, Reader: os.Stdin}
}

func NewLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the assistant server",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			ui := promptUI()
			email, err := ui.Ask("Email", &input.Options{Required: true, Loop: true})
			if err != nil {
				return err
			}
			password, err := ui.Ask("Password", &input.Options{Required: true, Mask: true})
			if err != nil {
				return err
			}

			client := accounts.NewClient(serverURL(), store, log.Logger)
			user, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return errors.Wrap(err, "login failed")
			}
			fmt.Printf("logged in as %s %s <%s>\n", user.FirstName, user.LastName, user.Email)
			if !user.IsPlanfixConnected {
				fmt.Println("note: no Planfix workspace connected yet")
			}
			return nil
		},
	}
}

func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			client := accounts.NewClient(serverURL(), store, log.Logger)
			if err := client.Logout(); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func NewRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			ui := promptUI()
			email, err := ui.Ask("Email", &input.Options{Required: true, Loop: true})
			if err != nil {
				return err
			}
			firstName, err := ui.Ask("First name", &input.Options{Required: true, Loop: true})
			if err != nil {
				return err
			}
			lastName, err := ui.Ask("Last name", &input.Options{Required: true, Loop: true})
			if err != nil {
				return err
			}
			password, err := ui.Ask("Password", &input.Options{Required: true, Mask: true})
			if err != nil {
				return err
			}

			client := accounts.NewClient(serverURL(), store, log.Logger)
			user, err := client.Register(cmd.Context(), email, password, firstName, lastName)
			if err != nil {
				return errors.Wrap(err, "registration failed")
			}
			fmt.Printf("registered and logged in as %s\n", user.Email)
			return nil
		},
	}
}
