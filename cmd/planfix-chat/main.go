package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iccupwin/planfix-ai-assistant/cmd/planfix-chat/cmds"
	"github.com/iccupwin/planfix-ai-assistant/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "planfix-chat",
	Short: "Terminal client for the Planfix AI assistant",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger once --log-level and co are parsed
		return logging.Init(logging.Settings{
			Level:   viper.GetString("log-level"),
			LogFile: viper.GetString("log-file"),
		})
	},
}

func initConfig() {
	viper.SetEnvPrefix("PLANFIX_CHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, "planfix-chat"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		_ = viper.ReadInConfig()
	}
}

func main() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("server", "http://localhost:8000", "assistant server base URL")
	flags.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("credentials-file", "", "override the credentials file location")
	for _, name := range []string{"server", "log-level", "log-file", "credentials-file"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(
		cmds.NewLoginCmd(),
		cmds.NewLogoutCmd(),
		cmds.NewRegisterCmd(),
		cmds.NewChatsCmd(),
		cmds.NewChatCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
