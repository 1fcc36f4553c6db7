// Package cmds holds the planfix-chat subcommands.
package cmds

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/iccupwin/planfix-ai-assistant/pkg/credentials"
	"github.com/iccupwin/planfix-ai-assistant/pkg/directory"
)

func serverURL() string {
	return viper.GetString("server")
}

func openStore() (*credentials.Store, error) {
	path := viper.GetString("credentials-file")
	if path == "" {
		var err error
		path, err = credentials.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	store := credentials.NewStore(path, log.Logger)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

// requireAuth loads the credential store and fails with a login hint when no
// token is present.
func requireAuth() (*credentials.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	if store.Token() == "" {
		return nil, errors.New("not logged in; run `planfix-chat login` first")
	}
	return store, nil
}

func newDirectory(store *credentials.Store) *directory.Client {
	return directory.NewClient(serverURL(), store.Token, log.Logger)
}
