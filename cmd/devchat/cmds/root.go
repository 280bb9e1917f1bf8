// Package cmds implements the devchat command line.
package cmds

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/persistence"
	"github.com/go-go-golems/devchat/pkg/settings"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	settings *settings.Settings
}

var persistentFlagKeys = map[string]string{
	"storage-backend": "storage.backend",
	"storage-path":    "storage.path",
	"slot":            "storage.slot",
	"provider":        "provider.name",
	"model":           "provider.model",
	"base-url":        "provider.base-url",
}

// NewRootCmd creates the devchat command tree. Configuration is read by
// viper from ~/.devchat/config.yaml, DEVCHAT_ environment variables and the
// persistent flags; logging is set up by the glazed logging flags.
func NewRootCmd() (*cobra.Command, error) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "devchat",
		Short:         "Organize programming conversations in folders and ask a model about them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.InitLoggerFromViper(); err != nil {
				return err
			}
			return a.init()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("storage-backend", "", "Storage backend: file, sqlite or memory")
	flags.String("storage-path", "", "Storage directory (file) or database file (sqlite)")
	flags.String("slot", "", "Name of the storage slot")
	flags.String("provider", "", "Model provider: claude, openai or echo")
	flags.String("model", "", "Model name")
	flags.String("base-url", "", "Provider base URL")
	for flag, key := range persistentFlagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, errors.Wrapf(err, "could not bind --%s", flag)
		}
	}

	if err := clay.InitGlazed("devchat", rootCmd); err != nil {
		return nil, err
	}
	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	foldersCmd, err := NewFoldersCommand(a)
	if err != nil {
		return nil, err
	}
	foldersCobra, err := cli.BuildCobraCommand(foldersCmd)
	if err != nil {
		return nil, err
	}
	convCmd, err := newConvCmd(a)
	if err != nil {
		return nil, err
	}

	rootCmd.AddCommand(
		foldersCobra,
		newFolderCmd(a),
		convCmd,
		newAskCmd(a),
	)

	return rootCmd, nil
}

func (a *app) init() error {
	v := viper.GetViper()
	if err := settings.BindViper(v); err != nil {
		return err
	}
	s, err := settings.Load(v)
	if err != nil {
		return err
	}
	a.settings = s
	return nil
}

// openStore opens the configured slot and loads the store from it. The
// returned function releases the slot.
func (a *app) openStore(ctx context.Context) (*conversation.Store, func(), error) {
	slot, closeSlot, err := a.openSlot()
	if err != nil {
		return nil, nil, err
	}
	store, err := conversation.Open(ctx, slot)
	if err != nil {
		closeSlot()
		return nil, nil, err
	}
	return store, closeSlot, nil
}

func (a *app) openSlot() (persistence.Slot, func(), error) {
	s := a.settings
	switch s.Storage.Backend {
	case settings.BackendMemory:
		return persistence.NewMemorySlot(s.Storage.Slot), func() {}, nil

	case settings.BackendSQLite:
		path, err := s.StoragePath()
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, errors.Wrap(err, "could not create database directory")
		}
		dsn, err := persistence.SQLiteDSNForFile(path)
		if err != nil {
			return nil, nil, err
		}
		slot, err := persistence.NewSQLiteSlot(dsn, s.Storage.Slot)
		if err != nil {
			return nil, nil, err
		}
		return slot, func() {
			if err := slot.Close(); err != nil {
				log.Warn().Err(err).Msg("Could not close database")
			}
		}, nil

	default:
		dir, err := s.StoragePath()
		if err != nil {
			return nil, nil, err
		}
		slot, err := persistence.NewFileSlot(dir, s.Storage.Slot)
		if err != nil {
			return nil, nil, err
		}
		return slot, func() {}, nil
	}
}

// joinArgs joins the words of a name given on the command line and rejects
// blank names.
func joinArgs(what string, args []string) (string, error) {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return "", errors.Errorf("%s cannot be empty", what)
	}
	return name, nil
}

func saved(store *conversation.Store) error {
	if err := store.LastSaveError(); err != nil {
		return errors.Wrap(err, "could not save conversations")
	}
	return nil
}
