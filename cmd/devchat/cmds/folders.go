package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazedsettings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/devchat/pkg/conversation"
)

type FoldersSettings struct {
	All bool `glazed:"all"`
}

// FoldersCommand lists the folder tree as rows: one row per visible
// conversation, and one row for a folder that shows none.
type FoldersCommand struct {
	*cmds.CommandDescription
	app *app
}

var _ cmds.GlazeCommand = (*FoldersCommand)(nil)

func NewFoldersCommand(a *app) (*FoldersCommand, error) {
	glazedSection, err := glazedsettings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed section")
	}

	return &FoldersCommand{
		CommandDescription: cmds.NewCommandDescription(
			"folders",
			cmds.WithShort("List folders and their conversations"),
			cmds.WithFlags(
				fields.New("all", fields.TypeBool,
					fields.WithDefault(false),
					fields.WithHelp("Show the conversations of collapsed folders too")),
			),
			cmds.WithSections(glazedSection),
		),
		app: a,
	}, nil
}

func (c *FoldersCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	s := &FoldersSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}

	store, closeStore, err := c.app.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, row := range folderRows(store.Snapshot(), s.All) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// folderRows flattens the tree. Conversations of collapsed folders are left
// out unless all is set.
func folderRows(s conversation.Snapshot, all bool) []types.Row {
	ret := []types.Row{}
	for _, f := range s.Folders {
		visible := f.Conversations
		if !f.IsExpanded && !all {
			visible = nil
		}
		if len(visible) == 0 {
			ret = append(ret, folderRow(f, conversation.Conversation{}, false))
			continue
		}
		for _, c := range visible {
			ret = append(ret, folderRow(f, c, c.ID == s.ActiveConversationID))
		}
	}
	return ret
}

func folderRow(f conversation.Folder, c conversation.Conversation, active bool) types.Row {
	return types.NewRow(
		types.MRP("folder_id", f.ID),
		types.MRP("folder", f.Name),
		types.MRP("expanded", f.IsExpanded),
		types.MRP("conversations", len(f.Conversations)),
		types.MRP("conversation_id", c.ID),
		types.MRP("title", c.Title),
		types.MRP("active", active),
	)
}

func newFolderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name...>",
			Short: "Create a folder",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := joinArgs("folder name", args)
				if err != nil {
					return err
				}
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				f := store.AddFolder(name)
				if err := saved(store); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <id>",
			Short: "Delete a folder and all its conversations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				if !store.DeleteFolder(args[0]) {
					return errors.Errorf("unknown folder %s", args[0])
				}
				return saved(store)
			},
		},
		&cobra.Command{
			Use:   "rename <id> <name...>",
			Short: "Rename a folder",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := joinArgs("folder name", args[1:])
				if err != nil {
					return err
				}
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				if !store.RenameFolder(args[0], name) {
					return errors.Errorf("unknown folder %s", args[0])
				}
				return saved(store)
			},
		},
		&cobra.Command{
			Use:   "toggle <id>",
			Short: "Expand or collapse a folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				if !store.ToggleFolder(args[0]) {
					return errors.Errorf("unknown folder %s", args[0])
				}
				return saved(store)
			},
		},
	)
	return cmd
}
