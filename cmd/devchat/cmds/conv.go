package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazedsettings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/markdown"
)

var errNoActiveConversation = errors.New("no active conversation, pick one with 'devchat conv select'")

// resolveConversation returns the conversation named by args, or the active
// one when args is empty.
func resolveConversation(store *conversation.Store, args []string) (conversation.Conversation, error) {
	if len(args) == 0 {
		c, ok := store.ActiveConversation()
		if !ok {
			return conversation.Conversation{}, errNoActiveConversation
		}
		return c, nil
	}
	c, ok := store.Conversation(args[0])
	if !ok {
		return conversation.Conversation{}, errors.Errorf("unknown conversation %s", args[0])
	}
	return c, nil
}

func newConvCmd(a *app) (*cobra.Command, error) {
	showCmd, err := NewConvShowCommand(a)
	if err != nil {
		return nil, err
	}
	showCobra, err := cli.BuildCobraCommand(showCmd)
	if err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:   "conv",
		Short: "Manage conversations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <folder-id> <title...>",
			Short: "Create a conversation in a folder and select it",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				title, err := joinArgs("conversation title", args[1:])
				if err != nil {
					return err
				}
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				c, ok := store.AddConversation(args[0], title)
				if !ok {
					return errors.Errorf("unknown folder %s", args[0])
				}
				if err := saved(store); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <id>",
			Short: "Delete a conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				if !store.DeleteConversation(args[0]) {
					return errors.Errorf("unknown conversation %s", args[0])
				}
				return saved(store)
			},
		},
		&cobra.Command{
			Use:   "rename <id> <title...>",
			Short: "Rename a conversation",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				title, err := joinArgs("conversation title", args[1:])
				if err != nil {
					return err
				}
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				if !store.RenameConversation(args[0], title) {
					return errors.Errorf("unknown conversation %s", args[0])
				}
				return saved(store)
			},
		},
		&cobra.Command{
			Use:   "select <id>",
			Short: "Make a conversation the active one",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeStore, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				if _, ok := store.Conversation(args[0]); !ok {
					return errors.Errorf("unknown conversation %s", args[0])
				}
				store.SelectConversation(args[0])
				return saved(store)
			},
		},
		showCobra,
		newConvExportCmd(a),
		newConvCodeCmd(a),
	)
	return cmd, nil
}

type ConvShowSettings struct {
	ID string `glazed:"id"`
}

// ConvShowCommand prints the messages of a conversation as rows.
type ConvShowCommand struct {
	*cmds.CommandDescription
	app *app
}

var _ cmds.GlazeCommand = (*ConvShowCommand)(nil)

func NewConvShowCommand(a *app) (*ConvShowCommand, error) {
	glazedSection, err := glazedsettings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed section")
	}

	return &ConvShowCommand{
		CommandDescription: cmds.NewCommandDescription(
			"show",
			cmds.WithShort("Print the messages of a conversation, the active one by default"),
			cmds.WithArguments(
				fields.New("id", fields.TypeString,
					fields.WithHelp("Conversation id")),
			),
			cmds.WithSections(glazedSection),
		),
		app: a,
	}, nil
}

func (c *ConvShowCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	s := &ConvShowSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}

	store, closeStore, err := c.app.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var args []string
	if s.ID != "" {
		args = []string{s.ID}
	}
	conv, err := resolveConversation(store, args)
	if err != nil {
		return err
	}
	folder, _ := store.FolderOf(conv.ID)

	for _, row := range messageRows(conv, folder.Name) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// messageRows has one row per message with text. Messages made only of
// non-text parts are skipped.
func messageRows(c conversation.Conversation, folderName string) []types.Row {
	ret := []types.Row{}
	for _, m := range c.Messages {
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		ret = append(ret, types.NewRow(
			types.MRP("conversation_id", c.ID),
			types.MRP("title", c.Title),
			types.MRP("folder", folderName),
			types.MRP("message_id", m.ID),
			types.MRP("role", string(m.Role)),
			types.MRP("text", text),
		))
	}
	return ret
}

func resolveStyle(style string, w io.Writer) string {
	if style != "auto" {
		return style
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "dark"
	}
	return "notty"
}

func newConvExportCmd(a *app) *cobra.Command {
	format := "markdown"
	style := "auto"
	outputFile := ""

	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export a conversation as markdown, html, json or styled terminal text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			c, err := resolveConversation(store, args)
			if err != nil {
				return err
			}

			var content string
			switch format {
			case "markdown", "md":
				content = markdown.Transcript(c)
			case "html":
				content, err = markdown.HTMLPage(c)
				if err != nil {
					return err
				}
			case "json":
				b, err := conversation.EncodeConversation(c)
				if err != nil {
					return err
				}
				var out bytes.Buffer
				if err := json.Indent(&out, b, "", "  "); err != nil {
					return err
				}
				out.WriteByte('\n')
				content = out.String()
			case "terminal":
				content, err = markdown.RenderTerminal(markdown.Transcript(c), resolveStyle(style, cmd.OutOrStdout()))
				if err != nil {
					return err
				}
			default:
				return errors.Errorf("unknown format %q, use markdown, html, json or terminal", format)
			}

			if outputFile == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), content)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(content), 0644); err != nil {
				return errors.Wrapf(err, "could not write %s", outputFile)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", format, "Export format: markdown, html, json or terminal")
	cmd.Flags().StringVar(&style, "style", style, "Markdown style of the terminal format: auto, dark, light or notty")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "Write to this file instead of stdout")
	return cmd
}

func newConvCodeCmd(a *app) *cobra.Command {
	var languages []string

	cmd := &cobra.Command{
		Use:   "code [id]",
		Short: "Print the code blocks of the assistant answers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			c, err := resolveConversation(store, args)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			n := 0
			for _, m := range c.Messages {
				if m.Role != conversation.RoleAssistant {
					continue
				}
				blocks, err := markdown.ExtractCodeBlocks(m.Text(), languages...)
				if err != nil {
					return err
				}
				for _, b := range blocks {
					if n > 0 {
						fmt.Fprintln(w)
					}
					fmt.Fprintf(w, "```%s\n%s```\n", b.Language, b.Code)
					n++
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "Only print blocks in these languages")
	return cmd
}
