package cmds

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/devchat/pkg/events"
	"github.com/go-go-golems/devchat/pkg/inference/engine/factory"
	"github.com/go-go-golems/devchat/pkg/inference/session"
)

const chatTopic = "chat"

func newAskCmd(a *app) *cobra.Command {
	conversationID := ""
	verbose := false

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask the model a question in the active conversation",
		Long: "Ask streams the answer into the conversation as it arrives. " +
			"Interrupting with Ctrl-C stops the stream and keeps the partial answer.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := joinArgs("question", args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			id := conversationID
			if id == "" {
				id = store.ActiveConversationID()
				if id == "" {
					return errNoActiveConversation
				}
			}

			streamer, err := factory.NewStandardStreamerFactory().CreateStreamer(&a.settings.Provider)
			if err != nil {
				return err
			}

			router, err := events.NewEventRouter(events.WithVerbose(verbose))
			if err != nil {
				return err
			}
			defer func() {
				_ = router.Close()
			}()
			router.AddHandler("printer", chatTopic, events.StepPrinterFunc("", cmd.OutOrStdout()))

			manager := session.NewManager(store, streamer,
				session.WithSystemPrompt(a.settings.SystemPrompt),
				session.WithModel(a.settings.Provider.Model),
				session.WithEventSink(events.NewWatermillSink(router.Publisher, chatTopic)),
			)

			// the router outlives ctx so the interrupt event still gets printed
			routerCtx, cancelRouter := context.WithCancel(context.Background())
			defer cancelRouter()

			var status session.Status
			eg := errgroup.Group{}
			eg.Go(func() error {
				return router.Run(routerCtx)
			})
			eg.Go(func() error {
				defer cancelRouter()
				select {
				case <-router.Running():
				case <-ctx.Done():
					return nil
				}

				h, err := manager.Start(ctx, id, question)
				if err != nil {
					return err
				}
				status, err = h.Wait()
				return err
			})

			if err := eg.Wait(); err != nil {
				return err
			}
			if err := saved(store); err != nil {
				return err
			}

			log.Debug().Str("conversation_id", id).Str("status", string(status)).Msg("Answer finished")
			if status == session.StatusAborted {
				fmt.Fprintln(cmd.ErrOrStderr(), "answer interrupted, partial answer kept")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation to ask in instead of the active one")
	cmd.Flags().BoolVar(&verbose, "verbose-events", false, "Log event routing")
	return cmd
}
