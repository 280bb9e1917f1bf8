// Package claude streams answers from the Anthropic messages API.
package claude

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/events"
	"github.com/go-go-golems/devchat/pkg/inference/engine"
	"github.com/go-go-golems/devchat/pkg/steps/ai/claude/api"
)

const DefaultMaxTokens = 1024

var ErrNoMessages = errors.New("no message to send")

type Streamer struct {
	client    *api.Client
	model     string
	maxTokens int
}

var _ engine.Streamer = (*Streamer)(nil)

func NewStreamer(client *api.Client, model string, maxTokens int) *Streamer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Streamer{client: client, model: model, maxTokens: maxTokens}
}

// MakeMessageRequest converts a request to the messages API shape. System
// messages of the history are folded into the system prompt.
func (s *Streamer) MakeMessageRequest(req engine.Request) (*api.MessageRequest, error) {
	system := []string{}
	if strings.TrimSpace(req.System) != "" {
		system = append(system, req.System)
	}

	msgs := []api.Message{}
	for _, m := range engine.TextHistory(req.Messages) {
		if m.Role == conversation.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: m.Content})
	}
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}

	return &api.MessageRequest{
		Model:     s.model,
		Messages:  msgs,
		MaxTokens: s.maxTokens,
		System:    strings.Join(system, "\n\n"),
		Stream:    true,
	}, nil
}

func (s *Streamer) Stream(ctx context.Context, req engine.Request) (<-chan events.Event, error) {
	mr, err := s.MakeMessageRequest(req)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("model", mr.Model).
		Int("messages", len(mr.Messages)).
		Msg("Opening claude stream")
	ch, err := s.client.StreamMessage(ctx, mr)
	if err != nil {
		return nil, errors.Wrap(err, "could not open claude stream")
	}

	em := engine.NewEmitter(ctx, s.model, 16)
	go func() {
		defer em.Close()
		stopReason := ""
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					if ctx.Err() == nil {
						em.Error(errors.New("claude stream ended before message_stop"))
					}
					return
				}
				switch ev.Type {
				case api.ContentBlockDeltaType:
					if ev.Delta != nil && ev.Delta.Type == api.TextDeltaType {
						if !em.Partial(ev.Delta.Text) {
							return
						}
					}
				case api.MessageDeltaType:
					if ev.Delta != nil && ev.Delta.StopReason != "" {
						stopReason = ev.Delta.StopReason
					}
				case api.MessageStopType:
					em.Final(stopReason)
					return
				case api.ErrorType:
					msg := "unknown claude error"
					if ev.Error != nil {
						msg = ev.Error.Type + ": " + ev.Error.Message
					}
					em.Error(errors.New(msg))
					return
				case api.PingType, api.MessageStartType, api.ContentBlockStartType, api.ContentBlockStopType:
				default:
					log.Debug().Str("type", string(ev.Type)).Msg("Ignoring unknown claude event")
				}
			}
		}
	}()

	return em.Events(), nil
}
