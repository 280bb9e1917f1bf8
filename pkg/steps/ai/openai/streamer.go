// Package openai streams answers from OpenAI compatible chat completion APIs.
package openai

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/events"
	"github.com/go-go-golems/devchat/pkg/inference/engine"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Streamer struct {
	client    *go_openai.Client
	model     string
	maxTokens int
}

var _ engine.Streamer = (*Streamer)(nil)

// MakeClient creates a go-openai client for apiKey, talking to baseURL if set.
func MakeClient(apiKey string, baseURL string) *go_openai.Client {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return go_openai.NewClientWithConfig(config)
}

func NewStreamer(client *go_openai.Client, model string, maxTokens int) *Streamer {
	return &Streamer{client: client, model: model, maxTokens: maxTokens}
}

func (s *Streamer) MakeCompletionRequest(req engine.Request) *go_openai.ChatCompletionRequest {
	msgs := []go_openai.ChatCompletionMessage{}
	if req.System != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range engine.TextHistory(req.Messages) {
		role := go_openai.ChatMessageRoleUser
		switch m.Role {
		case conversation.RoleSystem:
			role = go_openai.ChatMessageRoleSystem
		case conversation.RoleAssistant:
			role = go_openai.ChatMessageRoleAssistant
		case conversation.RoleUser:
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	return &go_openai.ChatCompletionRequest{
		Model:     s.model,
		Messages:  msgs,
		MaxTokens: s.maxTokens,
		Stream:    true,
	}
}

func (s *Streamer) Stream(ctx context.Context, req engine.Request) (<-chan events.Event, error) {
	cr := s.MakeCompletionRequest(req)
	log.Debug().Str("model", cr.Model).Int("messages", len(cr.Messages)).Msg("Opening openai stream")

	stream, err := s.client.CreateChatCompletionStream(ctx, *cr)
	if err != nil {
		return nil, errors.Wrap(err, "could not open openai stream")
	}

	em := engine.NewEmitter(ctx, s.model, 16)
	go func() {
		defer em.Close()
		defer stream.Close()

		stopReason := ""
		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				em.Final(stopReason)
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				em.Error(err)
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]
			if choice.FinishReason != "" {
				stopReason = string(choice.FinishReason)
			}
			if !em.Partial(choice.Delta.Content) {
				return
			}
		}
	}()

	return em.Events(), nil
}
