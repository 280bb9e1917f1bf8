// Package echo provides a Streamer that answers by repeating the last user
// message one character at a time. It needs no network and backs the
// offline provider and the tests.
package echo

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/events"
	"github.com/go-go-golems/devchat/pkg/inference/engine"
)

const ModelName = "echo"

type Streamer struct {
	TimePerCharacter time.Duration
	Prefix           string
}

var _ engine.Streamer = (*Streamer)(nil)

func NewStreamer() *Streamer {
	return &Streamer{
		TimePerCharacter: 20 * time.Millisecond,
	}
}

func (e *Streamer) Stream(ctx context.Context, req engine.Request) (<-chan events.Event, error) {
	var input string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == conversation.RoleUser {
			input = req.Messages[i].Text()
			break
		}
	}
	if input == "" {
		return nil, errors.New("no user message to echo")
	}

	em := engine.NewEmitter(ctx, ModelName, 1)
	go func() {
		defer em.Close()
		for _, c := range e.Prefix + input {
			if e.TimePerCharacter > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.TimePerCharacter):
				}
			}
			if !em.Partial(string(c)) {
				return
			}
		}
		em.Final("end_turn")
	}()

	return em.Events(), nil
}
