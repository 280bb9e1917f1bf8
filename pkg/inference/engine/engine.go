// Package engine defines the narrow contract between a conversation and the
// language model service that answers it.
package engine

import (
	"context"
	"strings"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/events"
)

// Request is one streamed completion: a system instruction and the ordered
// history to answer.
type Request struct {
	System   string
	Messages []conversation.Message
}

// Streamer opens a streamed completion.
//
// The returned channel carries EventPartialCompletion deltas in order and is
// terminated by exactly one EventFinal, EventInterrupt or EventError, after
// which it is closed. When ctx is cancelled the streamer stops promptly,
// emits an interrupt if it still can, and closes the channel.
//
// An error returned from Stream itself means no stream was opened.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan events.Event, error)
}

// TextMessage is a message flattened to role and text, the shape every
// provider API accepts.
type TextMessage struct {
	Role    conversation.Role
	Content string
}

// TextHistory flattens messages to their text parts. Messages without any
// text are skipped.
func TextHistory(msgs []conversation.Message) []TextMessage {
	ret := make([]TextMessage, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		ret = append(ret, TextMessage{Role: m.Role, Content: text})
	}
	return ret
}
