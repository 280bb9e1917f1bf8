package echo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/events"
	"github.com/go-go-golems/devchat/pkg/inference/engine"
)

func request(texts ...string) engine.Request {
	msgs := []conversation.Message{}
	for i, t := range texts {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		msgs = append(msgs, conversation.NewTextMessage(role, t))
	}
	return engine.Request{Messages: msgs}
}

func TestEcho_RepeatsLastUserMessage(t *testing.T) {
	s := &Streamer{Prefix: "> "}
	ch, err := s.Stream(context.Background(), request("first", "answer", "olá"))
	require.NoError(t, err)

	var deltas []string
	var final *events.EventFinal
	for ev := range ch {
		switch e := ev.(type) {
		case *events.EventPartialCompletion:
			deltas = append(deltas, e.Delta)
		case *events.EventFinal:
			final = e
		}
	}
	require.Equal(t, []string{">", " ", "o", "l", "á"}, deltas)
	require.NotNil(t, final)
	require.Equal(t, "> olá", final.Text)
	require.Equal(t, ModelName, final.Metadata().Model)
}

func TestEcho_CancelInterrupts(t *testing.T) {
	s := &Streamer{TimePerCharacter: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Stream(ctx, request("a long enough message"))
	require.NoError(t, err)

	first := <-ch
	require.IsType(t, &events.EventPartialCompletion{}, first)
	cancel()

	var last events.Event
	for ev := range ch {
		last = ev
	}
	if last != nil {
		_, isFinal := last.(*events.EventFinal)
		require.False(t, isFinal)
	}
}

func TestEcho_NoUserMessage(t *testing.T) {
	_, err := NewStreamer().Stream(context.Background(), engine.Request{})
	require.Error(t, err)
}
