package engine

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/devchat/pkg/events"
)

func drain(ch <-chan events.Event) []events.Event {
	var ret []events.Event
	for ev := range ch {
		ret = append(ret, ev)
	}
	return ret
}

func TestEmitter_SingleTerminalEvent(t *testing.T) {
	ctx := WithRunMeta(context.Background(), "1-1", "inf-1")
	em := NewEmitter(ctx, "m", 8)
	require.True(t, em.Partial("a"))
	require.True(t, em.Partial(""))
	require.True(t, em.Partial("b"))
	em.Final("end_turn")
	em.Error(errors.New("ignored"))
	require.False(t, em.Partial("c"))
	em.Close()

	evs := drain(em.Events())
	require.Len(t, evs, 3)
	require.Equal(t, "ab", evs[1].(*events.EventPartialCompletion).Completion)
	require.Equal(t, "ab", evs[2].(*events.EventFinal).Text)
	require.Equal(t, "inf-1", evs[2].Metadata().InferenceID)
}

func TestEmitter_CloseAfterCancelInterrupts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	em := NewEmitter(ctx, "m", 8)
	require.True(t, em.Partial("a"))
	cancel()
	require.False(t, em.Partial("b"))
	em.Close()

	evs := drain(em.Events())
	require.Len(t, evs, 2)
	require.Equal(t, "a", evs[1].(*events.EventInterrupt).Text)
}
