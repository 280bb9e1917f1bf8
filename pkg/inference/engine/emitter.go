package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/go-go-golems/devchat/pkg/events"
)

// Emitter writes one stream to the channel returned by Streamer.Stream. It
// tracks the text emitted so far and guarantees a single terminal event.
type Emitter struct {
	ctx      context.Context
	out      chan events.Event
	meta     events.EventMetadata
	text     string
	finished bool
}

// NewEmitter creates an emitter whose metadata carries the run ids found in
// ctx and model.
func NewEmitter(ctx context.Context, model string, buffer int) *Emitter {
	return &Emitter{
		ctx: ctx,
		out: make(chan events.Event, buffer),
		meta: events.EventMetadata{
			ID:             uuid.New(),
			ConversationID: ConversationIDFromContext(ctx),
			InferenceID:    InferenceIDFromContext(ctx),
			Model:          model,
		},
	}
}

func (e *Emitter) Events() <-chan events.Event {
	return e.out
}

func (e *Emitter) Text() string {
	return e.text
}

// Partial emits a delta. It returns false once ctx is cancelled.
func (e *Emitter) Partial(delta string) bool {
	if e.ctx.Err() != nil {
		return false
	}
	if e.finished || delta == "" {
		return !e.finished
	}
	e.text += delta
	select {
	case e.out <- events.NewPartialCompletionEvent(e.meta, delta, e.text):
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *Emitter) Final(stopReason string) {
	meta := e.meta
	meta.StopReason = stopReason
	e.terminal(events.NewFinalEvent(meta, e.text))
}

func (e *Emitter) Interrupt() {
	e.terminal(events.NewInterruptEvent(e.meta, e.text))
}

func (e *Emitter) Error(err error) {
	e.terminal(events.NewErrorEvent(e.meta, err))
}

// Close ends the stream with an interrupt if ctx was cancelled and no
// terminal event was sent, then closes the channel.
func (e *Emitter) Close() {
	if !e.finished && e.ctx.Err() != nil {
		e.Interrupt()
	}
	close(e.out)
}

func (e *Emitter) terminal(ev events.Event) {
	if e.finished {
		return
	}
	e.finished = true
	if e.ctx.Err() != nil {
		// nobody may be reading anymore
		select {
		case e.out <- ev:
		default:
		}
		return
	}
	select {
	case e.out <- ev:
	case <-e.ctx.Done():
	}
}
