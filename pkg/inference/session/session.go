package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/events"
	"github.com/go-go-golems/devchat/pkg/inference/engine"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
	StatusErrored    Status = "errored"
)

var (
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrStreamTruncated = errors.New("stream ended without completion")
	ErrStreamerNil     = errors.New("session has no streamer")
)

// maxBatch bounds how many buffered events are folded into one store update.
const maxBatch = 64

// MessageSink receives the accumulated message list of a conversation.
// conversation.Store implements it.
type MessageSink interface {
	ReplaceMessages(conversationID string, messages []conversation.Message) bool
}

// StreamSession streams answers for one conversation and reconciles them into
// a MessageSink. At most one stream is in flight per session.
type StreamSession struct {
	ConversationID string

	streamer  engine.Streamer
	sink      MessageSink
	eventSink events.EventSink
	system    string
	model     string

	// startMu serializes Start so a replaced run is fully drained before
	// the next one reads its prior messages.
	startMu sync.Mutex

	mu     sync.Mutex
	status Status
	active *ExecutionHandle
}

type Option func(*StreamSession)

// WithSystemPrompt sets the system instruction sent with every request.
func WithSystemPrompt(prompt string) Option {
	return func(s *StreamSession) {
		s.system = prompt
	}
}

// WithEventSink publishes the lifecycle of every run to sink.
func WithEventSink(sink events.EventSink) Option {
	return func(s *StreamSession) {
		if sink != nil {
			s.eventSink = sink
		}
	}
}

// WithModel records the model name in published event metadata.
func WithModel(model string) Option {
	return func(s *StreamSession) {
		s.model = model
	}
}

func NewStreamSession(conversationID string, streamer engine.Streamer, sink MessageSink, options ...Option) *StreamSession {
	s := &StreamSession{
		ConversationID: conversationID,
		streamer:       streamer,
		sink:           sink,
		eventSink:      events.NewNullSink(),
		status:         StatusIdle,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *StreamSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsRunning reports whether a stream is in flight.
func (s *StreamSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.IsRunning()
}

// Cancel stops the running stream, if any. The partial answer is kept.
func (s *StreamSession) Cancel() {
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	h.Cancel()
}

// Wait blocks until the running stream, if any, has ended.
func (s *StreamSession) Wait() (Status, error) {
	s.mu.Lock()
	h := s.active
	status := s.status
	s.mu.Unlock()
	if h == nil {
		return status, nil
	}
	return h.Wait()
}

// Start appends a user message with userText to prior and streams the answer.
//
// A stream already running in this session is cancelled and waited for
// first. The user message is pushed to the sink before the request is
// opened, so it stays in history whatever happens to the stream.
func (s *StreamSession) Start(ctx context.Context, prior []conversation.Message, userText string) (*ExecutionHandle, error) {
	return s.start(ctx, func() []conversation.Message { return prior }, userText)
}

func (s *StreamSession) start(ctx context.Context, prior func() []conversation.Message, userText string) (*ExecutionHandle, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyPrompt
	}
	if s.streamer == nil {
		return nil, ErrStreamerNil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	previous := s.active
	s.mu.Unlock()
	if previous != nil && previous.IsRunning() {
		log.Debug().
			Str("conversation_id", s.ConversationID).
			Str("inference_id", previous.InferenceID).
			Msg("Cancelling running stream before starting a new one")
		previous.Cancel()
		_, _ = previous.Wait()
	}

	history := prior()
	working := make([]conversation.Message, 0, len(history)+2)
	working = append(working, history...)
	working = append(working, conversation.NewTextMessage(conversation.RoleUser, userText))

	inferenceID := uuid.NewString()
	runCtx, cancel := context.WithCancel(engine.WithRunMeta(ctx, s.ConversationID, inferenceID))
	handle := newExecutionHandle(s.ConversationID, inferenceID, cancel)

	s.mu.Lock()
	s.status = StatusInProgress
	s.active = handle
	s.mu.Unlock()

	s.sink.ReplaceMessages(s.ConversationID, working)

	go func() {
		status, err := s.run(runCtx, handle, working)

		s.mu.Lock()
		s.status = status
		s.mu.Unlock()

		log.Debug().
			Str("conversation_id", s.ConversationID).
			Str("inference_id", inferenceID).
			Str("status", string(status)).
			Err(err).
			Msg("Stream finished")
		handle.setResult(status, err)
	}()

	return handle, nil
}

func (s *StreamSession) metadata(inferenceID string) events.EventMetadata {
	return events.EventMetadata{
		ID:             uuid.New(),
		ConversationID: s.ConversationID,
		InferenceID:    inferenceID,
		Model:          s.model,
	}
}

func (s *StreamSession) publish(ev events.Event) {
	if err := s.eventSink.PublishEvent(ev); err != nil {
		log.Warn().Err(err).Str("event_type", string(ev.Type())).Msg("Could not publish stream event")
	}
}

// run consumes one stream and pushes its state after every batch of events.
func (s *StreamSession) run(ctx context.Context, h *ExecutionHandle, working []conversation.Message) (Status, error) {
	acc := &accumulator{base: working}
	push := func() {
		s.sink.ReplaceMessages(s.ConversationID, acc.messages())
	}

	s.publish(events.NewStartEvent(s.metadata(h.InferenceID)))

	ch, err := s.streamer.Stream(ctx, engine.Request{System: s.system, Messages: working})
	if err != nil {
		if ctx.Err() != nil {
			s.publish(events.NewInterruptEvent(s.metadata(h.InferenceID), ""))
			return StatusAborted, nil
		}
		s.publish(events.NewErrorEvent(s.metadata(h.InferenceID), err))
		return StatusErrored, err
	}

	for {
		var ev events.Event
		var ok bool

		select {
		case <-ctx.Done():
			push()
			s.publish(events.NewInterruptEvent(s.metadata(h.InferenceID), acc.text()))
			return StatusAborted, nil
		case ev, ok = <-ch:
		}

		for n := 0; ; n++ {
			if !ok {
				push()
				if ctx.Err() != nil {
					s.publish(events.NewInterruptEvent(s.metadata(h.InferenceID), acc.text()))
					return StatusAborted, nil
				}
				s.publish(events.NewErrorEvent(s.metadata(h.InferenceID), ErrStreamTruncated))
				return StatusErrored, ErrStreamTruncated
			}

			if status, done, err := s.apply(acc, h.InferenceID, ev); done {
				push()
				return status, err
			}

			if n+1 >= maxBatch {
				break
			}
			select {
			case ev, ok = <-ch:
				continue
			default:
			}
			break
		}

		push()
	}
}

// apply folds one event into acc. done reports a terminal event.
func (s *StreamSession) apply(acc *accumulator, inferenceID string, ev events.Event) (Status, bool, error) {
	switch e := ev.(type) {
	case *events.EventPartialCompletion:
		if e.Delta == "" {
			return "", false, nil
		}
		acc.append(e.Delta)
		s.publish(events.NewPartialCompletionEvent(s.metadata(inferenceID), e.Delta, acc.text()))
		return "", false, nil

	case *events.EventFinal:
		if !acc.started() && e.Text != "" {
			acc.append(e.Text)
		}
		s.publish(events.NewFinalEvent(s.metadata(inferenceID), acc.text()))
		return StatusCompleted, true, nil

	case *events.EventInterrupt:
		s.publish(events.NewInterruptEvent(s.metadata(inferenceID), acc.text()))
		return StatusAborted, true, nil

	case *events.EventError:
		err := errors.New(e.ErrorString)
		s.publish(events.NewErrorEvent(s.metadata(inferenceID), err))
		return StatusErrored, true, err

	default:
		return "", false, nil
	}
}

// accumulator grows the assistant answer on top of the prior messages. The
// assistant message is only created once text arrives.
type accumulator struct {
	base      []conversation.Message
	assistant *conversation.Message
}

func (a *accumulator) started() bool {
	return a.assistant != nil
}

func (a *accumulator) append(delta string) {
	if a.assistant == nil {
		m := conversation.NewMessage(conversation.RoleAssistant)
		a.assistant = &m
	}
	a.assistant.AppendText(delta)
}

func (a *accumulator) text() string {
	if a.assistant == nil {
		return ""
	}
	return a.assistant.Text()
}

func (a *accumulator) messages() []conversation.Message {
	ret := make([]conversation.Message, 0, len(a.base)+1)
	ret = append(ret, a.base...)
	if a.assistant != nil {
		m := *a.assistant
		m.Parts = append([]conversation.Part(nil), m.Parts...)
		ret = append(ret, m)
	}
	return ret
}
