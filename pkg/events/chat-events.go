package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeInterrupt         EventType = "interrupt"
	EventTypeError             EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON when the event was decoded with NewEventFromJson
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

// EventMetadata correlates an event with the conversation and the streamed
// answer it belongs to.
type EventMetadata struct {
	ID             uuid.UUID `json:"message_id" yaml:"message_id" mapstructure:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty" mapstructure:"conversation_id"`
	InferenceID    string    `json:"inference_id,omitempty" yaml:"inference_id,omitempty" mapstructure:"inference_id"`
	Model          string    `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	StopReason     string    `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty" mapstructure:"stop_reason"`
	// Extra carries provider specific values
	Extra map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty" mapstructure:"extra"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	if em.InferenceID != "" {
		e.Str("inference_id", em.InferenceID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.StopReason != "" {
		e.Str("stop_reason", em.StopReason)
	}
	if len(em.Extra) > 0 {
		e.Dict("extra", zerolog.Dict().Fields(em.Extra))
	}
}

type EventPartialCompletionStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventPartialCompletionStart {
	return &EventPartialCompletionStart{
		EventImpl: EventImpl{
			Type_:     EventTypeStart,
			Metadata_: metadata,
		},
	}
}

var _ Event = &EventPartialCompletionStart{}

type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the text streamed so far, including Delta.
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl: EventImpl{
			Type_:     EventTypePartialCompletion,
			Metadata_: metadata,
		},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventPartialCompletion{}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{
			Type_:     EventTypeFinal,
			Metadata_: metadata,
		},
		Text: text,
	}
}

var _ Event = &EventFinal{}

// EventInterrupt marks a stream that stopped because it was cancelled. Text
// holds whatever had been produced by then.
type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{
			Type_:     EventTypeInterrupt,
			Metadata_: metadata,
		},
		Text: text,
	}
}

var _ Event = &EventInterrupt{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		ErrorString: err.Error(),
	}
}

func (e *EventError) Error() string {
	return e.ErrorString
}

var _ Event = &EventError{}

// NewEventFromJson decodes an event published by a WatermillSink back into its
// concrete type.
func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}
	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		return toTypedEvent[EventPartialCompletionStart](b)
	case EventTypePartialCompletion:
		return toTypedEvent[EventPartialCompletion](b)
	case EventTypeFinal:
		return toTypedEvent[EventFinal](b)
	case EventTypeInterrupt:
		return toTypedEvent[EventInterrupt](b)
	case EventTypeError:
		return toTypedEvent[EventError](b)
	default:
		return e, nil
	}
}

type typedEvent interface {
	Event
	setPayload(b []byte)
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}

func toTypedEvent[T any, PT interface {
	*T
	typedEvent
}](b []byte) (Event, error) {
	var ret T
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, fmt.Errorf("could not decode %T: %w", ret, err)
	}
	p := PT(&ret)
	p.setPayload(b)
	return p, nil
}
