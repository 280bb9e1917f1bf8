// Package helpers connects watermill to zerolog and tags the messages of one
// streamed answer with a shared stream id.
package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WatermillLogger writes watermill's own logging to a zerolog logger.
// Watermill reports every subscription and handler start at info level, so
// info is demoted to debug unless KeepInfo is set.
type WatermillLogger struct {
	logger   zerolog.Logger
	KeepInfo bool
}

var _ watermill.LoggerAdapter = (*WatermillLogger)(nil)

func NewWatermillLogger(logger zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{
		logger: logger.With().Str("component", "watermill").Logger(),
	}
}

// event starts a log event at level. watermill.LogFields is a named map
// type, which zerolog's Fields only accepts once converted.
func (w *WatermillLogger) event(level zerolog.Level, fields watermill.LogFields) *zerolog.Event {
	return w.logger.WithLevel(level).Fields(map[string]interface{}(fields))
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.event(zerolog.ErrorLevel, fields).Err(err).Msg(msg)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	level := zerolog.DebugLevel
	if w.KeepInfo {
		level = zerolog.InfoLevel
	}
	w.event(level, fields).Msg(msg)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.event(zerolog.DebugLevel, fields).Msg(msg)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.event(zerolog.TraceLevel, fields).Msg(msg)
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{
		logger:   w.logger.With().Fields(map[string]interface{}(fields)).Logger(),
		KeepInfo: w.KeepInfo,
	}
}

// StreamIDMetadataKey is the watermill metadata key holding the stream id.
const StreamIDMetadataKey = "stream_id"

type streamIDKey struct{}

func WithStreamID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, streamIDKey{}, id)
}

func StreamID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(streamIDKey{}).(string)
	return id, ok && id != ""
}

// StampStreamIDs wraps pub so that every published message carries a stream
// id. Messages that already have one keep it; messages whose context has
// none get a fresh id prefixed with "orphan-".
func StampStreamIDs(pub message.Publisher) message.Publisher {
	return streamIDPublisher{Publisher: pub}
}

type streamIDPublisher struct {
	message.Publisher
}

func (p streamIDPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.Metadata.Get(StreamIDMetadataKey) != "" {
			continue
		}
		id, ok := StreamID(msg.Context())
		if !ok {
			id = "orphan-" + shortuuid.New()
			log.Debug().Str("topic", topic).Str("message_id", msg.UUID).Msg("Publishing message without stream id")
		}
		msg.Metadata.Set(StreamIDMetadataKey, id)
	}
	return p.Publisher.Publish(topic, messages...)
}
