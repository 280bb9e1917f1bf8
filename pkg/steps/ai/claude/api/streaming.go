package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType StreamingDeltaType = "text_delta"
)

type StreamingEvent struct {
	Type    StreamingEventType `json:"type"`
	Message *MessageStart      `json:"message,omitempty"`
	Delta   *Delta             `json:"delta,omitempty"`
	Error   *Error             `json:"error,omitempty"`
	Index   int                `json:"index,omitempty"`
}

// MessageStart is the subset of the message_start payload kept for logging.
type MessageStart struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Delta struct {
	Type       StreamingDeltaType `json:"type"`
	Text       string             `json:"text,omitempty"`
	StopReason string             `json:"stop_reason,omitempty"`
}

func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type))
	if s.Message != nil {
		e.Str("message_id", s.Message.ID).Str("model", s.Message.Model)
	}
	if s.Delta != nil {
		e.Object("delta", s.Delta)
	}
	if s.Error != nil {
		e.Object("error", s.Error)
	}
	if s.Index != 0 {
		e.Int("index", s.Index)
	}
}

var _ zerolog.LogObjectMarshaler = StreamingEvent{}

func (err Error) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", err.Type)
	e.Str("message", err.Message)
}

func (d Delta) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(d.Type))
	if d.Text != "" {
		e.Str("text", d.Text)
	}
	if d.StopReason != "" {
		e.Str("stop_reason", d.StopReason)
	}
}

func streamEvents(ctx context.Context, resp *http.Response, events chan<- StreamingEvent) {
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	send := func(event StreamingEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			log.Debug().Msg("Context cancelled, stopping streaming")
			return false
		}
	}

	reader := bufio.NewReader(resp.Body)
	var eventLines [][]byte
	eventCount := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() == nil && err != io.EOF {
				log.Error().Err(err).Msg("Unexpected error reading streaming response")
				send(StreamingEvent{
					Type:  ErrorType,
					Error: &Error{Type: "read_error", Message: err.Error()},
				})
				return
			}
			log.Debug().Err(err).Int("total_events_processed", eventCount).Msg("Streaming reader finished")
			return
		}

		if len(bytes.TrimSpace(line)) != 0 {
			eventLines = append(eventLines, line)
			continue
		}

		// an empty line ends an event
		if len(eventLines) == 0 {
			continue
		}
		var event StreamingEvent
		parseErr := parseSSEEvent(eventLines, &event)
		eventLines = eventLines[:0]
		if parseErr != nil {
			log.Debug().Err(parseErr).Msg("Failed to parse SSE event")
			continue
		}
		eventCount++
		log.Trace().Int("event_number", eventCount).Object("event", event).Msg("Parsed streaming event")
		if !send(event) {
			return
		}
	}
}

// parseSSEEvent parses an SSE event from multiple lines, joining its data
// fields.
func parseSSEEvent(lines [][]byte, event *StreamingEvent) error {
	var data []string
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r\n")
		field, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		if string(field) == "data" {
			data = append(data, string(bytes.TrimPrefix(value, []byte(" "))))
		}
	}
	if len(data) == 0 {
		return errors.New("event has no data")
	}

	if err := json.Unmarshal([]byte(strings.Join(data, "\n")), event); err != nil {
		return errors.Wrap(err, "could not decode event data")
	}
	return nil
}
