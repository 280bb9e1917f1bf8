package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/events"
	"github.com/go-go-golems/devchat/pkg/inference/engine"
	"github.com/go-go-golems/devchat/pkg/steps/ai/claude/api"
)

func sse(w http.ResponseWriter, typ string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func delta(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]string{"type": "text_delta", "text": text},
	})
	return string(b)
}

func collect(t *testing.T, ch <-chan events.Event) []events.Event {
	t.Helper()
	var ret []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return ret
			}
			ret = append(ret, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func request() engine.Request {
	return engine.Request{
		System: "be brief",
		Messages: []conversation.Message{
			conversation.NewTextMessage(conversation.RoleSystem, "answer in english"),
			conversation.NewTextMessage(conversation.RoleUser, "why redux?"),
		},
	}
}

func TestStreamer_StreamsDeltasAndFinal(t *testing.T) {
	var got api.MessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		sse(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","model":"m"}}`)
		sse(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		sse(w, "content_block_delta", delta("Redux"))
		sse(w, "content_block_delta", delta(" centralizes state"))
		sse(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		sse(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)
		sse(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	s := NewStreamer(api.NewClient("k", srv.URL), "claude-3-5-haiku-latest", 0)
	ctx := engine.WithRunMeta(context.Background(), "1-1", "inf-1")
	ch, err := s.Stream(ctx, request())
	require.NoError(t, err)
	evs := collect(t, ch)

	require.Len(t, evs, 3)
	require.Equal(t, "Redux", evs[0].(*events.EventPartialCompletion).Delta)
	require.Equal(t, "Redux centralizes state", evs[1].(*events.EventPartialCompletion).Completion)
	final, ok := evs[2].(*events.EventFinal)
	require.True(t, ok)
	require.Equal(t, "Redux centralizes state", final.Text)
	require.Equal(t, "end_turn", final.Metadata().StopReason)
	require.Equal(t, "1-1", final.Metadata().ConversationID)
	require.Equal(t, "inf-1", final.Metadata().InferenceID)

	require.Equal(t, "be brief\n\nanswer in english", got.System)
	require.Equal(t, []api.Message{{Role: "user", Content: "why redux?"}}, got.Messages)
	require.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.True(t, got.Stream)
}

func TestStreamer_ErrorEventKeepsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse(w, "content_block_delta", delta("Par"))
		sse(w, "error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer srv.Close()

	ch, err := NewStreamer(api.NewClient("k", srv.URL), "m", 10).Stream(context.Background(), request())
	require.NoError(t, err)
	evs := collect(t, ch)
	require.Len(t, evs, 2)
	require.Equal(t, "overloaded_error: Overloaded", evs[1].(*events.EventError).ErrorString)
}

func TestStreamer_TruncatedStreamIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse(w, "content_block_delta", delta("Par"))
	}))
	defer srv.Close()

	ch, err := NewStreamer(api.NewClient("k", srv.URL), "m", 10).Stream(context.Background(), request())
	require.NoError(t, err)
	evs := collect(t, ch)
	require.Len(t, evs, 2)
	require.IsType(t, &events.EventError{}, evs[1])
}

func TestStreamer_CancelInterrupts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse(w, "content_block_delta", delta("Par"))
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := NewStreamer(api.NewClient("k", srv.URL), "m", 10).Stream(ctx, request())
	require.NoError(t, err)

	first := <-ch
	require.Equal(t, "Par", first.(*events.EventPartialCompletion).Delta)
	cancel()

	rest := collect(t, ch)
	for _, ev := range rest {
		require.IsType(t, &events.EventInterrupt{}, ev)
	}
}

func TestStreamer_RejectsEmptyHistory(t *testing.T) {
	_, err := NewStreamer(api.NewClient("k", "http://127.0.0.1:1"), "m", 10).Stream(context.Background(), engine.Request{})
	require.ErrorIs(t, err, ErrNoMessages)
}

func TestStreamer_HTTPErrorFailsToOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	_, err := NewStreamer(api.NewClient("bad", srv.URL), "m", 10).Stream(context.Background(), request())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid x-api-key")
}
