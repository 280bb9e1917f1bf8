package openai

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
)

func chunk(content string, finish string) string {
	choice := map[string]interface{}{
		"index": 0,
		"delta": map[string]string{"content": content},
	}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []interface{}{choice},
	})
	return string(b)
}

func write(w http.ResponseWriter, data string) {
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
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

func userRequest(text string) engine.Request {
	return engine.Request{
		Messages: []conversation.Message{conversation.NewTextMessage(conversation.RoleUser, text)},
	}
}

func TestStreamer_StreamsChunks(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		write(w, chunk("Redux", ""))
		write(w, chunk(" adds", ""))
		write(w, chunk("", "stop"))
		write(w, "[DONE]")
	}))
	defer srv.Close()

	s := NewStreamer(MakeClient("key", srv.URL+"/v1"), "gpt-4o-mini", 0)
	ch, err := s.Stream(context.Background(), engine.Request{
		System: "be brief",
		Messages: []conversation.Message{
			conversation.NewTextMessage(conversation.RoleUser, "why redux?"),
			conversation.NewTextMessage(conversation.RoleAssistant, "because"),
			conversation.NewTextMessage(conversation.RoleUser, "more"),
		},
	})
	require.NoError(t, err)
	evs := collect(t, ch)

	require.Len(t, evs, 3)
	require.Equal(t, "Redux adds", evs[1].(*events.EventPartialCompletion).Completion)
	final := evs[2].(*events.EventFinal)
	require.Equal(t, "Redux adds", final.Text)
	require.Equal(t, "stop", final.Metadata().StopReason)

	msgs := got["messages"].([]interface{})
	require.Len(t, msgs, 4)
	require.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	require.Equal(t, "assistant", msgs[2].(map[string]interface{})["role"])
	require.Equal(t, true, got["stream"])
}

func TestStreamer_OpenErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	s := NewStreamer(MakeClient("key", srv.URL+"/v1"), "gpt-4o-mini", 0)
	_, err := s.Stream(context.Background(), userRequest("hi"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad key")
}

func TestStreamer_CancelInterrupts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		write(w, chunk("Par", ""))
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewStreamer(MakeClient("key", srv.URL+"/v1"), "gpt-4o-mini", 0)
	ch, err := s.Stream(ctx, userRequest("hi"))
	require.NoError(t, err)

	require.Equal(t, "Par", (<-ch).(*events.EventPartialCompletion).Delta)
	cancel()
	for _, ev := range collect(t, ch) {
		require.IsType(t, &events.EventInterrupt{}, ev)
	}
}
