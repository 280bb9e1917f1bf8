package session

import (
	"context"
	"errors"
	"sync"

	"github.com/go-go-golems/devchat/pkg/conversation"
	"github.com/go-go-golems/devchat/pkg/inference/engine"
)

var ErrUnknownConversation = errors.New("unknown conversation")

// ConversationSource is the part of conversation.Store a Manager needs.
type ConversationSource interface {
	MessageSink
	Conversation(id string) (conversation.Conversation, bool)
}

// Manager owns one StreamSession per conversation id. Sessions of different
// conversations run independently; switching the active conversation never
// touches a running stream.
type Manager struct {
	store    ConversationSource
	streamer engine.Streamer
	options  []Option

	mu       sync.Mutex
	sessions map[string]*StreamSession
}

func NewManager(store ConversationSource, streamer engine.Streamer, options ...Option) *Manager {
	return &Manager{
		store:    store,
		streamer: streamer,
		options:  options,
		sessions: map[string]*StreamSession{},
	}
}

// Session returns the session of a conversation, creating it on first use.
func (m *Manager) Session(conversationID string) *StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[conversationID]
	if !ok {
		s = NewStreamSession(conversationID, m.streamer, m.store, m.options...)
		m.sessions[conversationID] = s
	}
	return s
}

// Start streams an answer to userText in a conversation, using the messages
// currently stored for it as history.
func (m *Manager) Start(ctx context.Context, conversationID string, userText string) (*ExecutionHandle, error) {
	if _, ok := m.store.Conversation(conversationID); !ok {
		return nil, ErrUnknownConversation
	}
	return m.Session(conversationID).start(ctx, func() []conversation.Message {
		// read after any previous run has pushed its last state
		c, _ := m.store.Conversation(conversationID)
		return c.Messages
	}, userText)
}

// StartWith streams an answer on top of an explicit history.
func (m *Manager) StartWith(ctx context.Context, conversationID string, prior []conversation.Message, userText string) (*ExecutionHandle, error) {
	return m.Session(conversationID).Start(ctx, prior, userText)
}

// CancelAll cancels every running stream.
func (m *Manager) CancelAll() {
	for _, s := range m.snapshot() {
		s.Cancel()
	}
}

// Wait blocks until no stream is running.
func (m *Manager) Wait() {
	for _, s := range m.snapshot() {
		_, _ = s.Wait()
	}
}

func (m *Manager) snapshot() []*StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*StreamSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		ret = append(ret, s)
	}
	return ret
}
