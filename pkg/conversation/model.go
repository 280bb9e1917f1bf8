package conversation

import (
	"time"

	"github.com/huandu/go-clone"
)

type Conversation struct {
	ID        string
	Title     string
	FolderID  string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Folder struct {
	ID            string
	Name          string
	Conversations []Conversation
	IsExpanded    bool

	// expandedUnset marks a folder loaded without an isExpanded field that
	// has not been toggled since, so it is saved without one too.
	expandedUnset bool
}

// Snapshot is the full persisted state of a store.
//
// An empty ActiveConversationID means no conversation is selected.
type Snapshot struct {
	Folders              []Folder
	ActiveConversationID string
}

func (s Snapshot) Clone() Snapshot {
	return deepCopy(s)
}

// ConversationCount returns the number of conversations across all folders.
func (s Snapshot) ConversationCount() int {
	n := 0
	for _, f := range s.Folders {
		n += len(f.Conversations)
	}
	return n
}

// FindConversation returns the folder and conversation indices of id.
func (s Snapshot) FindConversation(id string) (int, int, bool) {
	if id == "" {
		return -1, -1, false
	}
	for fi, f := range s.Folders {
		for ci, c := range f.Conversations {
			if c.ID == id {
				return fi, ci, true
			}
		}
	}
	return -1, -1, false
}

func (s Snapshot) FindFolder(id string) (int, bool) {
	for i, f := range s.Folders {
		if f.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ActiveConversation resolves the active id, reporting false when it is unset
// or refers to a conversation that no longer exists.
func (s Snapshot) ActiveConversation() (Conversation, bool) {
	fi, ci, ok := s.FindConversation(s.ActiveConversationID)
	if !ok {
		return Conversation{}, false
	}
	return s.Folders[fi].Conversations[ci], true
}

func deepCopy[T any](v T) T {
	if c, ok := clone.Clone(v).(T); ok {
		return c
	}
	var zero T
	return zero
}
