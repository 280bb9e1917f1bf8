package conversation

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// ErrMalformedSnapshot is returned by DecodeSnapshot for any payload that does
// not describe a well-formed store.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type wireSnapshot struct {
	Folders              *[]wireFolder `json:"folders"`
	ActiveConversationID *string       `json:"activeConversationId"`
}

type wireFolder struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Conversations *[]wireConversation `json:"conversations"`
	IsExpanded    *bool               `json:"isExpanded,omitempty"`
}

type wireConversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
	FolderID  string    `json:"folderId"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

func toWireConversation(c Conversation) wireConversation {
	msgs := c.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	return wireConversation{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  msgs,
		CreatedAt: formatTimestamp(c.CreatedAt),
		UpdatedAt: formatTimestamp(c.UpdatedAt),
		FolderID:  c.FolderID,
	}
}

// EncodeConversation serializes one conversation the way it appears inside
// a persisted snapshot.
func EncodeConversation(c Conversation) ([]byte, error) {
	return json.Marshal(toWireConversation(c))
}

// EncodeSnapshot serializes a snapshot into the persisted JSON document.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	folders := make([]wireFolder, 0, len(s.Folders))
	for _, f := range s.Folders {
		convs := make([]wireConversation, 0, len(f.Conversations))
		for _, c := range f.Conversations {
			convs = append(convs, toWireConversation(c))
		}
		var expanded *bool
		if f.IsExpanded || !f.expandedUnset {
			v := f.IsExpanded
			expanded = &v
		}
		folders = append(folders, wireFolder{
			ID:            f.ID,
			Name:          f.Name,
			Conversations: &convs,
			IsExpanded:    expanded,
		})
	}

	var active *string
	if s.ActiveConversationID != "" {
		id := s.ActiveConversationID
		active = &id
	}

	b, err := json.Marshal(wireSnapshot{Folders: &folders, ActiveConversationID: active})
	if err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}
	return b, nil
}

// DecodeSnapshot parses a persisted JSON document.
//
// Decoding is strict: any structural problem yields an error wrapping
// ErrMalformedSnapshot and no partial result.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(b, &w); err != nil {
		return Snapshot{}, errors.Wrapf(ErrMalformedSnapshot, "invalid json: %v", err)
	}
	if w.Folders == nil {
		return Snapshot{}, errors.Wrap(ErrMalformedSnapshot, "missing folders")
	}

	ret := Snapshot{Folders: make([]Folder, 0, len(*w.Folders))}
	if w.ActiveConversationID != nil {
		ret.ActiveConversationID = *w.ActiveConversationID
	}

	folderIDs := map[string]struct{}{}
	conversationIDs := map[string]struct{}{}

	for fi, wf := range *w.Folders {
		if wf.ID == "" {
			return Snapshot{}, errors.Wrapf(ErrMalformedSnapshot, "folder %d has no id", fi)
		}
		if _, ok := folderIDs[wf.ID]; ok {
			return Snapshot{}, errors.Wrapf(ErrMalformedSnapshot, "duplicate folder id %q", wf.ID)
		}
		folderIDs[wf.ID] = struct{}{}

		f := Folder{
			ID:            wf.ID,
			Name:          wf.Name,
			Conversations: []Conversation{},
			expandedUnset: wf.IsExpanded == nil,
		}
		if wf.IsExpanded != nil {
			f.IsExpanded = *wf.IsExpanded
		}
		if wf.Conversations != nil {
			for _, wc := range *wf.Conversations {
				c, err := decodeConversation(wf.ID, wc)
				if err != nil {
					return Snapshot{}, err
				}
				if _, ok := conversationIDs[c.ID]; ok {
					return Snapshot{}, errors.Wrapf(ErrMalformedSnapshot, "duplicate conversation id %q", c.ID)
				}
				conversationIDs[c.ID] = struct{}{}
				f.Conversations = append(f.Conversations, c)
			}
		}
		ret.Folders = append(ret.Folders, f)
	}

	return ret, nil
}

func decodeConversation(folderID string, wc wireConversation) (Conversation, error) {
	if wc.ID == "" {
		return Conversation{}, errors.Wrapf(ErrMalformedSnapshot, "conversation without id in folder %q", folderID)
	}
	if wc.FolderID != folderID {
		return Conversation{}, errors.Wrapf(ErrMalformedSnapshot,
			"conversation %q claims folder %q but is stored in %q", wc.ID, wc.FolderID, folderID)
	}
	createdAt, err := parseTimestamp(wc.CreatedAt)
	if err != nil {
		return Conversation{}, errors.Wrapf(ErrMalformedSnapshot, "conversation %q createdAt: %v", wc.ID, err)
	}
	updatedAt, err := parseTimestamp(wc.UpdatedAt)
	if err != nil {
		return Conversation{}, errors.Wrapf(ErrMalformedSnapshot, "conversation %q updatedAt: %v", wc.ID, err)
	}
	if updatedAt.Before(createdAt) {
		return Conversation{}, errors.Wrapf(ErrMalformedSnapshot, "conversation %q updated before it was created", wc.ID)
	}
	for _, m := range wc.Messages {
		if !m.Role.IsValid() {
			return Conversation{}, errors.Wrapf(ErrMalformedSnapshot, "conversation %q: message %q has role %q", wc.ID, m.ID, m.Role)
		}
	}

	msgs := wc.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	return Conversation{
		ID:        wc.ID,
		Title:     wc.Title,
		FolderID:  folderID,
		Messages:  msgs,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// SeedSnapshot returns the state of a store that has never been saved.
func SeedSnapshot(now time.Time) Snapshot {
	now = now.UTC().Truncate(time.Millisecond)
	return Snapshot{
		Folders: []Folder{
			{
				ID:         "1",
				Name:       "React",
				IsExpanded: true,
				Conversations: []Conversation{
					{
						ID:        "1-1",
						Title:     "Nova Conversa",
						FolderID:  "1",
						Messages:  []Message{},
						CreatedAt: now,
						UpdatedAt: now,
					},
				},
			},
		},
		ActiveConversationID: "1-1",
	}
}
