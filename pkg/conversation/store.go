package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/devchat/pkg/persistence"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ChangeKind string

const (
	ChangeLoaded              ChangeKind = "loaded"
	ChangeFolderAdded         ChangeKind = "folder-added"
	ChangeFolderDeleted       ChangeKind = "folder-deleted"
	ChangeFolderRenamed       ChangeKind = "folder-renamed"
	ChangeFolderToggled       ChangeKind = "folder-toggled"
	ChangeConversationAdded   ChangeKind = "conversation-added"
	ChangeConversationDeleted ChangeKind = "conversation-deleted"
	ChangeConversationRenamed ChangeKind = "conversation-renamed"
	ChangeSelected            ChangeKind = "selected"
	ChangeMessagesReplaced    ChangeKind = "messages-replaced"
)

// Change describes one applied mutation. Version increases by one with every
// change of a given store.
type Change struct {
	Kind           ChangeKind
	FolderID       string
	ConversationID string
	Version        uint64
}

// Store is the folder / conversation tree of one client together with the
// active conversation id.
//
// All mutations are serialized. After each one the whole snapshot is written
// to the slot, still under the lock, so slot writes happen in mutation order.
// Listeners are called after the lock is released.
type Store struct {
	mu       sync.Mutex
	folders  []Folder
	activeID string
	slot     persistence.Slot
	stamps   stampSource
	version  uint64
	saveErr  error

	listenersMu  sync.Mutex
	listeners    map[int]func(Change)
	nextListener int
}

type Option func(*Store)

func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.stamps.clock = clock
		}
	}
}

// WithSlot sets the slot the store saves into. Without a slot the store only
// lives in memory.
func WithSlot(slot persistence.Slot) Option {
	return func(s *Store) {
		s.slot = slot
	}
}

// NewStore returns an empty store. Use Open to restore a persisted one.
func NewStore(options ...Option) *Store {
	s := &Store{
		folders:   []Folder{},
		stamps:    stampSource{clock: time.Now},
		listeners: map[int]func(Change){},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Open creates a store backed by slot and restores it.
//
// A missing or malformed document yields the seed state, which is saved right
// away. Only a failure to read the slot is returned.
func Open(ctx context.Context, slot persistence.Slot, options ...Option) (*Store, error) {
	if slot == nil {
		return nil, errors.New("conversation store: nil slot")
	}
	s := NewStore(append(options, WithSlot(slot))...)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory tree with the slot's document, falling back to
// the seed state when the document is missing or malformed.
func (s *Store) Load(ctx context.Context) error {
	if s.slot == nil {
		return errors.New("conversation store: no slot configured")
	}

	data, found, err := s.slot.Load(ctx)
	if err != nil {
		return errors.Wrapf(err, "loading slot %q", s.slot.Name())
	}

	var snap Snapshot
	seeded := false
	if !found {
		log.Debug().Str("slot", s.slot.Name()).Msg("No saved conversations, seeding store")
		seeded = true
	} else {
		snap, err = DecodeSnapshot(data)
		if err != nil {
			log.Warn().Err(err).Str("slot", s.slot.Name()).Msg("Discarding unreadable conversations, seeding store")
			seeded = true
		}
	}

	s.mu.Lock()
	if seeded {
		snap = SeedSnapshot(s.stamps.now())
	}
	s.stamps.observeSnapshot(snap)
	s.folders = snap.Folders
	s.activeID = snap.ActiveConversationID
	s.version++
	ch := Change{Kind: ChangeLoaded, ConversationID: s.activeID, Version: s.version}
	var saveErr error
	if seeded {
		saveErr = s.saveLocked(ctx)
	}
	s.mu.Unlock()

	if saveErr != nil {
		log.Warn().Err(saveErr).Str("slot", s.slot.Name()).Msg("Could not save seeded conversations")
	}
	s.notify(ch)
	return nil
}

// Save writes the current tree to the slot.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return errors.New("conversation store: no slot configured")
	}
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	data, err := EncodeSnapshot(s.snapshotLocked())
	if err != nil {
		return err
	}
	return s.slot.Save(ctx, data)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Folders: s.folders, ActiveConversationID: s.activeID}
}

// Subscribe registers fn to be called after every applied mutation. The
// returned function removes the listener.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.listenersMu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// mutate runs fn under the store lock. When fn reports a change, the version
// is bumped, the snapshot persisted and listeners notified.
func (s *Store) mutate(fn func() (Change, bool)) bool {
	s.mu.Lock()
	ch, ok := fn()
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.version++
	ch.Version = s.version
	if s.slot != nil {
		s.saveErr = s.saveLocked(context.Background())
		if s.saveErr != nil {
			log.Error().Err(s.saveErr).
				Str("slot", s.slot.Name()).
				Str("change", string(ch.Kind)).
				Msg("Could not save conversations")
		}
	}
	s.mu.Unlock()

	s.notify(ch)
	return true
}

// LastSaveError returns the error of the most recent save after a mutation,
// or nil if it succeeded. The in-memory state is kept either way.
func (s *Store) LastSaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveErr
}

func (s *Store) findFolderLocked(id string) (int, bool) {
	return s.snapshotLocked().FindFolder(id)
}

func (s *Store) findConversationLocked(id string) (int, int, bool) {
	return s.snapshotLocked().FindConversation(id)
}

// AddFolder appends a new expanded folder. Name validation is up to the caller.
func (s *Store) AddFolder(name string) Folder {
	var ret Folder
	s.mutate(func() (Change, bool) {
		id := folderID(s.stamps.next(s.stamps.now()))
		f := Folder{
			ID:            id,
			Name:          name,
			Conversations: []Conversation{},
			IsExpanded:    true,
		}
		s.folders = append(s.folders, f)
		ret = deepCopy(f)
		return Change{Kind: ChangeFolderAdded, FolderID: id}, true
	})
	return ret
}

// DeleteFolder removes a folder with all of its conversations. The selection
// is cleared if the active conversation was inside.
func (s *Store) DeleteFolder(id string) bool {
	return s.mutate(func() (Change, bool) {
		fi, ok := s.findFolderLocked(id)
		if !ok {
			return Change{}, false
		}
		for _, c := range s.folders[fi].Conversations {
			if c.ID == s.activeID {
				s.activeID = ""
			}
		}
		s.folders = append(s.folders[:fi:fi], s.folders[fi+1:]...)
		return Change{Kind: ChangeFolderDeleted, FolderID: id}, true
	})
}

func (s *Store) RenameFolder(id string, name string) bool {
	return s.mutate(func() (Change, bool) {
		fi, ok := s.findFolderLocked(id)
		if !ok {
			return Change{}, false
		}
		s.folders[fi].Name = name
		return Change{Kind: ChangeFolderRenamed, FolderID: id}, true
	})
}

// ToggleFolder flips the expanded flag of a folder.
func (s *Store) ToggleFolder(id string) bool {
	return s.mutate(func() (Change, bool) {
		fi, ok := s.findFolderLocked(id)
		if !ok {
			return Change{}, false
		}
		s.folders[fi].IsExpanded = !s.folders[fi].IsExpanded
		s.folders[fi].expandedUnset = false
		return Change{Kind: ChangeFolderToggled, FolderID: id}, true
	})
}

// AddConversation appends an empty conversation to a folder and makes it
// active. It returns false when the folder does not exist.
func (s *Store) AddConversation(folderID string, title string) (Conversation, bool) {
	var ret Conversation
	ok := s.mutate(func() (Change, bool) {
		fi, ok := s.findFolderLocked(folderID)
		if !ok {
			return Change{}, false
		}
		now := s.stamps.now()
		c := Conversation{
			ID:        conversationID(folderID, s.stamps.next(now)),
			Title:     title,
			FolderID:  folderID,
			Messages:  []Message{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.folders[fi].Conversations = append(s.folders[fi].Conversations, c)
		s.activeID = c.ID
		ret = deepCopy(c)
		return Change{Kind: ChangeConversationAdded, FolderID: folderID, ConversationID: c.ID}, true
	})
	return ret, ok
}

// DeleteConversation removes a conversation from whichever folder holds it.
func (s *Store) DeleteConversation(id string) bool {
	return s.mutate(func() (Change, bool) {
		fi, ci, ok := s.findConversationLocked(id)
		if !ok {
			return Change{}, false
		}
		convs := s.folders[fi].Conversations
		s.folders[fi].Conversations = append(convs[:ci:ci], convs[ci+1:]...)
		if s.activeID == id {
			s.activeID = ""
		}
		return Change{Kind: ChangeConversationDeleted, FolderID: s.folders[fi].ID, ConversationID: id}, true
	})
}

func (s *Store) RenameConversation(id string, title string) bool {
	return s.mutate(func() (Change, bool) {
		fi, ci, ok := s.findConversationLocked(id)
		if !ok {
			return Change{}, false
		}
		s.folders[fi].Conversations[ci].Title = title
		return Change{Kind: ChangeConversationRenamed, FolderID: s.folders[fi].ID, ConversationID: id}, true
	})
}

// SelectConversation sets the active id without checking that it exists. An
// empty id clears the selection.
func (s *Store) SelectConversation(id string) {
	s.mutate(func() (Change, bool) {
		s.activeID = id
		return Change{Kind: ChangeSelected, ConversationID: id}, true
	})
}

// ReplaceMessages swaps the whole message list of a conversation and bumps
// its updatedAt. Unknown ids are ignored.
func (s *Store) ReplaceMessages(conversationID string, messages []Message) bool {
	msgs := deepCopy(messages)
	if msgs == nil {
		msgs = []Message{}
	}
	return s.mutate(func() (Change, bool) {
		fi, ci, ok := s.findConversationLocked(conversationID)
		if !ok {
			return Change{}, false
		}
		c := &s.folders[fi].Conversations[ci]
		now := s.stamps.now()
		if now.Before(c.CreatedAt) {
			now = c.CreatedAt
		}
		c.Messages = msgs
		c.UpdatedAt = now
		return Change{Kind: ChangeMessagesReplaced, FolderID: c.FolderID, ConversationID: conversationID}, true
	})
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked().Clone()
}

func (s *Store) Folders() []Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.folders)
}

func (s *Store) Folder(id string) (Folder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, ok := s.findFolderLocked(id)
	if !ok {
		return Folder{}, false
	}
	return deepCopy(s.folders[fi]), true
}

func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, ci, ok := s.findConversationLocked(id)
	if !ok {
		return Conversation{}, false
	}
	return deepCopy(s.folders[fi].Conversations[ci]), true
}

// FolderOf returns the folder holding the given conversation.
func (s *Store) FolderOf(conversationID string) (Folder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, _, ok := s.findConversationLocked(conversationID)
	if !ok {
		return Folder{}, false
	}
	return deepCopy(s.folders[fi]), true
}

// ActiveConversationID returns the raw active id, which may be stale.
func (s *Store) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveConversation resolves the active id. A stale or empty id yields false.
func (s *Store) ActiveConversation() (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.snapshotLocked().ActiveConversation()
	if !ok {
		return Conversation{}, false
	}
	return deepCopy(c), true
}

func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked().ConversationCount()
}

// Version returns the number of changes applied so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
