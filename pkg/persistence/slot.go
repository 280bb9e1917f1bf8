// Package persistence holds the durable key/value slots a conversation store
// is saved into. A slot stores one opaque document under a fixed name.
package persistence

import (
	"context"
	"sync"
)

// DefaultSlotName is the slot the chat client has always used.
const DefaultSlotName = "devchat-data"

// Slot is a single named durable document.
type Slot interface {
	Name() string
	// Load returns the stored document. found is false when nothing was ever saved.
	Load(ctx context.Context) (data []byte, found bool, err error)
	// Save replaces the stored document.
	Save(ctx context.Context, data []byte) error
}

// MemorySlot keeps the document in process memory.
type MemorySlot struct {
	name string

	mu    sync.Mutex
	data  []byte
	found bool
	saves int
}

func NewMemorySlot(name string) *MemorySlot {
	if name == "" {
		name = DefaultSlotName
	}
	return &MemorySlot{name: name}
}

// NewMemorySlotWithData returns a slot that already holds data.
func NewMemorySlotWithData(name string, data []byte) *MemorySlot {
	s := NewMemorySlot(name)
	s.data = append([]byte(nil), data...)
	s.found = true
	return s
}

func (m *MemorySlot) Name() string {
	return m.name
}

func (m *MemorySlot) Load(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.found {
		return nil, false, nil
	}
	return append([]byte(nil), m.data...), true, nil
}

func (m *MemorySlot) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.found = true
	m.saves++
	return nil
}

// Saves returns how many times the slot was written.
func (m *MemorySlot) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var _ Slot = (*MemorySlot)(nil)
