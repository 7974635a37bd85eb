package cache

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

func (m *MemoryStore) Save(room, content string) error {
	if err := checkRoom(room); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[room] = Entry{Room: room, Content: content, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *MemoryStore) Load(room string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[room]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (m *MemoryStore) Delete(room string) error {
	if err := checkRoom(room); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[room]; !ok {
		return ErrNotFound
	}
	delete(m.entries, room)
	return nil
}

func (m *MemoryStore) ListAll() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]string, 0, len(m.entries))
	for room := range m.entries {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (m *MemoryStore) Exists(room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[room]
	return ok
}

func (m *MemoryStore) Close() error { return nil }
