package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("no cached document for room")
	ErrRoomMissing = errors.New("room is required")
	ErrUnknownKind = errors.New("unknown cache kind")
)

// Entry is the cached document for one room.
type Entry struct {
	Room      string    `json:"room"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for the local edit cache
type Store interface {
	// Save overwrites the cached document for a room
	Save(room, content string) error

	// Load returns the cached document for a room, or ErrNotFound
	Load(room string) (*Entry, error)

	// Delete removes the cached document for a room
	Delete(room string) error

	// ListAll returns every cached room
	ListAll() ([]string, error)

	// Exists checks if a room has a cached document
	Exists(room string) bool

	Close() error
}

// Kinds accepted by Open.
const (
	KindFile   = "file"
	KindBolt   = "bolt"
	KindMemory = "memory"
)

// Open creates a store of the given kind. path is a directory for file
// stores and a database file for bolt stores; memory stores ignore it.
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(kind) {
	case KindFile, "":
		return NewFileStore(path)
	case KindBolt:
		return OpenBolt(path)
	case KindMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func checkRoom(room string) error {
	if strings.TrimSpace(room) == "" {
		return ErrRoomMissing
	}
	return nil
}
