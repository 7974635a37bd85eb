package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Longer encoded names fall back to a digest to stay under NAME_MAX.
	maxEncodedName = 200
	digestSuffix   = ".sha256"
)

// FileStore keeps one JSON file per room.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Save writes the room document to its file
func (fs *FileStore) Save(room, content string) error {
	if err := checkRoom(room); err != nil {
		return err
	}

	data, err := json.MarshalIndent(Entry{
		Room:      room,
		Content:   content,
		UpdatedAt: fs.now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Write then rename so a crash never leaves a torn file behind. Each
	// save gets its own temp file so concurrent writers never share one.
	tmp, err := os.CreateTemp(fs.dir, ".save-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path(room)); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Load reads the room document from its file
func (fs *FileStore) Load(room string) (*Entry, error) {
	if err := checkRoom(room); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.path(room))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if entry.Room != room {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Delete removes the room file
func (fs *FileStore) Delete(room string) error {
	if err := checkRoom(room); err != nil {
		return err
	}
	if !fs.Exists(room) {
		return ErrNotFound
	}
	if err := os.Remove(fs.path(room)); err != nil {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// ListAll returns the rooms of every cache file in the directory
func (fs *FileStore) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var rooms []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if strings.HasSuffix(name, digestSuffix) {
			if room, err := fs.roomOf(entry.Name()); err == nil {
				rooms = append(rooms, room)
			}
			continue
		}
		room, err := decodeName(name)
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// Exists checks if the room has a cache file
func (fs *FileStore) Exists(room string) bool {
	if checkRoom(room) != nil {
		return false
	}
	_, err := os.Stat(fs.path(room))
	return err == nil
}

func (fs *FileStore) Close() error { return nil }

// Room tokens are opaque, so file names are base64url encoded. Tokens too
// long for that are stored under their sha256 and listed from the entry.
func (fs *FileStore) path(room string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(room))
	if len(name) > maxEncodedName {
		sum := sha256.Sum256([]byte(room))
		name = hex.EncodeToString(sum[:]) + digestSuffix
	}
	return filepath.Join(fs.dir, name+".json")
}

func (fs *FileStore) roomOf(fileName string) (string, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, fileName))
	if err != nil {
		return "", err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", err
	}
	return entry.Room, nil
}

func decodeName(name string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
