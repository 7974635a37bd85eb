package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	boltStore, err := OpenBolt(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("Failed to open bolt store: %v", err)
	}
	t.Cleanup(func() { boltStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"bolt":   boltStore,
		"memory": NewMemoryStore(),
	}
}

func TestStores(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("Load missing room", func(t *testing.T) {
				if _, err := store.Load("nope"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Expected ErrNotFound, got %v", err)
				}
				if store.Exists("nope") {
					t.Error("Missing room should not exist")
				}
			})

			t.Run("Save overwrites", func(t *testing.T) {
				if err := store.Save("r1", "x=1"); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
				if err := store.Save("r1", "x=2"); err != nil {
					t.Fatalf("Save failed: %v", err)
				}

				entry, err := store.Load("r1")
				if err != nil {
					t.Fatalf("Load failed: %v", err)
				}
				if entry.Content != "x=2" || entry.Room != "r1" {
					t.Errorf("Unexpected entry: %+v", entry)
				}
				if entry.UpdatedAt.IsZero() {
					t.Error("UpdatedAt should be set")
				}
				if !store.Exists("r1") {
					t.Error("r1 should exist")
				}
			})

			t.Run("Rooms are isolated", func(t *testing.T) {
				store.Save("r2", "y")
				entry, _ := store.Load("r1")
				if entry.Content != "x=2" {
					t.Errorf("r1 changed by saving r2: %q", entry.Content)
				}

				rooms, err := store.ListAll()
				if err != nil {
					t.Fatalf("ListAll failed: %v", err)
				}
				sort.Strings(rooms)
				if len(rooms) != 2 || rooms[0] != "r1" || rooms[1] != "r2" {
					t.Errorf("Unexpected rooms: %v", rooms)
				}
			})

			t.Run("Delete", func(t *testing.T) {
				if err := store.Delete("r2"); err != nil {
					t.Fatalf("Delete failed: %v", err)
				}
				if err := store.Delete("r2"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Expected ErrNotFound on second delete, got %v", err)
				}
			})

			t.Run("Empty room rejected", func(t *testing.T) {
				if err := store.Save("  ", "x"); !errors.Is(err, ErrRoomMissing) {
					t.Errorf("Save: expected ErrRoomMissing, got %v", err)
				}
				if _, err := store.Load(""); !errors.Is(err, ErrRoomMissing) {
					t.Errorf("Load: expected ErrRoomMissing, got %v", err)
				}
				if err := store.Delete(""); !errors.Is(err, ErrRoomMissing) {
					t.Errorf("Delete: expected ErrRoomMissing, got %v", err)
				}
			})

			t.Run("Long room token", func(t *testing.T) {
				room := strings.Repeat("r", 400)
				if err := store.Save(room, "x"); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
				entry, err := store.Load(room)
				if err != nil {
					t.Fatalf("Load failed: %v", err)
				}
				if entry.Content != "x" {
					t.Errorf("Unexpected content %q", entry.Content)
				}
				if _, err := store.Load(strings.Repeat("r", 399)); !errors.Is(err, ErrNotFound) {
					t.Errorf("Expected ErrNotFound for a different long token, got %v", err)
				}

				rooms, _ := store.ListAll()
				found := false
				for _, r := range rooms {
					found = found || r == room
				}
				if !found {
					t.Errorf("Expected the long token in ListAll, got %d rooms", len(rooms))
				}

				if err := store.Delete(room); err != nil {
					t.Errorf("Delete failed: %v", err)
				}
			})
		})
	}
}

func TestFileStoreOpaqueRoomNames(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	room := "../../etc/passwd"
	if err := store.Save(room, "safe"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Fatalf("Expected 1 file in cache dir, got %d", len(files))
	}

	rooms, _ := store.ListAll()
	if len(rooms) != 1 || rooms[0] != room {
		t.Errorf("Expected room %q to round-trip through file name, got %v", room, rooms)
	}
}

func TestFileStoreConcurrentSaves(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Save("r1", strings.Repeat("x", i+1))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Save failed: %v", err)
		}
	}

	entry, err := store.Load("r1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if strings.Trim(entry.Content, "x") != "" || entry.Content == "" {
		t.Errorf("Expected one whole save to win, got %q", entry.Content)
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Errorf("Expected no temp files left behind, got %d files", len(files))
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, _ := NewFileStore(dir)
	first.Save("r1", "persisted")

	second, _ := NewFileStore(dir)
	entry, err := second.Load("r1")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if entry.Content != "persisted" {
		t.Errorf("Expected 'persisted', got %q", entry.Content)
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	first, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	first.Save("r1", "persisted")
	first.Close()

	second, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer second.Close()

	entry, err := second.Load("r1")
	if err != nil || entry.Content != "persisted" {
		t.Errorf("Expected persisted entry, got %+v, %v", entry, err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		kind    string
		path    string
		wantErr error
	}{
		{KindFile, filepath.Join(dir, "f"), nil},
		{"", filepath.Join(dir, "default"), nil},
		{KindBolt, filepath.Join(dir, "b.db"), nil},
		{KindMemory, "", nil},
		{"redis", "", ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			store, err := Open(tt.kind, tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			store.Close()
		})
	}
}
