package editor

import (
	"errors"
	"strings"
	"testing"

	"github.com/wricardo/codecast/collab/cache"
	"github.com/wricardo/codecast/collab/transport/transporttest"
	"github.com/wricardo/codecast/protocol"
)

func newAttached(t *testing.T, room string, store cache.Store, defaultDoc string) (*Synchronizer, *TextBuffer, *transporttest.Recorder) {
	t.Helper()
	buf := NewTextBuffer("")
	sync := NewSynchronizer(room, buf, store, nil)
	sync.Init(defaultDoc)

	ch := transporttest.NewRecorder()
	sync.Attach(ch)
	t.Cleanup(sync.Detach)
	return sync, buf, ch
}

func codeChanges(t *testing.T, ch *transporttest.Recorder) []protocol.CodeChange {
	t.Helper()
	var out []protocol.CodeChange
	for _, env := range ch.Emitted(protocol.EventCodeChange) {
		var change protocol.CodeChange
		if err := env.Decode(&change); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		out = append(out, change)
	}
	return out
}

func cached(t *testing.T, store cache.Store, room string) string {
	t.Helper()
	entry, err := store.Load(room)
	if err != nil {
		t.Fatalf("Load(%s) failed: %v", room, err)
	}
	return entry.Content
}

func TestInit(t *testing.T) {
	t.Run("default when nothing cached", func(t *testing.T) {
		store := cache.NewMemoryStore()
		_, buf, ch := newAttached(t, "r1", store, "// start")

		if buf.Content() != "// start" {
			t.Errorf("Expected default document, got %q", buf.Content())
		}
		if len(ch.Emitted()) != 0 {
			t.Error("Seeding the buffer must not emit anything")
		}
		if store.Exists("r1") {
			t.Error("Seeding the buffer must not write the cache")
		}
	})

	t.Run("cached document wins", func(t *testing.T) {
		store := cache.NewMemoryStore()
		store.Save("r1", "mine")
		store.Save("r2", "other")

		sync := NewSynchronizer("r1", NewTextBuffer(""), store, nil)
		if !sync.Init("// start") {
			t.Error("Expected Init to report a cache hit")
		}
		if sync.Content() != "mine" {
			t.Errorf("Expected cached document, got %q", sync.Content())
		}
	})
}

func TestLocalEditsSentOnceAndCached(t *testing.T) {
	store := cache.NewMemoryStore()
	_, buf, ch := newAttached(t, "r1", store, "")

	edits := []string{"a", "ab", "abc", "ab"}
	for i, edit := range edits {
		buf.SetContent(edit)

		changes := codeChanges(t, ch)
		if len(changes) != i+1 {
			t.Fatalf("After %d edits expected %d code-change events, got %d", i+1, i+1, len(changes))
		}
		if changes[i].Content != edit || changes[i].Room != "r1" {
			t.Errorf("Edit %d: unexpected event %+v", i, changes[i])
		}
		if got := cached(t, store, "r1"); got != edit {
			t.Errorf("Edit %d: cache holds %q, expected %q", i, got, edit)
		}
	}

	// A remote document reaches the buffer but never the cache.
	ch.Deliver(protocol.EventCodeChange, protocol.CodeChange{Room: "r1", Content: "remote"})
	if got := cached(t, store, "r1"); got != "ab" {
		t.Errorf("Cache should still hold the last local edit, got %q", got)
	}
}

func TestRemoteChangeNoEcho(t *testing.T) {
	store := cache.NewMemoryStore()
	sync, buf, ch := newAttached(t, "r1", store, "local")

	var seenState State = Idle
	fired := 0
	buf.OnChange(func(string) {
		fired++
		seenState = sync.State()
	})

	ch.Deliver(protocol.EventCodeChange, protocol.CodeChange{Room: "r1", Content: "remote"})

	if fired != 1 {
		t.Fatalf("Expected the apply to fire the change callback once, got %d", fired)
	}
	if seenState != ApplyingRemote {
		t.Errorf("Callback should observe ApplyingRemote, got %s", seenState)
	}
	if n := len(codeChanges(t, ch)); n != 0 {
		t.Errorf("Expected zero outbound code-change events, got %d", n)
	}
	if sync.State() != Idle {
		t.Errorf("Expected Idle after the apply, got %s", sync.State())
	}
	if buf.Content() != "remote" {
		t.Errorf("Expected buffer 'remote', got %q", buf.Content())
	}
}

func TestApplyLocalChangeWhileApplyingRemote(t *testing.T) {
	sync, _, ch := newAttached(t, "r1", cache.NewMemoryStore(), "")

	sync.state = ApplyingRemote
	if err := sync.ApplyLocalChange("echo"); err != nil {
		t.Fatalf("ApplyLocalChange failed: %v", err)
	}
	sync.state = Idle

	if len(ch.Emitted()) != 0 {
		t.Error("Nothing should be sent while applying a remote document")
	}
}

func TestRemoteChangeIdempotent(t *testing.T) {
	_, buf, ch := newAttached(t, "r1", nil, "same")
	buf.SetScrollOffset(42)
	ch.Reset()

	fired := 0
	buf.OnChange(func(string) { fired++ })

	ch.Deliver(protocol.EventCodeChange, protocol.CodeChange{Room: "r1", Content: "same"})

	if fired != 0 {
		t.Errorf("Identical content must not touch the buffer, %d changes fired", fired)
	}
	if buf.ScrollOffset() != 42 {
		t.Errorf("Scroll offset changed to %d", buf.ScrollOffset())
	}
	if len(ch.Emitted()) != 0 {
		t.Error("Identical content must not emit")
	}
}

func TestScrollPreservation(t *testing.T) {
	_, buf, ch := newAttached(t, "r1", nil, "one")
	buf.SetScrollOffset(17)

	ch.Deliver(protocol.EventCodeChange, protocol.CodeChange{Room: "r1", Content: "two"})
	if buf.ScrollOffset() != 17 {
		t.Errorf("code-change should keep scroll offset 17, got %d", buf.ScrollOffset())
	}

	ch.Deliver(protocol.EventCodeSync, protocol.CodeSync{Content: "three"})
	if buf.ScrollOffset() != 0 {
		t.Errorf("code-sync does not preserve scroll, expected 0, got %d", buf.ScrollOffset())
	}
}

func TestStaleRoomIgnored(t *testing.T) {
	_, buf, ch := newAttached(t, "r1", nil, "mine")

	ch.Deliver(protocol.EventCodeChange, protocol.CodeChange{Room: "r2", Content: "theirs"})

	if buf.Content() != "mine" {
		t.Errorf("code-change for another room must be ignored, got %q", buf.Content())
	}
}

func TestJoinSyncThenType(t *testing.T) {
	store := cache.NewMemoryStore()
	_, buf, ch := newAttached(t, "r1", store, "// start")

	if buf.Content() != "// start" {
		t.Fatalf("Expected default document, got %q", buf.Content())
	}

	ch.Deliver(protocol.EventCodeSync, protocol.CodeSync{Content: "x=1"})
	if buf.Content() != "x=1" {
		t.Fatalf("Expected buffer 'x=1' after code-sync, got %q", buf.Content())
	}
	if len(ch.Emitted()) != 0 {
		t.Fatal("code-sync must not be sent back")
	}

	buf.SetContent("x=2")

	changes := codeChanges(t, ch)
	if len(changes) != 1 || changes[0] != (protocol.CodeChange{Room: "r1", Content: "x=2"}) {
		t.Errorf("Expected exactly one code-change {r1 x=2}, got %+v", changes)
	}
	if got := cached(t, store, "r1"); got != "x=2" {
		t.Errorf("Expected cache 'x=2', got %q", got)
	}
}

func TestConcurrentWritersLastArrivalWins(t *testing.T) {
	_, buf, ch := newAttached(t, "r1", nil, "base")

	ch.Deliver(protocol.EventCodeChange, protocol.CodeChange{Room: "r1", Content: "from alice"})
	ch.Deliver(protocol.EventCodeChange, protocol.CodeChange{Room: "r1", Content: "from bob"})

	if buf.Content() != "from bob" {
		t.Errorf("Expected the second arrival to win, got %q", buf.Content())
	}
	if len(ch.Emitted()) != 0 {
		t.Error("Applying remote documents must not emit")
	}
}

type failingStore struct{ cache.Store }

func (failingStore) Save(string, string) error { return errors.New("disk full") }

func TestCacheFailureStillSends(t *testing.T) {
	sync, _, ch := newAttached(t, "r1", failingStore{cache.NewMemoryStore()}, "")

	err := sync.ApplyLocalChange("x")
	if err == nil {
		t.Error("Expected the cache error to be reported")
	}
	if n := len(codeChanges(t, ch)); n != 1 {
		t.Errorf("Expected the edit to be sent despite the cache error, got %d events", n)
	}
}

func TestDetach(t *testing.T) {
	_, buf, ch := newAttached(t, "r1", nil, "")
	sync := NewSynchronizer("r1", buf, nil, nil)
	sync.Attach(ch)
	sync.Detach()
	ch.Reset()

	// Only the synchronizer from newAttached is still listening.
	buf.SetContent("typed")
	if n := len(codeChanges(t, ch)); n != 1 {
		t.Errorf("Expected 1 code-change from the attached synchronizer, got %d", n)
	}
}

func TestLocalChangeRefusesContentPeersCannotReceive(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"invalid UTF-8", "caf\xe9", ErrInvalidContent},
		{"larger than one frame", strings.Repeat("a", protocol.MaxFrameSize), protocol.ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore()
			sync, _, ch := newAttached(t, "r1", store, "")

			if err := sync.Validate(tt.content); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate: expected %v, got %v", tt.wantErr, err)
			}
			if err := sync.ApplyLocalChange(tt.content); !errors.Is(err, tt.wantErr) {
				t.Errorf("ApplyLocalChange: expected %v, got %v", tt.wantErr, err)
			}
			if len(ch.Emitted()) != 0 {
				t.Error("Refused content must not be sent")
			}
			if store.Exists("r1") {
				t.Error("Refused content must not be cached")
			}
		})
	}

	t.Run("valid multibyte text", func(t *testing.T) {
		sync, _, ch := newAttached(t, "r1", nil, "")
		if err := sync.ApplyLocalChange("café ☕"); err != nil {
			t.Fatalf("ApplyLocalChange failed: %v", err)
		}
		if changes := codeChanges(t, ch); len(changes) != 1 || changes[0].Content != "café ☕" {
			t.Errorf("Expected the text to be sent unchanged, got %+v", changes)
		}
	})
}

func TestOnRemoteChange(t *testing.T) {
	sync, buf, _ := newAttached(t, "r1", nil, "base")

	var seen []string
	cancel := sync.OnRemoteChange(func(content string) { seen = append(seen, content) })

	buf.SetContent("local")
	sync.HandleRemoteChange("remote")
	sync.HandleRemoteChange("remote")
	sync.HandleSync("synced")

	if len(seen) != 2 || seen[0] != "remote" || seen[1] != "synced" {
		t.Errorf("Expected only applied remote documents, got %q", seen)
	}
	if sync.State() != Idle {
		t.Errorf("Expected idle after the apply, got %s", sync.State())
	}

	cancel()
	sync.HandleRemoteChange("after cancel")
	if len(seen) != 2 {
		t.Errorf("Cancelled listener was called: %q", seen)
	}
}
