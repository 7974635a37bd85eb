package editor

import (
	"sort"
	"sync"
)

// Buffer is the editing surface a Synchronizer drives. Implementations
// report every content change, including ones caused by SetContent, to the
// OnChange listeners before SetContent returns.
type Buffer interface {
	Content() string
	SetContent(content string)
	ScrollOffset() int
	SetScrollOffset(offset int)
	OnChange(fn func(content string)) (cancel func())
}

// TextBuffer is an in-memory Buffer. Replacing the content resets the
// scroll offset to the top, as editor widgets do.
type TextBuffer struct {
	mu        sync.Mutex
	content   string
	scroll    int
	next      int
	listeners map[int]func(string)
}

// NewTextBuffer creates a buffer holding content.
func NewTextBuffer(content string) *TextBuffer {
	return &TextBuffer{content: content, listeners: make(map[int]func(string))}
}

func (b *TextBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// SetContent replaces the content and notifies listeners synchronously.
func (b *TextBuffer) SetContent(content string) {
	b.mu.Lock()
	b.content = content
	b.scroll = 0
	listeners := b.snapshot()
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(content)
	}
}

// Append adds text at the end of the buffer.
func (b *TextBuffer) Append(text string) {
	b.SetContent(b.Content() + text)
}

func (b *TextBuffer) ScrollOffset() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scroll
}

func (b *TextBuffer) SetScrollOffset(offset int) {
	if offset < 0 {
		offset = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scroll = offset
}

func (b *TextBuffer) OnChange(fn func(content string)) (cancel func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *TextBuffer) snapshot() []func(string) {
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(string), len(ids))
	for i, id := range ids {
		out[i] = b.listeners[id]
	}
	return out
}
