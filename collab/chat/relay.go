// Package chat relays a room's chat feed. Messages are shown in the order
// they arrive and are never stored, deduplicated or acknowledged.
package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/codecast/collab/transport"
	"github.com/wricardo/codecast/protocol"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNotAttached  = errors.New("chat relay is not attached")
)

// Message is one received chat message.
type Message struct {
	Author string
	Body   string
	SentAt time.Time
}

// DisplayTime formats SentAt at minute resolution in loc.
func (m Message) DisplayTime(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return m.SentAt.In(loc).Format("15:04")
}

// Relay sends chat messages for one room and keeps the received feed.
type Relay struct {
	mu        sync.Mutex
	room      string
	emitter   transport.Emitter
	feed      []Message
	next      int
	listeners map[int]func(Message)
	cancel    func()
}

// NewRelay creates a relay for room.
func NewRelay(room string) *Relay {
	return &Relay{room: room, listeners: make(map[int]func(Message))}
}

// Attach starts receiving chat messages from ch and sending through it.
func (r *Relay) Attach(ch transport.Channel) {
	r.mu.Lock()
	r.emitter = ch
	r.mu.Unlock()

	r.cancel = ch.Subscribe(protocol.EventChatMessage, func(env *protocol.Envelope) {
		var msg protocol.ChatMessage
		if err := env.Decode(&msg); err != nil {
			return
		}
		r.Receive(Message{Author: msg.Author, Body: msg.Body, SentAt: msg.SentAt})
	})
}

// Detach stops receiving and sending.
func (r *Relay) Detach() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Lock()
	r.emitter = nil
	r.mu.Unlock()
}

// Send posts body to room after trimming surrounding whitespace.
// Empty messages are rejected and nothing is sent.
func (r *Relay) Send(room, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}

	r.mu.Lock()
	emitter := r.emitter
	r.mu.Unlock()
	if emitter == nil {
		return ErrNotAttached
	}
	if room == "" {
		room = r.room
	}
	return emitter.Emit(protocol.EventChatMessage, protocol.ChatSend{Room: room, Body: body})
}

// Receive appends msg to the feed and notifies listeners.
func (r *Relay) Receive(msg Message) {
	r.mu.Lock()
	r.feed = append(r.feed, msg)
	listeners := make([]func(Message), 0, len(r.listeners))
	for id := 0; id <= r.next; id++ {
		if fn, ok := r.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

// OnMessage calls fn for every message received from now on.
func (r *Relay) OnMessage(fn func(Message)) (cancel func()) {
	r.mu.Lock()
	r.next++
	id := r.next
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Feed returns the received messages in arrival order.
func (r *Relay) Feed() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.feed...)
}
