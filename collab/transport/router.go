package transport

import (
	"sync"

	"github.com/wricardo/codecast/protocol"
)

// Handler receives one inbound event.
type Handler func(env *protocol.Envelope)

// Emitter sends one event to the registry.
type Emitter interface {
	Emit(eventType protocol.EventType, payload interface{}) error
}

// Channel is what room components attach to: a way to emit events and a way
// to subscribe to inbound ones. Every Subscribe returns the function that
// undoes it.
type Channel interface {
	Emitter
	Subscribe(eventType protocol.EventType, h Handler) (cancel func())
}

// Link pairs an Emitter with a Router to form a Channel.
type Link struct {
	Emitter
	*Router
}

type subscription struct {
	id int
	h  Handler
}

// Router dispatches inbound envelopes to subscribed handlers in
// subscription order.
type Router struct {
	mu   sync.Mutex
	next int
	subs map[protocol.EventType][]subscription
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{subs: make(map[protocol.EventType][]subscription)}
}

// Subscribe registers h for eventType. Calling cancel more than once is
// harmless.
func (r *Router) Subscribe(eventType protocol.EventType, h Handler) (cancel func()) {
	r.mu.Lock()
	r.next++
	id := r.next
	r.subs[eventType] = append(r.subs[eventType], subscription{id: id, h: h})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(eventType, id) })
	}
}

func (r *Router) remove(eventType protocol.EventType, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			r.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subs[eventType]) == 0 {
		delete(r.subs, eventType)
	}
}

// Dispatch calls every handler subscribed to env.Type and reports how many
// ran. Handlers may subscribe or cancel while being dispatched.
func (r *Router) Dispatch(env *protocol.Envelope) int {
	r.mu.Lock()
	subs := make([]subscription, len(r.subs[env.Type]))
	copy(subs, r.subs[env.Type])
	r.mu.Unlock()

	for _, s := range subs {
		s.h(env)
	}
	return len(subs)
}

// Len returns the number of live subscriptions.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, subs := range r.subs {
		n += len(subs)
	}
	return n
}
