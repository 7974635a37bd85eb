// Package transporttest provides an in-memory transport.Channel for testing
// room components without a registry.
package transporttest

import (
	"sync"

	"github.com/wricardo/codecast/collab/transport"
	"github.com/wricardo/codecast/protocol"
)

// Recorder records every emitted event and lets tests deliver inbound ones.
type Recorder struct {
	*transport.Router

	mu      sync.Mutex
	emitted []*protocol.Envelope

	// EmitErr, when set, is returned by Emit and nothing is recorded.
	EmitErr error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Router: transport.NewRouter()}
}

func (r *Recorder) Emit(eventType protocol.EventType, payload interface{}) error {
	env, err := protocol.NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EmitErr != nil {
		return r.EmitErr
	}
	r.emitted = append(r.emitted, env)
	return nil
}

// Emitted returns every recorded event of the given type, or all events
// when no type is given.
func (r *Recorder) Emitted(types ...protocol.EventType) []*protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*protocol.Envelope
	for _, env := range r.emitted {
		if len(types) == 0 || contains(types, env.Type) {
			out = append(out, env)
		}
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = nil
}

// Deliver dispatches an inbound event to subscribers and reports how many
// handled it.
func (r *Recorder) Deliver(eventType protocol.EventType, payload interface{}) int {
	env, err := protocol.NewEnvelope(eventType, payload)
	if err != nil {
		panic(err)
	}
	return r.Dispatch(env)
}

func contains(types []protocol.EventType, t protocol.EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
