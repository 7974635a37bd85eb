package transport

import (
	"testing"

	"github.com/wricardo/codecast/protocol"
)

func TestRouterDispatchOrder(t *testing.T) {
	r := NewRouter()
	var calls []string

	r.Subscribe(protocol.EventCodeChange, func(*protocol.Envelope) { calls = append(calls, "first") })
	r.Subscribe(protocol.EventCodeChange, func(*protocol.Envelope) { calls = append(calls, "second") })
	r.Subscribe(protocol.EventChatMessage, func(*protocol.Envelope) { calls = append(calls, "chat") })

	n := r.Dispatch(&protocol.Envelope{Type: protocol.EventCodeChange})
	if n != 2 {
		t.Errorf("Expected 2 handlers, got %d", n)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("Unexpected call order: %v", calls)
	}
}

func TestRouterCancel(t *testing.T) {
	r := NewRouter()
	count := 0
	cancel := r.Subscribe(protocol.EventRosterSync, func(*protocol.Envelope) { count++ })
	r.Subscribe(protocol.EventRosterSync, func(*protocol.Envelope) {})

	cancel()
	cancel()

	if r.Len() != 1 {
		t.Errorf("Expected 1 live subscription, got %d", r.Len())
	}
	r.Dispatch(&protocol.Envelope{Type: protocol.EventRosterSync})
	if count != 0 {
		t.Error("Cancelled handler should not run")
	}
}

func TestRouterCancelDuringDispatch(t *testing.T) {
	r := NewRouter()
	var cancel func()
	ran := 0
	cancel = r.Subscribe(protocol.EventCodeSync, func(*protocol.Envelope) {
		ran++
		cancel()
	})

	r.Dispatch(&protocol.Envelope{Type: protocol.EventCodeSync})
	r.Dispatch(&protocol.Envelope{Type: protocol.EventCodeSync})

	if ran != 1 {
		t.Errorf("Expected handler to run once, ran %d times", ran)
	}
	if r.Len() != 0 {
		t.Errorf("Expected no subscriptions, got %d", r.Len())
	}
}

func TestRouterNoSubscribers(t *testing.T) {
	r := NewRouter()
	if n := r.Dispatch(&protocol.Envelope{Type: protocol.EventError}); n != 0 {
		t.Errorf("Expected 0 handlers, got %d", n)
	}
}
