// Package roster keeps a client's view of who is in its room.
package roster

import (
	"fmt"
	"sync"

	"github.com/wricardo/codecast/collab/notify"
	"github.com/wricardo/codecast/collab/transport"
	"github.com/wricardo/codecast/protocol"
)

// Tracker maintains the ordered participant list for one room visit. The
// roster-sync received after joining replaces it wholesale; later joins and
// departures are applied as deltas keyed by connection id.
type Tracker struct {
	self     func() string
	notifier notify.Notifier

	mu           sync.RWMutex
	participants []protocol.Participant
	cancels      []func()
}

// NewTracker creates a tracker. self reports the current connection id so
// that the client's own arrivals and departures are not announced.
func NewTracker(self func() string, notifier notify.Notifier) *Tracker {
	if self == nil {
		self = func() string { return "" }
	}
	return &Tracker{
		self:     self,
		notifier: notify.OrDiscard(notifier),
	}
}

// Attach subscribes the tracker to membership events on ch.
func (t *Tracker) Attach(ch transport.Channel) {
	t.cancels = append(t.cancels,
		ch.Subscribe(protocol.EventRosterSync, func(env *protocol.Envelope) {
			var snapshot protocol.RosterSync
			if env.Decode(&snapshot) == nil {
				t.HandleRosterSync(snapshot)
			}
		}),
		ch.Subscribe(protocol.EventParticipantJoined, func(env *protocol.Envelope) {
			var joined protocol.ParticipantJoined
			if env.Decode(&joined) == nil {
				t.HandleParticipantJoined(joined)
			}
		}),
		ch.Subscribe(protocol.EventParticipantLeft, func(env *protocol.Envelope) {
			var left protocol.ParticipantLeft
			if env.Decode(&left) == nil {
				t.HandleParticipantLeft(left)
			}
		}),
	)
}

// Detach cancels every subscription made by Attach.
func (t *Tracker) Detach() {
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cancels = nil
}

// HandleRosterSync replaces the roster with the registry's list.
func (t *Tracker) HandleRosterSync(snapshot protocol.RosterSync) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.participants = append([]protocol.Participant(nil), snapshot.Participants...)
}

// HandleParticipantJoined appends a newcomer unless its connection id is
// already present.
func (t *Tracker) HandleParticipantJoined(joined protocol.ParticipantJoined) {
	if joined.ConnectionID == "" {
		return
	}

	t.mu.Lock()
	if t.indexOf(joined.ConnectionID) >= 0 {
		t.mu.Unlock()
		return
	}
	t.participants = append(t.participants, protocol.Participant{
		ConnectionID: joined.ConnectionID,
		DisplayName:  joined.DisplayName,
	})
	t.mu.Unlock()

	if joined.ConnectionID != t.self() {
		t.notifier.Notify(notify.Notification{
			Level:   notify.Info,
			Message: fmt.Sprintf("%s joined the room", joined.DisplayName),
		})
	}
}

// HandleParticipantLeft removes a participant by connection id. Unknown ids
// are ignored.
func (t *Tracker) HandleParticipantLeft(left protocol.ParticipantLeft) {
	t.mu.Lock()
	i := t.indexOf(left.ConnectionID)
	if i < 0 {
		t.mu.Unlock()
		return
	}
	t.participants = append(t.participants[:i:i], t.participants[i+1:]...)
	t.mu.Unlock()

	if left.ConnectionID != t.self() {
		t.notifier.Notify(notify.Notification{
			Level:   notify.Info,
			Message: fmt.Sprintf("%s left the room", left.DisplayName),
		})
	}
}

// Participants returns a copy of the roster in display order.
func (t *Tracker) Participants() []protocol.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]protocol.Participant(nil), t.participants...)
}

func (t *Tracker) indexOf(connectionID string) int {
	for i, p := range t.participants {
		if p.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}
