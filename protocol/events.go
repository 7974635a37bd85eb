package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType identifies the kind of room event carried by an Envelope.
type EventType string

const (
	// Client -> Registry
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"

	// Registry -> Client
	EventConnected         EventType = "connected"
	EventRosterSync        EventType = "roster-sync"
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventCodeSync          EventType = "code-sync"
	EventError             EventType = "error"

	// Both directions
	EventCodeChange  EventType = "code-change"
	EventChatMessage EventType = "chat-message"
)

// MaxFrameSize is the largest frame the registry reads from a client. Whole
// documents travel in every code-change, so it also bounds document size.
const MaxFrameSize = 1 << 20

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrFrameTooLarge     = errors.New("frame too large")
)

// Envelope wraps every websocket frame with its event type.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Participant is one connected member of a room. ConnectionID is the only
// stable identity; display names are not unique.
type Participant struct {
	ConnectionID string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
}

// Connected is the first frame the registry sends on every connection.
type Connected struct {
	ConnectionID string `json:"connection_id"`
}

// Join asks the registry to enter a room.
type Join struct {
	Room        string `json:"room"`
	DisplayName string `json:"display_name"`
}

// Leave announces an explicit departure.
type Leave struct {
	Room         string `json:"room"`
	ConnectionID string `json:"connection_id"`
}

// RosterSync is the authoritative roster sent to a joining client.
type RosterSync struct {
	Room         string        `json:"room"`
	Participants []Participant `json:"participants"`
}

// ParticipantJoined notifies existing members of a new member.
type ParticipantJoined struct {
	ConnectionID string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
}

// ParticipantLeft notifies remaining members of a departure.
type ParticipantLeft struct {
	ConnectionID string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
}

// CodeChange carries the full buffer content after a change.
type CodeChange struct {
	Room    string `json:"room,omitempty"`
	Content string `json:"content"`
}

// CodeSync is the one-time catch-up sent to a joining client.
type CodeSync struct {
	Content string `json:"content"`
}

// ChatSend is what a client emits to post a chat message.
type ChatSend struct {
	Room string `json:"room"`
	Body string `json:"body"`
}

// ChatMessage is a chat message as fanned out by the registry.
type ChatMessage struct {
	Author string    `json:"author"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// ErrorMessage is sent by the registry when it rejects a request.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMsg = "invalid_message"
	ErrCodeBadJoin    = "bad_join"
	ErrCodeNotInRoom  = "not_in_room"
)

// NewEnvelope creates an envelope with the given type and payload.
func NewEnvelope(eventType EventType, data interface{}) (*Envelope, error) {
	env := &Envelope{Type: eventType}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	env.Data = raw
	return env, nil
}

// Encode builds an envelope and marshals it into a single frame.
func Encode(eventType EventType, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(eventType, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// CheckFrameSize fails with ErrFrameTooLarge when frame would be refused by
// the registry.
func CheckFrameSize(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrFrameTooLarge, len(frame), MaxFrameSize)
	}
	return nil
}

// ParseEnvelope parses a raw frame into an envelope.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return &env, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedEnvelope, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, e.Type, err)
	}
	return nil
}
