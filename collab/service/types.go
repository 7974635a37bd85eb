package service

import (
	"time"

	"github.com/wricardo/codecast/protocol"
)

// NewRoomInfo is a freshly minted room token. The room itself comes into
// existence when the first participant joins it.
type NewRoomInfo struct {
	ID              string    `json:"id"`
	Language        string    `json:"language,omitempty"`
	StarterDocument string    `json:"starter_document"`
	CreatedAt       time.Time `json:"created_at"`
}

// RoomSummary describes one live room
type RoomSummary struct {
	ID               string    `json:"id"`
	ParticipantCount int       `json:"participant_count"`
	HasDocument      bool      `json:"has_document"`
	CreatedAt        time.Time `json:"created_at"`
}

// RoomDetails is a full view of one live room
type RoomDetails struct {
	ID           string                 `json:"id"`
	Participants []protocol.Participant `json:"participants"`
	Document     string                 `json:"document"`
	HasDocument  bool                   `json:"has_document"`
	CreatedAt    time.Time              `json:"created_at"`
}
