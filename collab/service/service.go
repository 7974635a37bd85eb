package service

import (
	"context"

	"github.com/wricardo/codecast/collab/templates"
	"github.com/wricardo/codecast/transport/websocket"
)

// RoomService defines the room operations exposed over REST and MCP
type RoomService interface {
	// Room management
	NewRoom(ctx context.Context, language string) (*NewRoomInfo, error)
	ListRooms(ctx context.Context) ([]*RoomSummary, error)
	GetRoom(ctx context.Context, roomID string) (*RoomDetails, error)

	// Templates
	ListTemplates(ctx context.Context) ([]*templates.Template, error)
	SaveTemplate(ctx context.Context, t *templates.Template) error
	ReloadTemplates(ctx context.Context) error
}

// RoomDirectory answers questions about live rooms. *websocket.Hub
// implements it.
type RoomDirectory interface {
	Rooms(ctx context.Context) ([]websocket.RoomInfo, error)
	Room(ctx context.Context, id string) (*websocket.RoomInfo, error)
}

// TemplateSource provides starter documents. *templates.Manager implements
// it.
type TemplateSource interface {
	List() ([]*templates.Template, error)
	Content(language string) string
	Save(t *templates.Template) error
	Refresh()
}
