package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wricardo/codecast/collab/templates"
	"github.com/wricardo/codecast/transport/websocket"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrUnknownLanguage = errors.New("unknown language")
)

// roomServiceImpl implements the RoomService interface
type roomServiceImpl struct {
	rooms     RoomDirectory
	templates TemplateSource
	newID     func() string
	now       func() time.Time
}

// NewRoomService creates a new room service instance
func NewRoomService(rooms RoomDirectory, tmpl TemplateSource) RoomService {
	return &roomServiceImpl{
		rooms:     rooms,
		templates: tmpl,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// NewRoom mints a room token and picks its starter document
func (s *roomServiceImpl) NewRoom(ctx context.Context, language string) (*NewRoomInfo, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language != "" && !templates.IsKnownLanguage(language) {
		return nil, fmt.Errorf("%w %q, available: %s", ErrUnknownLanguage, language, strings.Join(templates.Languages, ", "))
	}

	starter := templates.DefaultContent
	if s.templates != nil {
		starter = s.templates.Content(language)
	}

	return &NewRoomInfo{
		ID:              s.newID(),
		Language:        language,
		StarterDocument: starter,
		CreatedAt:       s.now().UTC(),
	}, nil
}

// ListRooms returns every live room
func (s *roomServiceImpl) ListRooms(ctx context.Context) ([]*RoomSummary, error) {
	infos, err := s.rooms.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	out := make([]*RoomSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, &RoomSummary{
			ID:               info.ID,
			ParticipantCount: len(info.Participants),
			HasDocument:      info.HasDocument,
			CreatedAt:        info.CreatedAt,
		})
	}
	return out, nil
}

// GetRoom returns the roster and document of one room
func (s *roomServiceImpl) GetRoom(ctx context.Context, roomID string) (*RoomDetails, error) {
	info, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		if errors.Is(err, websocket.ErrRoomNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return &RoomDetails{
		ID:           info.ID,
		Participants: info.Participants,
		Document:     info.Document,
		HasDocument:  info.HasDocument,
		CreatedAt:    info.CreatedAt,
	}, nil
}

// ListTemplates returns the available starter documents
func (s *roomServiceImpl) ListTemplates(ctx context.Context) ([]*templates.Template, error) {
	if s.templates == nil {
		return []*templates.Template{templates.Builtin}, nil
	}
	return s.templates.List()
}

// SaveTemplate writes a starter document to the template directory
func (s *roomServiceImpl) SaveTemplate(ctx context.Context, t *templates.Template) error {
	if s.templates == nil {
		return templates.ErrNoTemplateDir
	}
	if err := s.templates.Save(t); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// ReloadTemplates drops cached templates so the next read hits the files
func (s *roomServiceImpl) ReloadTemplates(ctx context.Context) error {
	if s.templates == nil {
		return templates.ErrNoTemplateDir
	}
	s.templates.Refresh()
	return nil
}
