package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/wricardo/codecast/collab/service"
	"github.com/wricardo/codecast/collab/templates"
	"github.com/wricardo/codecast/logging"
	"go.uber.org/zap"
)

// RoomConnector upgrades a request into a registry connection.
// *websocket.Hub implements it.
type RoomConnector interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Server represents the REST API server
type Server struct {
	service service.RoomService
	hub     RoomConnector
	router  *mux.Router
	log     *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(roomService service.RoomService, hub RoomConnector, logger *zap.SugaredLogger) *Server {
	s := &Server{
		service: roomService,
		hub:     hub,
		router:  mux.NewRouter(),
		log:     logging.OrNop(logger),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Rooms
	api.HandleFunc("/rooms", s.handleNewRoom).Methods("POST")
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")

	// Starter documents
	api.HandleFunc("/templates", s.handleListTemplates).Methods("GET")
	api.HandleFunc("/templates/reload", s.handleReloadTemplates).Methods("POST")
	api.HandleFunc("/templates/{language}", s.handleSaveTemplate).Methods("PUT")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Room Handlers

func (s *Server) handleNewRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language,omitempty"`
	}

	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	room, err := s.service.NewRoom(r.Context(), req.Language)
	if err != nil {
		if errors.Is(err, service.ErrUnknownLanguage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Infof("Minted room %s (language=%q)", room.ID, room.Language)
	respondJSON(w, http.StatusCreated, room)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.service.ListRooms(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Newest first
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})

	total := len(rooms)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(rooms) {
			rooms = rooms[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"total": total,
		"rooms": rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	room, err := s.service.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, room)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tmpls, err := s.service.ListTemplates(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, tmpls)
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	language := mux.Vars(r)["language"]

	var tmpl templates.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if tmpl.Language == "" {
		tmpl.Language = language
	}
	if !strings.EqualFold(tmpl.Language, language) {
		respondError(w, http.StatusBadRequest, "language in body does not match the URL")
		return
	}

	if err := s.service.SaveTemplate(r.Context(), &tmpl); err != nil {
		switch {
		case errors.Is(err, templates.ErrInvalidTemplate):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, templates.ErrNoTemplateDir):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.log.Infof("Saved %s template %q", tmpl.Language, tmpl.Name)
	respondJSON(w, http.StatusOK, &tmpl)
}

func (s *Server) handleReloadTemplates(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ReloadTemplates(r.Context()); err != nil {
		if errors.Is(err, templates.ErrNoTemplateDir) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("Template cache cleared")
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	// Rooms are named by the join event, not the URL.
	s.hub.ServeWS(w, r)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
