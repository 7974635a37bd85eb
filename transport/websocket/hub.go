package websocket

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/codecast/logging"
	"github.com/wricardo/codecast/protocol"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = protocol.MaxFrameSize

	sendBufferSize = 256
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrHubStopped   = errors.New("hub stopped")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	displayName string
	room        string
}

// ID returns the connection id assigned by the hub.
func (c *Client) ID() string {
	return c.id
}

type inboundMessage struct {
	client *Client
	env    *protocol.Envelope
	err    error
}

type room struct {
	id          string
	members     map[*Client]bool
	document    string
	hasDocument bool
	createdAt   time.Time
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID           string                 `json:"id"`
	Participants []protocol.Participant `json:"participants"`
	Document     string                 `json:"document"`
	HasDocument  bool                   `json:"has_document"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Hub is the room registry. All room state is owned by the Run goroutine;
// every join, leave, edit and chat message is applied there one at a time.
type Hub struct {
	// Rooms by id
	rooms map[string]*room

	// All registered clients
	clients map[*Client]bool

	// Inbound messages from clients
	inbound chan *inboundMessage

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Snapshot requests, run on the hub goroutine
	queries chan func()

	done chan struct{}
	log  *zap.SugaredLogger
	now  func() time.Time
}

// NewHub creates a new room registry hub
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:      make(map[string]*room),
		clients:    make(map[*Client]bool),
		inbound:    make(chan *inboundMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		log:        logging.OrNop(logger),
		now:        time.Now,
	}
}

// Run starts the hub's event loop and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.inbound:
			h.handleMessage(msg)

		case query := <-h.queries:
			query()
		}
	}
}

// ServeWS upgrades the request and registers the connection with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   uuid.NewString(),
	}

	hello, err := protocol.Encode(protocol.EventConnected, protocol.Connected{ConnectionID: client.id})
	if err != nil {
		h.log.Errorf("Failed to encode handshake: %v", err)
		conn.Close()
		return
	}
	client.send <- hello

	// Registration completes before the read pump starts so that no
	// inbound event can overtake it.
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Rooms returns a snapshot of every active room, ordered by id.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	var infos []RoomInfo
	err := h.do(ctx, func() {
		infos = make([]RoomInfo, 0, len(h.rooms))
		for _, r := range h.rooms {
			infos = append(infos, r.info())
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Room returns a snapshot of a single room.
func (h *Hub) Room(ctx context.Context, id string) (*RoomInfo, error) {
	var info *RoomInfo
	err := h.do(ctx, func() {
		if r, ok := h.rooms[id]; ok {
			ri := r.info()
			info = &ri
		}
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrRoomNotFound
	}
	return info, nil
}

// do runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	query := func() {
		fn()
		close(finished)
	}

	select {
	case h.queries <- query:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// registerClient adds a connection to the hub
func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true
	h.log.Debugf("Client %s connected (total clients: %d)", client.id, len(h.clients))
}

// unregisterClient removes a connection and announces its departure
func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	h.leaveRoom(client)
	delete(h.clients, client)
	close(client.send)

	h.log.Debugf("Client %s disconnected (remaining clients: %d)", client.id, len(h.clients))
}

func (h *Hub) shutdown() {
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.rooms = make(map[string]*room)
	h.log.Infof("Hub stopped")
}

func (h *Hub) handleMessage(msg *inboundMessage) {
	client := msg.client
	if _, ok := h.clients[client]; !ok {
		return
	}

	if msg.err != nil {
		h.log.Debugf("Malformed frame from %s: %v", client.id, msg.err)
		h.sendError(client, protocol.ErrCodeInvalidMsg, "malformed message")
		return
	}

	env := msg.env
	switch env.Type {
	case protocol.EventJoin:
		var join protocol.Join
		if err := env.Decode(&join); err != nil {
			h.sendError(client, protocol.ErrCodeInvalidMsg, err.Error())
			return
		}
		h.joinRoom(client, join)

	case protocol.EventLeave:
		var leave protocol.Leave
		// An empty leave still means "leave my room".
		_ = env.Decode(&leave)
		if client.room == "" {
			return
		}
		if leave.Room != "" && leave.Room != client.room {
			h.log.Debugf("Ignoring stale leave from %s for room %s", client.id, leave.Room)
			return
		}
		if leave.ConnectionID != "" && leave.ConnectionID != client.id {
			h.log.Debugf("Ignoring leave from %s naming connection %s", client.id, leave.ConnectionID)
			return
		}
		h.leaveRoom(client)

	case protocol.EventCodeChange:
		var change protocol.CodeChange
		if err := env.Decode(&change); err != nil {
			h.sendError(client, protocol.ErrCodeInvalidMsg, err.Error())
			return
		}
		r := h.memberRoom(client, change.Room)
		if r == nil {
			return
		}
		r.document = change.Content
		r.hasDocument = true
		h.fanOut(r, protocol.EventCodeChange, protocol.CodeChange{Room: r.id, Content: change.Content}, client)

	case protocol.EventChatMessage:
		var chat protocol.ChatSend
		if err := env.Decode(&chat); err != nil {
			h.sendError(client, protocol.ErrCodeInvalidMsg, err.Error())
			return
		}
		r := h.memberRoom(client, chat.Room)
		if r == nil {
			return
		}
		h.fanOut(r, protocol.EventChatMessage, protocol.ChatMessage{
			Author: client.displayName,
			Body:   chat.Body,
			SentAt: h.now().UTC(),
		}, nil)

	default:
		h.sendError(client, protocol.ErrCodeInvalidMsg, "unknown event "+string(env.Type))
	}
}

// joinRoom places the client in a room, creating it on first join.
func (h *Hub) joinRoom(client *Client, join protocol.Join) {
	roomID := strings.TrimSpace(join.Room)
	name := strings.TrimSpace(join.DisplayName)
	if roomID == "" || name == "" {
		h.sendError(client, protocol.ErrCodeBadJoin, "room and display name are required")
		return
	}

	if client.room != "" {
		h.leaveRoom(client)
	}

	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{
			id:        roomID,
			members:   make(map[*Client]bool),
			createdAt: h.now().UTC(),
		}
		h.rooms[roomID] = r
	}

	client.displayName = name
	client.room = roomID
	r.members[client] = true

	h.send(client, protocol.EventRosterSync, protocol.RosterSync{
		Room:         roomID,
		Participants: r.participants(),
	})
	if _, ok := h.clients[client]; !ok {
		return
	}
	if r.hasDocument {
		h.send(client, protocol.EventCodeSync, protocol.CodeSync{Content: r.document})
	}
	h.fanOut(r, protocol.EventParticipantJoined, protocol.ParticipantJoined{
		ConnectionID: client.id,
		DisplayName:  name,
	}, client)

	h.log.Infof("%s joined room %s (members: %d)", name, roomID, len(r.members))
}

// leaveRoom removes the client from its room, announcing the departure at
// most once. Empty rooms are deleted.
func (h *Hub) leaveRoom(client *Client) {
	if client.room == "" {
		return
	}

	r, ok := h.rooms[client.room]
	client.room = ""
	if !ok {
		return
	}
	if _, member := r.members[client]; !member {
		return
	}
	delete(r.members, client)

	if len(r.members) == 0 {
		delete(h.rooms, r.id)
		h.log.Infof("%s left room %s, room closed", client.displayName, r.id)
		return
	}

	h.fanOut(r, protocol.EventParticipantLeft, protocol.ParticipantLeft{
		ConnectionID: client.id,
		DisplayName:  client.displayName,
	}, nil)
	h.log.Infof("%s left room %s (members: %d)", client.displayName, r.id, len(r.members))
}

// memberRoom returns the client's room when it matches the requested one.
func (h *Hub) memberRoom(client *Client, requested string) *room {
	if client.room == "" || (requested != "" && requested != client.room) {
		h.sendError(client, protocol.ErrCodeNotInRoom, "not a member of room "+requested)
		return nil
	}
	return h.rooms[client.room]
}

// fanOut encodes once and delivers to every member except the given one.
// Members whose buffers are full are dropped.
func (h *Hub) fanOut(r *room, eventType protocol.EventType, payload interface{}, except *Client) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		h.log.Errorf("Failed to encode %s: %v", eventType, err)
		return
	}

	var slow []*Client
	for member := range r.members {
		if member == except {
			continue
		}
		if !deliver(member, data) {
			slow = append(slow, member)
		}
	}

	for _, member := range slow {
		h.log.Warnf("Dropping slow client %s from room %s", member.id, r.id)
		h.unregisterClient(member)
	}
}

func (h *Hub) send(client *Client, eventType protocol.EventType, payload interface{}) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		h.log.Errorf("Failed to encode %s: %v", eventType, err)
		return
	}
	if !deliver(client, data) {
		h.log.Warnf("Dropping slow client %s", client.id)
		h.unregisterClient(client)
	}
}

func (h *Hub) sendError(client *Client, code, message string) {
	h.send(client, protocol.EventError, protocol.ErrorMessage{Code: code, Message: message})
}

func deliver(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

func (r *room) participants() []protocol.Participant {
	out := make([]protocol.Participant, 0, len(r.members))
	for member := range r.members {
		out = append(out, protocol.Participant{
			ConnectionID: member.id,
			DisplayName:  member.displayName,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

func (r *room) info() RoomInfo {
	return RoomInfo{
		ID:           r.id,
		Participants: r.participants(),
		Document:     r.document,
		HasDocument:  r.hasDocument,
		CreatedAt:    r.createdAt,
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugf("WebSocket error for %s: %v", c.id, err)
			}
			return
		}

		env, err := protocol.ParseEnvelope(data)
		select {
		case c.hub.inbound <- &inboundMessage{client: c, env: env, err: err}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
