package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/codecast/collab/service"
	"github.com/wricardo/codecast/collab/templates"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"codecast",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`codecast - MCP Interface

This is a thin client that proxies all requests to a codecast registry's REST API.

Rooms are shared editing spaces: everyone in a room edits one text buffer and
shares one chat feed. A room exists only while someone is in it.

AVAILABLE TOOLS:
- new_room: Mint a new room token, optionally for a language
- list_rooms: List live rooms and their participant counts
- get_room: Show the participants and current document of a room
- list_templates: List the starter documents per language

To invite people, share the room token; they join with "codecast join --room <token>".`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "new_room",
		Description: "Mint a new room token and its starter document",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"language": map[string]interface{}{
					"type":        "string",
					"enum":        templates.Languages,
					"description": "Language of the starter document (optional)",
				},
			},
		},
	}, c.handleNewRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all live rooms",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of rooms to return, newest first (optional)",
				},
			},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get the participants and current document of a room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room token",
				},
			},
			Required: []string{"room_id"},
		},
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_templates",
		Description: "List the starter documents available per language",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListTemplates)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// Tool handlers

func (c *Client) handleNewRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	language, _ := arguments(request)["language"].(string)

	body := map[string]string{}
	if language != "" {
		body["language"] = language
	}

	var room service.NewRoomInfo
	if err := c.apiCall(ctx, "POST", "/api/rooms", body, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatNewRoom(&room)), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/rooms"
	if limit, ok := arguments(request)["limit"].(float64); ok && limit > 0 {
		path += fmt.Sprintf("?limit=%d", int(limit))
	}

	var response struct {
		Count int                   `json:"count"`
		Total int                   `json:"total"`
		Rooms []service.RoomSummary `json:"rooms"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomList(response.Rooms, response.Total)), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, _ := arguments(request)["room_id"].(string)
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	var room service.RoomDetails
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomDetails(&room)), nil
}

func (c *Client) handleListTemplates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var tmpls []templates.Template
	if err := c.apiCall(ctx, "GET", "/api/templates", nil, &tmpls); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Templates (%d):\n\n", len(tmpls))
	for _, t := range tmpls {
		fmt.Fprintf(&b, "- %s (%s): %s\n", t.Name, t.Language, firstLine(t.Content))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// Formatting

func formatNewRoom(room *service.NewRoomInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Created room: %s\n", room.ID)
	if room.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", room.Language)
	}
	fmt.Fprintf(&b, "Starter document:\n%s\n", room.StarterDocument)
	b.WriteString("\nThe room appears in list_rooms once its first participant joins.\n")
	return b.String()
}

func formatRoomList(rooms []service.RoomSummary, total int) string {
	if len(rooms) == 0 {
		return "No live rooms.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Live Rooms (%d of %d):\n\n", len(rooms), total)
	for _, r := range rooms {
		doc := "empty"
		if r.HasDocument {
			doc = "edited"
		}
		fmt.Fprintf(&b, "- %s (%d participants, %s, since %s)\n",
			r.ID, r.ParticipantCount, doc, r.CreatedAt.Format("15:04:05"))
	}
	return b.String()
}

func formatRoomDetails(room *service.RoomDetails) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room: %s\n", room.ID)
	fmt.Fprintf(&b, "Participants (%d):\n", len(room.Participants))
	for _, p := range room.Participants {
		fmt.Fprintf(&b, "  - %s [%s]\n", p.DisplayName, p.ConnectionID)
	}
	if !room.HasDocument {
		b.WriteString("Document: (nobody has edited yet)\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Document (%d bytes):\n%s\n", len(room.Document), room.Document)
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
