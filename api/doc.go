// Package api provides the HTTP surface of the codecast room registry.
//
// The api package implements:
//   - Room token minting and live room inspection
//   - Starter document listing and editing
//   - WebSocket upgrade into the registry
//   - Health check
//
// Endpoints:
//
// Rooms:
//   - POST /api/rooms - Mint a new room token, body {"language": "python"} is optional
//   - GET /api/rooms - List live rooms, newest first, optional ?limit=N
//   - GET /api/rooms/{id} - Roster and current document of one room
//
// Templates:
//   - GET /api/templates - List starter documents
//   - PUT /api/templates/{language} - Write a starter document to the template directory
//   - POST /api/templates/reload - Re-read template files after editing them on disk
//
// Other:
//   - GET /ws - WebSocket upgrade; the room is chosen by the join event
//   - GET /health - Liveness probe
//
// A room exists only while someone is in it, so a freshly minted token is
// not listed until its first participant joins.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	svc := service.NewRoomService(hub, templateManager)
//	http.Handle("/", api.NewServer(svc, hub, logger))
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{
//	  "error": "room not found: 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"
//	}
package api
