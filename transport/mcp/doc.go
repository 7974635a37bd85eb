// Package mcp provides a Model Context Protocol server for codecast.
//
// The server is a thin proxy: every tool calls the registry's REST API, so
// the same tools work against a local or a remote registry.
//
// MCP Tools:
//   - new_room: mint a room token and starter document
//   - list_rooms: list live rooms with participant counts
//   - get_room: roster and current document of a room
//   - list_templates: starter documents per language
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: POST /mcp, handled with GetMCPServer().HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
