// Package service is the room operations layer shared by the REST API and
// the MCP tools.
//
// RoomService wraps the registry's read-only room snapshots and the
// template manager:
//   - NewRoom mints a UUID room token and the starter document for a language
//   - ListRooms / GetRoom report live rooms, their rosters and documents
//   - ListTemplates lists the starter documents
//
// Rooms are never created or deleted here. The registry creates a room on
// its first join and deletes it when the last participant leaves.
package service
