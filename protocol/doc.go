// Package protocol defines the room event vocabulary exchanged between
// codecast clients and the room registry.
//
// Every websocket text frame carries exactly one JSON Envelope:
//
//	{"type": "code-change", "data": {"room": "r1", "content": "x=2"}}
//
// Events:
//   - connected: first frame on every connection, carries the connection id
//   - join / leave: client announces entering or leaving a room
//   - roster-sync: full roster snapshot sent to the joining client
//   - participant-joined / participant-left: membership deltas for others
//   - code-change: full-buffer replacement, both directions
//   - code-sync: one-time catch-up of the room document for a joiner
//   - chat-message: chat append; clients send {room, body}, the registry
//     fans out {author, body, sent_at}
//   - error: a rejected request
package protocol
