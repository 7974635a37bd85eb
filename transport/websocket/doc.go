// Package websocket implements the codecast room registry over WebSocket.
//
// The registry maps room ids to the set of connected participants and fans
// out room events between them:
//   - every connection gets a fresh connection id, announced in a
//     "connected" frame before anything else
//   - join creates the room on first use, replies with the authoritative
//     roster (roster-sync) and the current document (code-sync), and tells
//     the other members (participant-joined)
//   - code-change replaces the stored room document and is relayed to every
//     other member; the registry never merges
//   - chat-message is stamped with the author and server time and relayed
//     to every member, the sender included
//   - leave and disconnect remove the member once and announce
//     participant-left; empty rooms are deleted
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub owns all room
// state. Each connection has a read pump and a write pump goroutine; the
// read pump forwards parsed envelopes to the hub, and the hub applies them
// one at a time on its own goroutine. That goroutine is the only point of
// serialization between participants: events from one connection keep their
// order, events from different connections interleave in arrival order.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//
// Slow consumers:
//
// Each connection has a bounded send queue. A member whose queue is full is
// dropped and its departure announced, so one stalled client never blocks a
// room.
package websocket
