// Package lifecycle enters and leaves rooms.
//
// Enter validates input, seeds the editor from the local edit cache (or the
// default document), opens one transport.Session and attaches the roster
// tracker, edit synchronizer and chat relay to it before announcing the
// join. The returned Handle owns all of it:
//
//	h, err := lifecycle.Enter(ctx, room, "alice", lifecycle.Options{URL: url, Cache: store})
//	if errors.Is(err, lifecycle.ErrRedirect) {
//		// ask for a name or room again
//	}
//	defer h.Leave()
//
//	h.Edit("x = 1")
//	h.SendChat("hello")
//
//	<-h.Done()
//	if errors.Is(h.Err(), lifecycle.ErrConnectionLost) {
//		// reconnection budget spent, back to the entry screen
//	}
//
// Transient disconnects produce a warning notification and, once the
// session reconnects, a fresh join so the registry re-sends the roster and
// document.
package lifecycle
