// Package transport is the client side of a room visit: one Session per
// client, holding a websocket to the registry and reconnecting on its own
// within a fixed budget (DefaultAttempts attempts, DefaultTimeout per
// cycle). When the budget is spent the session reports Failed and closes.
//
// Components never hold the Session directly. They attach to a Channel,
// which pairs the session's Emit with a Router whose Subscribe returns a
// cancel func:
//
//	sess, err := transport.Dial(ctx, transport.Options{URL: "ws://localhost:8080/ws"})
//	router := transport.NewRouter()
//	ch := transport.Link{Emitter: sess, Router: router}
//	cancel := ch.Subscribe(protocol.EventChatMessage, onChat)
//	defer cancel()
//	for env := range sess.Inbound() {
//		router.Dispatch(env)
//	}
package transport
