package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/codecast/protocol"
	registry "github.com/wricardo/codecast/transport/websocket"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func startRegistry(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := registry.NewHub(nil)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return server
}

func expectEvent(t *testing.T, s *Session, want protocol.EventType) *protocol.Envelope {
	t.Helper()
	select {
	case env := <-s.Inbound():
		if env.Type != want {
			t.Fatalf("Expected %s, got %s", want, env.Type)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", want)
	}
	return nil
}

func expectStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	select {
	case got := <-s.Status():
		if got != want {
			t.Fatalf("Expected status %s, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for status %s", want)
	}
}

func TestDialAndExchange(t *testing.T) {
	server := startRegistry(t)

	alice, err := Dial(context.Background(), Options{URL: wsURL(server)})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer alice.Close()
	bob, err := Dial(context.Background(), Options{URL: wsURL(server)})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer bob.Close()

	if alice.ID() == "" || alice.ID() == bob.ID() {
		t.Fatalf("Expected distinct connection ids, got %q and %q", alice.ID(), bob.ID())
	}

	if err := alice.Emit(protocol.EventJoin, protocol.Join{Room: "r1", DisplayName: "alice"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	expectEvent(t, alice, protocol.EventRosterSync)

	bob.Emit(protocol.EventJoin, protocol.Join{Room: "r1", DisplayName: "bob"})
	expectEvent(t, bob, protocol.EventRosterSync)
	env := expectEvent(t, alice, protocol.EventParticipantJoined)

	var joined protocol.ParticipantJoined
	env.Decode(&joined)
	if joined.ConnectionID != bob.ID() {
		t.Errorf("Expected participant-joined for %s, got %+v", bob.ID(), joined)
	}

	bob.Emit(protocol.EventChatMessage, protocol.ChatSend{Room: "r1", Body: "hello"})
	env = expectEvent(t, alice, protocol.EventChatMessage)
	var msg protocol.ChatMessage
	env.Decode(&msg)
	if msg.Author != "bob" || msg.Body != "hello" {
		t.Errorf("Unexpected chat message: %+v", msg)
	}
}

func TestDialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	start := time.Now()
	_, err := Dial(context.Background(), Options{URL: wsURL(server), Attempts: 2, Timeout: 3 * time.Second})
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("Expected ErrConnectFailed, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Dial took longer than its timeout: %s", time.Since(start))
	}
}

func TestDialBadHandshake(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"roster-sync","data":{}}`))
	}))
	defer server.Close()

	_, err := Dial(context.Background(), Options{URL: wsURL(server)})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("Expected ErrHandshake, got %v", err)
	}
}

// flakyServer hands out connection ids conn-1, conn-2, ... and drops the
// first connection right after the handshake. When refuseAfterFirst is set
// every later attempt is rejected.
type flakyServer struct {
	mu               sync.Mutex
	count            int
	refuseAfterFirst bool
}

func (f *flakyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.count++
	n := f.count
	f.mu.Unlock()

	if n > 1 && f.refuseAfterFirst {
		http.Error(w, "gone", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	hello, _ := protocol.Encode(protocol.EventConnected, protocol.Connected{ConnectionID: "conn-" + string(rune('0'+n))})
	conn.WriteMessage(websocket.TextMessage, hello)
	if n == 1 {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestReconnect(t *testing.T) {
	server := httptest.NewServer(&flakyServer{})
	defer server.Close()

	s, err := Dial(context.Background(), Options{URL: wsURL(server), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer s.Close()

	expectStatus(t, s, Disconnected)
	expectStatus(t, s, Reconnected)

	if s.ID() != "conn-2" {
		t.Errorf("Expected id conn-2 after reconnect, got %s", s.ID())
	}
	if s.Err() != nil {
		t.Errorf("Expected nil Err while open, got %v", s.Err())
	}
}

func TestReconnectExhausted(t *testing.T) {
	server := httptest.NewServer(&flakyServer{refuseAfterFirst: true})
	defer server.Close()

	s, err := Dial(context.Background(), Options{URL: wsURL(server), Attempts: 2, Timeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	expectStatus(t, s, Disconnected)
	expectStatus(t, s, Failed)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Session should be done after failing")
	}

	if !errors.Is(s.Err(), ErrConnectionLost) {
		t.Errorf("Expected ErrConnectionLost, got %v", s.Err())
	}
	if err := s.Emit(protocol.EventLeave, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Emit after failure, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after failure should be a no-op, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	server := startRegistry(t)

	s, err := Dial(context.Background(), Options{URL: wsURL(server)})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("First Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if !errors.Is(s.Err(), ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", s.Err())
	}

	select {
	case st := <-s.Status():
		t.Errorf("Close must not report a status change, got %s", st)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEmitRejectsOversizedFrame(t *testing.T) {
	server := startRegistry(t)

	s, err := Dial(context.Background(), Options{URL: wsURL(server)})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer s.Close()

	big := protocol.CodeChange{Room: "r1", Content: strings.Repeat("a", protocol.MaxFrameSize)}
	if err := s.Emit(protocol.EventCodeChange, big); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("Expected ErrFrameTooLarge, got %v", err)
	}

	// The connection is untouched: no reconnect cycle starts.
	select {
	case st := <-s.Status():
		t.Errorf("Expected no status change, got %s", st)
	case <-time.After(200 * time.Millisecond):
	}
	if err := s.Emit(protocol.EventJoin, protocol.Join{Room: "r1", DisplayName: "alice"}); err != nil {
		t.Fatalf("Emit after refusal failed: %v", err)
	}
	expectEvent(t, s, protocol.EventRosterSync)
}
