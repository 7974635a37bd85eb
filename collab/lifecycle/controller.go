package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/codecast/collab/cache"
	"github.com/wricardo/codecast/collab/chat"
	"github.com/wricardo/codecast/collab/editor"
	"github.com/wricardo/codecast/collab/notify"
	"github.com/wricardo/codecast/collab/roster"
	"github.com/wricardo/codecast/collab/templates"
	"github.com/wricardo/codecast/collab/transport"
	"github.com/wricardo/codecast/logging"
	"github.com/wricardo/codecast/protocol"
	"go.uber.org/zap"
)

var (
	// ErrRedirect marks input problems that send the user back to the
	// entry screen. Nothing has been opened when it is returned.
	ErrRedirect           = errors.New("cannot enter room")
	ErrMissingDisplayName = fmt.Errorf("%w: display name is required", ErrRedirect)
	ErrMissingRoom        = fmt.Errorf("%w: room is required", ErrRedirect)

	ErrSetupFailed    = errors.New("could not connect to room")
	ErrConnectionLost = errors.New("connection to room lost")
	ErrSessionClosed  = errors.New("room session is closed")
)

// Conn is the connection a Handle drives. *transport.Session implements it.
type Conn interface {
	transport.Emitter
	ID() string
	Inbound() <-chan *protocol.Envelope
	Status() <-chan transport.Status
	Done() <-chan struct{}
	Err() error
	Close() error
}

// DialFunc opens a Conn.
type DialFunc func(ctx context.Context, opts transport.Options) (Conn, error)

// Options configures Enter.
type Options struct {
	// URL of the registry websocket endpoint.
	URL string

	// Reconnection budget, see transport.Options.
	Attempts int
	Timeout  time.Duration

	// DefaultDocument seeds the buffer when nothing is cached for the
	// room. Defaults to templates.DefaultContent.
	DefaultDocument string

	// Cache is the local edit cache. Nil disables caching.
	Cache cache.Store

	// Buffer is the editing surface. Defaults to an editor.TextBuffer.
	Buffer editor.Buffer

	Notifier notify.Notifier
	Logger   *zap.SugaredLogger

	// Dial opens the connection. Defaults to transport.Dial.
	Dial DialFunc
}

type state int

const (
	active state = iota
	leaving
	failed
)

// Handle is one participant's presence in one room. All component state is
// mutated on a single event loop goroutine; Handle methods post work to it
// and wait.
//
// Callbacks registered with OnMessage run on that loop and must not call
// Handle methods synchronously.
type Handle struct {
	room string
	name string

	conn     Conn
	router   *transport.Router
	buf      editor.Buffer
	roster   *roster.Tracker
	doc      *editor.Synchronizer
	chat     *chat.Relay
	notifier notify.Notifier
	log      *zap.SugaredLogger

	actions chan func()
	stop    chan struct{}
	done    chan struct{}

	mu    sync.Mutex
	state state
	err   error

	leaveOnce sync.Once
	leaveErr  error
}

// Enter joins room as displayName. Missing input fails with an ErrRedirect
// error before anything is opened. A connection that cannot be established
// within the retry budget fails with ErrSetupFailed; the controller does not
// retry it.
func Enter(ctx context.Context, room, displayName string, opts Options) (*Handle, error) {
	room = strings.TrimSpace(room)
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrMissingDisplayName
	}
	if room == "" {
		return nil, ErrMissingRoom
	}

	log := logging.OrNop(opts.Logger)
	notifier := notify.OrDiscard(opts.Notifier)

	buf := opts.Buffer
	if buf == nil {
		buf = editor.NewTextBuffer("")
	}
	defaultDoc := opts.DefaultDocument
	if defaultDoc == "" {
		defaultDoc = templates.DefaultContent
	}

	synchronizer := editor.NewSynchronizer(room, buf, opts.Cache, log)
	if synchronizer.Init(defaultDoc) {
		log.Debugf("Restored cached document for room %s", room)
	}

	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context, o transport.Options) (Conn, error) {
			return transport.Dial(ctx, o)
		}
	}

	conn, err := dial(ctx, transport.Options{
		URL:      opts.URL,
		Attempts: opts.Attempts,
		Timeout:  opts.Timeout,
		Logger:   log,
	})
	if err != nil {
		notifier.Notify(notify.Notification{
			Level:   notify.Error,
			Message: "Could not connect to the room. Please try again.",
		})
		return nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	h := &Handle{
		room:     room,
		name:     displayName,
		conn:     conn,
		router:   transport.NewRouter(),
		buf:      buf,
		roster:   roster.NewTracker(conn.ID, notifier),
		doc:      synchronizer,
		chat:     chat.NewRelay(room),
		notifier: notifier,
		log:      log,
		actions:  make(chan func()),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	ch := transport.Link{Emitter: conn, Router: h.router}
	h.roster.Attach(ch)
	h.doc.Attach(ch)
	h.chat.Attach(ch)

	if err := h.emitJoin(); err != nil {
		h.detach()
		conn.Close()
		notifier.Notify(notify.Notification{
			Level:   notify.Error,
			Message: "Could not connect to the room. Please try again.",
		})
		return nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	go h.loop()

	log.Infof("Entered room %s as %s", room, displayName)
	return h, nil
}

func (h *Handle) emitJoin() error {
	return h.conn.Emit(protocol.EventJoin, protocol.Join{Room: h.room, DisplayName: h.name})
}

func (h *Handle) loop() {
	defer close(h.done)

	for {
		select {
		case env := <-h.conn.Inbound():
			h.router.Dispatch(env)

		case fn := <-h.actions:
			fn()

		case st := <-h.conn.Status():
			if h.handleStatus(st) {
				return
			}

		case <-h.conn.Done():
			if h.fatal(h.conn.Err()) {
				return
			}
			// Leave is in progress and closed the connection; wait for stop.
			<-h.stop
			return

		case <-h.stop:
			return
		}
	}
}

// handleStatus reacts to connectivity changes and reports whether the loop
// must exit.
func (h *Handle) handleStatus(st transport.Status) bool {
	switch st {
	case transport.Disconnected:
		h.notifier.Notify(notify.Notification{
			Level:   notify.Warning,
			Message: "Connection lost. Reconnecting...",
		})

	case transport.Reconnected:
		h.notifier.Notify(notify.Notification{
			Level:   notify.Info,
			Message: "Reconnected.",
		})
		// A fresh connection is a fresh registry member.
		if err := h.emitJoin(); err != nil {
			h.log.Warnf("Failed to rejoin room %s: %v", h.room, err)
		}

	case transport.Failed:
		return h.fatal(h.conn.Err())
	}
	return false
}

// fatal tears the handle down after the connection is gone for good. It
// reports false when a Leave got there first.
func (h *Handle) fatal(cause error) bool {
	h.mu.Lock()
	if h.state != active {
		h.mu.Unlock()
		return false
	}
	h.state = failed
	if cause == nil {
		cause = transport.ErrConnectionLost
	}
	h.err = fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	h.mu.Unlock()

	h.notifier.Notify(notify.Notification{
		Level:   notify.Error,
		Message: "Connection to the room was lost.",
	})
	h.detach()
	h.conn.Close()
	h.log.Warnf("Left room %s after losing the connection: %v", h.room, cause)
	return true
}

func (h *Handle) detach() {
	h.chat.Detach()
	h.doc.Detach()
	h.roster.Detach()
}

// Leave announces the departure, detaches every component and closes the
// connection. All three steps run even if one fails. Leave is idempotent
// and does nothing after the connection was lost.
func (h *Handle) Leave() error {
	h.leaveOnce.Do(func() {
		h.leaveErr = h.leave()
	})
	return h.leaveErr
}

func (h *Handle) leave() error {
	h.mu.Lock()
	if h.state != active {
		h.mu.Unlock()
		return nil
	}
	h.state = leaving
	h.mu.Unlock()

	close(h.stop)
	<-h.done

	var errs []error
	if err := h.conn.Emit(protocol.EventLeave, protocol.Leave{Room: h.room, ConnectionID: h.conn.ID()}); err != nil {
		errs = append(errs, fmt.Errorf("announce leave: %w", err))
	}
	h.detach()
	if err := h.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	h.mu.Lock()
	h.err = ErrSessionClosed
	h.mu.Unlock()

	h.log.Infof("Left room %s", h.room)
	return errors.Join(errs...)
}

// Done is closed when the handle stops, after Leave or a lost connection.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err is nil while the handle is active. After a lost connection it wraps
// ErrConnectionLost and the caller should leave the room view; after Leave
// it is ErrSessionClosed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case h.actions <- func() {
		defer close(finished)
		fn()
	}:
	case <-h.done:
		return ErrSessionClosed
	}
	<-finished
	return nil
}

// Room returns the room token.
func (h *Handle) Room() string { return h.room }

// DisplayName returns the name the participant joined with.
func (h *Handle) DisplayName() string { return h.name }

// ConnectionID returns the current connection id.
func (h *Handle) ConnectionID() string { return h.conn.ID() }

// Edit replaces the document as if the participant had typed it. Content
// the room cannot carry is refused and the document is left unchanged; see
// editor.Synchronizer.Validate.
func (h *Handle) Edit(content string) error {
	var err error
	if doErr := h.do(func() { err = h.replace(content) }); doErr != nil {
		return doErr
	}
	return err
}

// Append adds text to the end of the document.
func (h *Handle) Append(text string) error {
	var err error
	if doErr := h.do(func() { err = h.replace(h.buf.Content() + text) }); doErr != nil {
		return doErr
	}
	return err
}

func (h *Handle) replace(content string) error {
	if err := h.doc.Validate(content); err != nil {
		return err
	}
	h.buf.SetContent(content)
	return nil
}

// SendChat posts a chat message. Empty messages fail with
// chat.ErrEmptyMessage and nothing is sent.
func (h *Handle) SendChat(body string) error {
	var err error
	if doErr := h.do(func() { err = h.chat.Send(h.room, body) }); doErr != nil {
		return doErr
	}
	return err
}

// Document returns the current buffer content.
func (h *Handle) Document() string {
	var content string
	if err := h.do(func() { content = h.buf.Content() }); err != nil {
		return h.buf.Content()
	}
	return content
}

// Roster returns the current participants.
func (h *Handle) Roster() []protocol.Participant {
	var participants []protocol.Participant
	if err := h.do(func() { participants = h.roster.Participants() }); err != nil {
		return h.roster.Participants()
	}
	return participants
}

// Feed returns the chat messages received so far.
func (h *Handle) Feed() []chat.Message {
	var feed []chat.Message
	if err := h.do(func() { feed = h.chat.Feed() }); err != nil {
		return h.chat.Feed()
	}
	return feed
}

// OnMessage calls fn for each chat message received from now on.
func (h *Handle) OnMessage(fn func(chat.Message)) (cancel func()) {
	return h.chat.OnMessage(fn)
}

// OnDocument calls fn whenever the document changes, locally or remotely.
func (h *Handle) OnDocument(fn func(content string)) (cancel func()) {
	return h.buf.OnChange(fn)
}

// OnRemoteDocument calls fn only when another participant's document is
// applied. Like OnMessage callbacks, fn runs on the event loop.
func (h *Handle) OnRemoteDocument(fn func(content string)) (cancel func()) {
	return h.doc.OnRemoteChange(fn)
}
