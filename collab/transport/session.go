package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/wricardo/codecast/logging"
	"github.com/wricardo/codecast/protocol"
	"go.uber.org/zap"
)

const (
	// DefaultAttempts is the number of connection attempts per (re)connect.
	DefaultAttempts = 3

	// DefaultTimeout bounds one whole (re)connect cycle.
	DefaultTimeout = 10 * time.Second

	writeWait = 10 * time.Second

	// The registry pings every 54s.
	pongWait = 60 * time.Second

	bufferSize = 64
)

var (
	ErrClosed         = errors.New("session closed")
	ErrConnectFailed  = errors.New("connection failed")
	ErrConnectionLost = errors.New("connection lost")
	ErrHandshake      = errors.New("unexpected handshake")
)

// Status reports a change in connectivity.
type Status int

const (
	Disconnected Status = iota
	Reconnected
	Failed
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Reconnected:
		return "reconnected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Session.
type Options struct {
	// URL of the registry websocket endpoint, e.g. ws://localhost:8080/ws.
	URL string

	// Attempts per (re)connect cycle. Defaults to DefaultAttempts.
	Attempts int

	// Timeout for a whole (re)connect cycle. Defaults to DefaultTimeout.
	Timeout time.Duration

	Dialer *websocket.Dialer
	Logger *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Session is one client's persistent connection to the registry. It
// reconnects on its own after a transient loss, within the configured
// attempt and time budget, and gives up for good once that is spent.
type Session struct {
	opts Options
	log  *zap.SugaredLogger

	mu     sync.Mutex
	conn   *websocket.Conn
	id     string
	closed bool
	err    error

	out     chan []byte
	inbound chan *protocol.Envelope
	status  chan Status

	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
	flushed  chan struct{}
}

// Dial connects to the registry and waits for the connected handshake.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	s := &Session{
		opts:    opts,
		log:     opts.Logger,
		out:     make(chan []byte, bufferSize),
		inbound: make(chan *protocol.Envelope, bufferSize),
		status:  make(chan Status, 4),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}

	conn, id, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.id = id
	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.readLoop()
	go s.writeLoop()

	s.log.Debugf("Connected to %s as %s", opts.URL, id)
	return s, nil
}

// ID returns the connection id of the current connection. It changes after
// every reconnection.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Inbound delivers every well-formed event from the registry in arrival
// order.
func (s *Session) Inbound() <-chan *protocol.Envelope {
	return s.inbound
}

// Status delivers connectivity changes. Failed is the last value sent.
func (s *Session) Status() <-chan Status {
	return s.status
}

// Done is closed once the session is closed or has failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns ErrConnectionLost after a failure, ErrClosed after Close, and
// nil while the session is open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Emit queues one event for sending. Events sent while the connection is
// down may be lost. Frames the registry would refuse fail with
// protocol.ErrFrameTooLarge and are not sent.
func (s *Session) Emit(eventType protocol.EventType, payload interface{}) error {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}
	if err := protocol.CheckFrameSize(data); err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.out <- data:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Close sends any queued events and closes the connection. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.err == nil {
		s.err = ErrClosed
	}
	conn := s.conn
	s.mu.Unlock()

	s.finish()
	select {
	case <-s.flushed:
	case <-time.After(writeWait):
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return conn.Close()
}

func (s *Session) finish() {
	s.doneOnce.Do(func() {
		s.cancel()
		close(s.done)
	})
}

func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	conn := s.conn
	s.mu.Unlock()

	s.log.Warnf("Giving up on %s: %v", s.opts.URL, cause)
	s.notify(Failed)
	s.finish()
	conn.Close()
}

func (s *Session) notify(st Status) {
	select {
	case s.status <- st:
	case <-s.done:
	}
}

// connect runs one bounded connect cycle.
func (s *Session) connect(ctx context.Context) (*websocket.Conn, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var (
		conn *websocket.Conn
		id   string
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.opts.Attempts-1)),
		ctx,
	)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		c, connID, err := s.dialOnce(ctx)
		if err != nil {
			return err
		}
		conn, id = c, connID
		return nil
	}, policy, func(err error, next time.Duration) {
		s.log.Debugf("Connect attempt %d to %s failed: %v (retrying in %s)", attempt, s.opts.URL, err, next)
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w after %d attempts: %w", ErrConnectFailed, attempt, err)
	}
	return conn, id, nil
}

func (s *Session) dialOnce(ctx context.Context) (*websocket.Conn, string, error) {
	conn, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return nil, "", err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.opts.Timeout)
	}
	conn.SetReadDeadline(deadline)

	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("reading handshake: %w", err)
	}

	env, err := protocol.ParseEnvelope(data)
	if err != nil || env.Type != protocol.EventConnected {
		conn.Close()
		return nil, "", backoff.Permanent(ErrHandshake)
	}
	var hello protocol.Connected
	if err := env.Decode(&hello); err != nil || hello.ConnectionID == "" {
		conn.Close()
		return nil, "", backoff.Permanent(ErrHandshake)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	return conn, hello.ConnectionID, nil
}

func (s *Session) current() (*websocket.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.closed
}

func (s *Session) readLoop() {
	for {
		conn, closed := s.current()
		if closed {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if _, closed := s.current(); closed {
				return
			}
			s.log.Warnf("Connection to %s lost: %v", s.opts.URL, err)
			conn.Close()
			s.notify(Disconnected)

			if !s.reconnect(err) {
				return
			}
			continue
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			s.log.Debugf("Ignoring frame: %v", err)
			continue
		}

		select {
		case s.inbound <- env:
		case <-s.done:
			return
		}
	}
}

func (s *Session) reconnect(cause error) bool {
	conn, id, err := s.connect(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return false
		}
		s.fail(errors.Join(cause, err))
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return false
	}
	s.conn = conn
	s.id = id
	s.mu.Unlock()

	s.log.Infof("Reconnected to %s as %s", s.opts.URL, id)
	s.notify(Reconnected)
	return true
}

func (s *Session) writeLoop() {
	defer close(s.flushed)

	for {
		select {
		case data := <-s.out:
			s.write(data)

		case <-s.done:
			for {
				select {
				case data := <-s.out:
					s.write(data)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(data []byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop notices the loss and reconnects.
		s.log.Debugf("Dropped outbound frame: %v", err)
	}
}
