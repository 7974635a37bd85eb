package editor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/wricardo/codecast/collab/cache"
	"github.com/wricardo/codecast/collab/transport"
	"github.com/wricardo/codecast/logging"
	"github.com/wricardo/codecast/protocol"
	"go.uber.org/zap"
)

// ErrInvalidContent is returned for documents that are not valid UTF-8. The
// wire format would rewrite such bytes, leaving peers with a different
// document.
var ErrInvalidContent = errors.New("document is not valid UTF-8")

// State is the synchronizer's echo-suppression state.
type State int

const (
	// Idle: buffer changes are local edits.
	Idle State = iota
	// ApplyingRemote: buffer changes are the synchronizer's own remote
	// apply and must not be sent back.
	ApplyingRemote
)

func (s State) String() string {
	if s == ApplyingRemote {
		return "applying-remote"
	}
	return "idle"
}

// Synchronizer keeps one room's buffer in step with the registry. The room
// document is always sent and applied whole; the last write received wins.
//
// A Synchronizer is not safe for concurrent use. The lifecycle event loop
// owns it.
type Synchronizer struct {
	room  string
	buf   Buffer
	store cache.Store
	log   *zap.SugaredLogger

	state   State
	emitter transport.Emitter
	cancels []func()

	mu     sync.Mutex
	next   int
	remote map[int]func(string)
}

// NewSynchronizer creates a synchronizer for room. store may be nil, in
// which case nothing is cached.
func NewSynchronizer(room string, buf Buffer, store cache.Store, logger *zap.SugaredLogger) *Synchronizer {
	return &Synchronizer{
		room:   room,
		buf:    buf,
		store:  store,
		log:    logging.OrNop(logger),
		remote: make(map[int]func(string)),
	}
}

// OnRemoteChange calls fn after every remote document is applied to the
// buffer. Local edits do not trigger it.
func (s *Synchronizer) OnRemoteChange(fn func(content string)) (cancel func()) {
	s.mu.Lock()
	s.next++
	id := s.next
	s.remote[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.remote, id)
	}
}

// Init seeds the buffer from the cache, falling back to defaultDoc. It must
// run before Attach so that seeding is never sent as an edit. It reports
// whether the content came from the cache.
func (s *Synchronizer) Init(defaultDoc string) (fromCache bool) {
	content := defaultDoc
	if s.store != nil {
		entry, err := s.store.Load(s.room)
		switch {
		case err == nil:
			content = entry.Content
			fromCache = true
		case !errors.Is(err, cache.ErrNotFound):
			s.log.Warnf("Failed to read cached document for room %s: %v", s.room, err)
		}
	}
	s.buf.SetContent(content)
	return fromCache
}

// Attach starts listening to the buffer and to remote document events.
func (s *Synchronizer) Attach(ch transport.Channel) {
	s.emitter = ch
	s.cancels = append(s.cancels,
		s.buf.OnChange(func(content string) {
			if err := s.ApplyLocalChange(content); err != nil {
				s.log.Warnf("Local change in room %s: %v", s.room, err)
			}
		}),
		ch.Subscribe(protocol.EventCodeChange, func(env *protocol.Envelope) {
			var change protocol.CodeChange
			if err := env.Decode(&change); err != nil {
				s.log.Debugf("Ignoring code-change: %v", err)
				return
			}
			if change.Room != "" && change.Room != s.room {
				s.log.Debugf("Ignoring code-change for room %s", change.Room)
				return
			}
			s.HandleRemoteChange(change.Content)
		}),
		ch.Subscribe(protocol.EventCodeSync, func(env *protocol.Envelope) {
			var catchUp protocol.CodeSync
			if err := env.Decode(&catchUp); err != nil {
				s.log.Debugf("Ignoring code-sync: %v", err)
				return
			}
			s.HandleSync(catchUp.Content)
		}),
	)
}

// Detach stops all listening. There is nothing to flush.
func (s *Synchronizer) Detach() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.emitter = nil
}

// Validate reports whether content can reach the other participants
// byte for byte: it must be valid UTF-8 and fit in one registry frame.
func (s *Synchronizer) Validate(content string) error {
	if !utf8.ValidString(content) {
		return ErrInvalidContent
	}
	frame, err := protocol.Encode(protocol.EventCodeChange, protocol.CodeChange{Room: s.room, Content: content})
	if err != nil {
		return err
	}
	return protocol.CheckFrameSize(frame)
}

// ApplyLocalChange records a local edit in the cache and sends it. Changes
// reported while a remote apply is in progress are the apply itself and are
// dropped. Content that fails Validate is neither cached nor sent. A cache
// failure does not stop the edit from being sent.
func (s *Synchronizer) ApplyLocalChange(content string) error {
	if s.state == ApplyingRemote {
		return nil
	}
	if err := s.Validate(content); err != nil {
		return err
	}

	var errs []error
	if s.store != nil {
		if err := s.store.Save(s.room, content); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.emitter != nil {
		if err := s.emitter.Emit(protocol.EventCodeChange, protocol.CodeChange{Room: s.room, Content: content}); err != nil {
			errs = append(errs, fmt.Errorf("emit: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HandleRemoteChange applies another participant's document, keeping the
// local scroll position.
func (s *Synchronizer) HandleRemoteChange(content string) {
	if s.buf.Content() == content {
		return
	}
	s.applyRemote(content, true)
}

// HandleSync applies the catch-up document sent after joining.
func (s *Synchronizer) HandleSync(content string) {
	if s.buf.Content() == content {
		return
	}
	s.applyRemote(content, false)
}

func (s *Synchronizer) applyRemote(content string, keepScroll bool) {
	s.state = ApplyingRemote
	offset := s.buf.ScrollOffset()
	s.buf.SetContent(content)
	if keepScroll {
		s.buf.SetScrollOffset(offset)
	}
	s.state = Idle

	for _, fn := range s.remoteListeners() {
		fn(content)
	}
}

func (s *Synchronizer) remoteListeners() []func(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.remote))
	for id := range s.remote {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(string), len(ids))
	for i, id := range ids {
		out[i] = s.remote[id]
	}
	return out
}

// State reports the current echo-suppression state.
func (s *Synchronizer) State() State {
	return s.state
}

// Content returns the current buffer content.
func (s *Synchronizer) Content() string {
	return s.buf.Content()
}
