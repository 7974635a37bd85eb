// Package notify carries short user-visible notices such as "alice joined"
// or "connection lost, retrying" from room components to whatever surface
// presents them.
package notify

import (
	"sync"

	"github.com/wricardo/codecast/logging"
	"go.uber.org/zap"
)

// Level classifies a notification.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is one transient notice.
type Notification struct {
	Level   Level
	Message string
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(Notification) {})

// OrDiscard returns n, or Discard when n is nil.
func OrDiscard(n Notifier) Notifier {
	if n == nil {
		return Discard
	}
	return n
}

// Logger writes notifications through a zap logger at the matching level.
type Logger struct {
	log *zap.SugaredLogger
}

// NewLogger creates a Notifier backed by logger.
func NewLogger(logger *zap.SugaredLogger) *Logger {
	return &Logger{log: logging.OrNop(logger)}
}

func (l *Logger) Notify(n Notification) {
	switch n.Level {
	case Warning:
		l.log.Warn(n.Message)
	case Error:
		l.log.Error(n.Message)
	default:
		l.log.Info(n.Message)
	}
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.seen))
	copy(out, r.seen)
	return out
}

// Count returns how many notifications at level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, seen := range r.seen {
		if seen.Level == level {
			n++
		}
	}
	return n
}
