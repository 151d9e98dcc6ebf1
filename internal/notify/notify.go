// Package notify delivers run events to observers.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jakopako/contactwalker/internal/types"
)

// Action names the kind of an Event.
type Action string

const (
	ActionStatus   Action = "updateStatus"
	ActionLog      Action = "log"
	ActionFinished Action = "finished"
	ActionStopped  Action = "stopped"
)

// Event is a single message to observers of a run.
type Event struct {
	Action  Action          `json:"action"`
	RunID   string          `json:"runId,omitempty"`
	Text    string          `json:"text,omitempty"`
	IsError bool            `json:"isError,omitempty"`
	Data    *types.LogEntry `json:"data,omitempty"`
	Time    time.Time       `json:"time"`
}

// Terminal reports whether e ends a run.
func (e Event) Terminal() bool {
	return e.Action == ActionFinished || e.Action == ActionStopped
}

// A Notifier receives run events. Notify must not block for long, it is
// called from the goroutine executing the run.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Multi forwards every event to all of its notifiers. A panicking notifier
// does not affect the others.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		notifyOne(n, e)
	}
}

func notifyOne(n Notifier, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("notifier panicked: %v", r), slog.String("action", string(e.Action)))
		}
	}()
	n.Notify(e)
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) Notify(e Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("run", e.RunID))
	switch e.Action {
	case ActionStatus:
		if e.IsError {
			logger.Warn(e.Text)
		} else {
			logger.Info(e.Text)
		}
	case ActionLog:
		if e.Data == nil {
			return
		}
		attrs := []any{slog.String("status", string(e.Data.Status)), slog.String("name", e.Data.UserName)}
		if e.Data.UserPhone != "" {
			attrs = append(attrs, slog.String("phone", e.Data.UserPhone))
		}
		if e.Data.URL != "" {
			attrs = append(attrs, slog.String("url", e.Data.URL))
		}
		if e.Data.Status == types.StatusError {
			logger.Error(e.Data.Error, attrs...)
		} else {
			logger.Info("item processed", attrs...)
		}
	default:
		logger.Info(fmt.Sprintf("run %s", e.Action))
	}
}

// Broadcaster fans events out to any number of subscribers. Slow subscribers
// lose events instead of holding up the run.
type Broadcaster struct {
	buffer int

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		buffer: buffer,
		subs:   map[chan Event]struct{}{},
	}
}

// Subscribe returns a channel receiving all events from now on and a function
// to end the subscription. The channel is closed when the subscription ends.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, found := b.subs[ch]; found {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

func (b *Broadcaster) Notify(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("dropping event for slow subscriber", slog.String("action", string(e.Action)))
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends all subscriptions. Later events are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
