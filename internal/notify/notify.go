package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level classifies a notice for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a transient, user-facing message such as "Re-evaluation completed".
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Notifier surfaces notices to whoever is presenting the client state.
type Notifier interface {
	Notify(notice Notice)
}

// Info builds an informational notice.
func Info(source, message string) Notice {
	return Notice{Level: LevelInfo, Source: source, Message: message, SentAt: time.Now().UTC()}
}

// Success builds a success notice.
func Success(source, message string) Notice {
	return Notice{Level: LevelSuccess, Source: source, Message: message, SentAt: time.Now().UTC()}
}

// Error builds an error notice.
func Error(source, message string) Notice {
	return Notice{Level: LevelError, Source: source, Message: message, SentAt: time.Now().UTC()}
}

// LogNotifier writes notices to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a notifier backed by the logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notices").Logger()}
}

// Notify logs the notice at a level matching its severity.
func (l *LogNotifier) Notify(notice Notice) {
	event := l.logger.Info()
	if notice.Level == LevelError {
		event = l.logger.Warn()
	}
	event.Str("level_hint", string(notice.Level)).Str("source", notice.Source).Msg(notice.Message)
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

// Notify forwards the notice to every non-nil notifier.
func (m Multi) Notify(notice Notice) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(notice)
		}
	}
}

// Discard drops every notice.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Notice) {}

const brokerBufferSize = 16

// Broker delivers notices to in-process subscribers without ever blocking the sender.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan Notice]struct{}
}

// NewBroker constructs an empty broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[chan Notice]struct{})}
}

// Subscribe registers a listener; the returned func unsubscribes and closes the channel.
func (b *Broker) Subscribe() (<-chan Notice, func()) {
	ch := make(chan Notice, brokerBufferSize)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
		})
	}

	return ch, cancel
}

// Notify broadcasts the notice. Slow subscribers miss notices rather than stall the caller.
func (b *Broker) Notify(notice Notice) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- notice:
		default:
		}
	}
}
