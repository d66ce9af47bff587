package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultNotificationDuration is how long a notification stays visible when
// the publisher does not say.
const DefaultNotificationDuration = 5 * time.Second

// NotificationLevel classifies a user-facing notification.
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Valid reports whether l is a known level.
func (l NotificationLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// Notification is a message meant for the user rather than the log.
type Notification struct {
	Level    NotificationLevel `json:"type"`
	Title    string            `json:"title,omitempty"`
	Message  string            `json:"message"`
	Duration time.Duration     `json:"duration"`
	Time     time.Time         `json:"time"`
}

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("notification bus closed")

// Bus fans notifications out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the notification.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Notification
	nextID      int
	closed      bool

	defaultDuration time.Duration
	now             func() time.Time
	dropped         atomic.Int64
	logger          *Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithDefaultDuration overrides DefaultNotificationDuration.
func WithDefaultDuration(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.defaultDuration = d
		}
	}
}

// WithClock sets the time source used to stamp notifications.
func WithClock(now func() time.Time) BusOption {
	return func(b *Bus) {
		b.now = now
	}
}

// WithBusLogger records every published notification at debug level.
func WithBusLogger(logger *Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers:     make(map[int]chan Notification),
		defaultDuration: DefaultNotificationDuration,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = NewNopLogger()
	}

	return b
}

// Subscribe registers a receiver with the given buffer size. The returned
// function unsubscribes and closes the channel; calling it twice is safe.
func (b *Bus) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}

	ch := make(chan Notification, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
		})
	}
}

// Publish delivers n to every subscriber. Missing level, duration and time
// are filled in.
func (b *Bus) Publish(n Notification) error {
	if !n.Level.Valid() {
		n.Level = LevelInfo
	}
	if n.Duration <= 0 {
		n.Duration = b.defaultDuration
	}
	if n.Time.IsZero() {
		n.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	b.logger.WithFields(map[string]interface{}{
		"notification": string(n.Level),
		"subscribers":  len(b.subscribers),
	}).Debug(n.Message)

	for _, ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			b.dropped.Add(1)
		}
	}

	return nil
}

// Info publishes an info notification.
func (b *Bus) Info(message string) error {
	return b.Publish(Notification{Level: LevelInfo, Message: message})
}

// Success publishes a success notification.
func (b *Bus) Success(message string) error {
	return b.Publish(Notification{Level: LevelSuccess, Message: message})
}

// Warning publishes a warning notification.
func (b *Bus) Warning(message string) error {
	return b.Publish(Notification{Level: LevelWarning, Message: message})
}

// Failure publishes an error notification.
func (b *Bus) Failure(message string) error {
	return b.Publish(Notification{Level: LevelError, Message: message})
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
