package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind names a notification type.
type Kind string

const (
	// KindUpload is the command asking a widget to start an upload (or to
	// submit its manual form). Payload: map[string]any of extra fields, or nil.
	KindUpload Kind = "upload"

	// KindDropped is published by a widget after every drop.
	KindDropped Kind = "dropped"

	// KindBusy is published when a widget enters or leaves the busy state.
	// Payload: bool.
	KindBusy Kind = "busy"

	// KindSuccess is published when an upload completes with a 2xx response.
	KindSuccess Kind = "success"

	// KindError is published when an upload fails.
	KindError Kind = "error"

	// KindManual is published when a widget switches to manual mode.
	KindManual Kind = "manual"

	// KindManualChange is raised by a file input when the user picks a file.
	// It is not namespaced by widget id. Payload: bool.
	KindManualChange Kind = "manualchange"
)

// Key addresses a notification: a kind plus the widget id it belongs to.
// ID is empty for un-namespaced kinds.
type Key struct {
	Kind Kind
	ID   string
}

// String renders the key as "kind:id", or just "kind" when ID is empty.
func (k Key) String() string {
	if k.ID == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.ID
}

// Event is a delivered notification.
type Event struct {
	Key     Key
	Payload any
}

// Handler receives notifications.
type Handler func(Event)

// Subscriber is anything notifications can be subscribed to and published on.
// *Bus and *Scope both implement it.
type Subscriber interface {
	// Subscribe registers h for key and returns a func that removes it.
	// The returned func is safe to call more than once.
	Subscribe(key Key, h Handler) (unsubscribe func())

	// Publish delivers payload to every handler subscribed to key.
	Publish(key Key, payload any)
}

type subscription struct {
	id uint64
	h  Handler
}

// Bus is a synchronous publish/subscribe bus keyed by Key.
// The zero value is not usable; create one with New.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Key][]subscription
	taps   []subscription
	logger *slog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:   make(map[Key][]subscription),
		logger: slog.Default().With("component", "notify"),
	}
}

var (
	defaultBus     *Bus
	defaultBusOnce sync.Once
)

// Default returns the process-wide bus.
func Default() *Bus {
	defaultBusOnce.Do(func() {
		defaultBus = New()
	})
	return defaultBus
}

// Subscribe registers h for notifications published on key.
func (b *Bus) Subscribe(key Key, h Handler) func() {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[key] = append(b.subs[key], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(key, id) })
	}
}

func (b *Bus) remove(key Key, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[key]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, key)
		} else {
			b.subs[key] = next
		}
		return
	}
}

// Tap registers h for every notification published on the bus.
// Taps run before the keyed handlers, so they see notifications in publish
// order even when a handler publishes in turn.
func (b *Bus) Tap(h Handler) func() {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.taps = append(b.taps, subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.taps {
				if s.id == id {
					b.taps = append(b.taps[:i:i], b.taps[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers payload to the taps, then to the handlers subscribed to key.
// Handlers added or removed while a publish is running take effect on the
// next publish.
func (b *Bus) Publish(key Key, payload any) {
	b.mu.RLock()
	subs := b.subs[key]
	taps := b.taps
	b.mu.RUnlock()

	ev := Event{Key: key, Payload: payload}
	for _, s := range taps {
		b.deliver(s.h, ev)
	}
	for _, s := range subs {
		b.deliver(s.h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panicked", "key", ev.Key.String(), "panic", r)
		}
	}()
	h(ev)
}

// Count returns the number of handlers subscribed to key.
func (b *Bus) Count(key Key) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}

// Scope returns a new scope whose subscriptions live on b.
func (b *Bus) Scope() *Scope {
	return NewScope(b)
}

// Once subscribes h to key on s for a single delivery.
// The subscription is removed before h runs.
func Once(s Subscriber, key Key, h Handler) func() {
	var (
		fired atomic.Bool
		mu    sync.Mutex
		unsub func()
	)

	unsubscribe := s.Subscribe(key, func(ev Event) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		mu.Lock()
		u := unsub
		mu.Unlock()
		if u != nil {
			u()
		}
		h(ev)
	})

	mu.Lock()
	unsub = unsubscribe
	mu.Unlock()
	if fired.Load() {
		unsubscribe()
	}
	return unsubscribe
}
