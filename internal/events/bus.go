package events

import (
	"sync"
	"time"
)

// EventType names what happened to the task files.
type EventType string

const (
	// EventExternalChange is published when a task file changed on disk
	// and the change was not ours.
	EventExternalChange EventType = "external_change"
	// EventReloaded is published after a new snapshot was loaded.
	EventReloaded EventType = "reloaded"
	// EventSaved is published after a mutation was written to disk.
	EventSaved EventType = "saved"
)

// Event is one notification on the bus. Data carries operation details
// such as "op", "id" and "line".
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber receives events on its own goroutine.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe bus. Each subscriber has a
// buffered channel; when it is full the event is dropped for that
// subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	now         func() time.Time
	delivering  sync.WaitGroup
}

// closeWait bounds how long Close waits for queued events to be delivered.
const closeWait = time.Second

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		now:         time.Now,
	}
}

// Subscribe registers fn for one event type and returns the function that
// removes it. A panicking subscriber does not stop delivery to others.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	b.delivering.Add(1)
	go func() {
		defer b.delivering.Done()
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subscribers[eventType]
			for i, subCh := range subs {
				if subCh == ch {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	unsubs := []func(){
		b.Subscribe(EventExternalChange, fn),
		b.Subscribe(EventReloaded, fn),
		b.Subscribe(EventSaved, fn),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish delivers an event to the subscribers of eventType without blocking.
func (b *Bus) Publish(eventType EventType, path string, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Path:      path,
		Timestamp: b.now().UTC(),
		Data:      data,
	}
	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close ends every subscription and waits, up to a second, for events
// already queued to reach their subscribers. It must not be called from a
// subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.delivering.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
	}
}
