// Package eventbus implements the typed broadcast of named events plus a
// dedicated frame channel for streaming subscribers.
package eventbus

import (
	"sync"

	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("eventbus")

// Event is a single named broadcast payload.
type Event struct {
	Name    string
	Payload map[string]any
}

// Frame is a single encoded frame pushed to streaming subscribers.
type Frame struct {
	JPEGBase64 string
	Metrics    map[string]any
}

// subscriberChanCap bounds how far a slow subscriber can lag before its
// channel fills and delivery to it is dropped rather than blocking the bus.
const subscriberChanCap = 32

// Bus is a best-effort typed pub/sub: a failing (full) subscriber channel is
// skipped for that message, with a warning logged, rather than blocking
// publication to the rest.
type Bus struct {
	mu sync.Mutex

	events map[string]chan Event
	frames map[string]chan Frame
}

func New() *Bus {
	return &Bus{
		events: make(map[string]chan Event),
		frames: make(map[string]chan Frame),
	}
}

// SubscribeEvents registers a new event subscriber keyed by an
// caller-supplied id (typically the client or connection id), returning the
// channel to read from and an Unsubscribe function.
func (b *Bus) SubscribeEvents(id string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberChanCap)
	b.events[id] = ch
	return ch, func() { b.unsubscribeEvents(id) }
}

func (b *Bus) unsubscribeEvents(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.events[id]; ok {
		delete(b.events, id)
		close(ch)
	}
}

// SubscribeFrames registers a new frame subscriber.
func (b *Bus) SubscribeFrames(id string) (<-chan Frame, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Frame, subscriberChanCap)
	b.frames[id] = ch
	return ch, func() { b.unsubscribeFrames(id) }
}

func (b *Bus) unsubscribeFrames(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.frames[id]; ok {
		delete(b.frames, id)
		close(ch)
	}
}

// Publish broadcasts a named event to every event subscriber. Delivery is
// best-effort: a subscriber whose buffer is full is skipped for this event
// rather than blocking the publisher or being dropped from the bus.
func (b *Bus) Publish(name string, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	evt := Event{Name: name, Payload: payload}
	for id, ch := range b.events {
		select {
		case ch <- evt:
		default:
			log.Warn("event subscriber is falling behind, dropping message", "subscriber", id, "event", name)
		}
	}
}

// PublishFrame broadcasts a captured frame to every frame subscriber.
func (b *Bus) PublishFrame(jpegBase64 string, metrics map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	frame := Frame{JPEGBase64: jpegBase64, Metrics: metrics}
	for id, ch := range b.frames {
		select {
		case ch <- frame:
		default:
			log.Warn("frame subscriber is falling behind, dropping frame", "subscriber", id)
		}
	}
}

// SubscriberCount reports the number of live event and frame subscribers.
func (b *Bus) SubscriberCount() (events, frames int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events), len(b.frames)
}
