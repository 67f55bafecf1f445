// Package events is the typed publish/subscribe bus shared by the components of one map view.
//
// Every topic is declared once in topics.go together with its payload type. Delivery is
// synchronous, on the publisher's goroutine, in subscription order; a handler that needs to do
// slow work must hand it off itself. Each Publish reaches every subscriber registered at the
// moment of the call exactly once.
package events

import (
	"sort"
	"sync"
)

// Topic names an event stream whose payloads are of type T.
type Topic[T any] struct {
	Name string
}

type handler struct {
	id int
	fn func(any)
}

// Bus dispatches events to subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]handler
	taps   []handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]handler)}
}

// Subscribe registers fn for topic t and returns a function that removes it.
// The returned function is idempotent.
func Subscribe[T any](b *Bus, t Topic[T], fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t.Name] = append(b.subs[t.Name], handler{id: id, fn: func(v any) { fn(v.(T)) }})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t.Name, id) })
	}
}

// Publish delivers ev to every subscriber of t, then to every tap.
func Publish[T any](b *Bus, t Topic[T], ev T) {
	b.mu.RLock()
	hs := append([]handler(nil), b.subs[t.Name]...)
	taps := append([]handler(nil), b.taps...)
	b.mu.RUnlock()

	for _, h := range hs {
		h.fn(ev)
	}
	for _, h := range taps {
		h.fn(Envelope{Topic: t.Name, Payload: ev})
	}
}

// Envelope is what taps receive: the topic name and the untyped payload.
type Envelope struct {
	Topic   string
	Payload any
}

// Tap registers fn for every topic. Taps bridge the bus to external transports.
func (b *Bus) Tap(fn func(Envelope)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.taps = append(b.taps, handler{id: id, fn: func(v any) { fn(v.(Envelope)) }})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.taps = without(b.taps, id)
		})
	}
}

// Count returns the number of subscribers of a topic name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Topics lists topic names that currently have subscribers.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs))
	for name, hs := range b.subs {
		if len(hs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (b *Bus) remove(name string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = without(b.subs[name], id)
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

func without(hs []handler, id int) []handler {
	out := hs[:0:0]
	for _, h := range hs {
		if h.id != id {
			out = append(out, h)
		}
	}
	return out
}
