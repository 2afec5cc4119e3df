// Package events carries structural and resolution notifications from the
// theme engine to its consumers (style appliers, registry sync, the HTTP
// event stream).
//
// Dispatch is synchronous: Publish returns once every subscriber has seen the
// event, in subscription order.
package events

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Handler receives events. A returned error is logged; it never stops
// delivery to the remaining subscribers.
type Handler func(Event) error

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Channel is a synchronous publish/subscribe channel. The zero value is not
// usable; use NewChannel.
type Channel struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

func NewChannel() *Channel {
	return &Channel{}
}

// Subscribe registers handler and returns a function that removes it. The
// name is only used in log messages.
func (c *Channel) Subscribe(name string, handler Handler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, name: name, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.subs = slices.DeleteFunc(c.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

// Publish delivers ev to every subscriber. Subscribers may publish or
// subscribe from inside a handler; such changes apply to later Publish calls.
func (c *Channel) Publish(ev Event) {
	c.mu.RLock()
	subs := slices.Clone(c.subs)
	c.mu.RUnlock()

	for _, s := range subs {
		if err := deliver(s, ev); err != nil {
			slog.Error("Event subscriber failed", "subscriber", s.name, "event", ev.Kind(), "theme", ev.Theme(), "error", err)
		}
	}
}

func deliver(s subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ev)
}

// Len returns the number of subscribers.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.subs)
}

// Close removes every subscriber.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs = nil
}
