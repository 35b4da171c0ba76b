// Package sessionevents provides a process-wide broadcast of named session events.
package sessionevents

import (
	"strings"
	"sync"
)

// EventTokenExpired is published when a refresh attempt fails and the credential is cleared.
const EventTokenExpired = "token-expired"

// Listener reacts to a published event. Events carry no payload.
type Listener func()

type subscription struct {
	id       uint64
	listener Listener
}

// Bus fans out named events to any number of listeners. The zero value is not usable;
// construct with NewBus.
type Bus struct {
	mutex         sync.RWMutex
	subscriptions map[string][]subscription
	nextID        uint64
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscriptions: make(map[string][]subscription)}
}

// Subscribe registers listener for eventName and returns a function that removes it.
// The returned function is safe to call more than once.
func (bus *Bus) Subscribe(eventName string, listener Listener) func() {
	if listener == nil || strings.TrimSpace(eventName) == "" {
		return func() {}
	}
	bus.mutex.Lock()
	bus.nextID++
	id := bus.nextID
	bus.subscriptions[eventName] = append(bus.subscriptions[eventName], subscription{id: id, listener: listener})
	bus.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			bus.unsubscribe(eventName, id)
		})
	}
}

// Publish invokes every listener registered for eventName, in subscription order, on the
// calling goroutine. Listeners may subscribe or unsubscribe while being notified.
func (bus *Bus) Publish(eventName string) {
	bus.mutex.RLock()
	current := bus.subscriptions[eventName]
	listeners := make([]Listener, 0, len(current))
	for _, entry := range current {
		listeners = append(listeners, entry.listener)
	}
	bus.mutex.RUnlock()

	for _, listener := range listeners {
		listener()
	}
}

// ListenerCount returns the number of listeners registered for eventName.
func (bus *Bus) ListenerCount(eventName string) int {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()
	return len(bus.subscriptions[eventName])
}

func (bus *Bus) unsubscribe(eventName string, id uint64) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	current := bus.subscriptions[eventName]
	for index, entry := range current {
		if entry.id != id {
			continue
		}
		remaining := make([]subscription, 0, len(current)-1)
		remaining = append(remaining, current[:index]...)
		remaining = append(remaining, current[index+1:]...)
		if len(remaining) == 0 {
			delete(bus.subscriptions, eventName)
		} else {
			bus.subscriptions[eventName] = remaining
		}
		return
	}
}
