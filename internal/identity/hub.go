package identity

import "sync"

// Hub fans provider events out to subscribers. Emit calls are serialized, so
// every subscriber sees events in the same order.
type Hub struct {
	mu       sync.Mutex
	handlers map[uint64]EventHandler
	nextID   uint64

	emitMu sync.Mutex
}

// Subscribe registers h. Any initial events are delivered to h alone before
// it can observe a concurrent Emit.
func (hub *Hub) Subscribe(h EventHandler, initial ...Event) func() {
	hub.emitMu.Lock()
	defer hub.emitMu.Unlock()

	hub.mu.Lock()
	if hub.handlers == nil {
		hub.handlers = make(map[uint64]EventHandler)
	}
	id := hub.nextID
	hub.nextID++
	hub.handlers[id] = h
	hub.mu.Unlock()

	for _, ev := range initial {
		h(ev)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			hub.mu.Lock()
			delete(hub.handlers, id)
			hub.mu.Unlock()
		})
	}
}

// Emit delivers ev to every current subscriber.
func (hub *Hub) Emit(ev Event) {
	hub.emitMu.Lock()
	defer hub.emitMu.Unlock()

	hub.mu.Lock()
	handlers := make([]EventHandler, 0, len(hub.handlers))
	for _, h := range hub.handlers {
		handlers = append(handlers, h)
	}
	hub.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Len returns the number of subscribers.
func (hub *Hub) Len() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.handlers)
}
