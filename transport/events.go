package transport

import "sync"

// EventType names a connection lifecycle event.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
)

func (t EventType) String() string {
	if t == EventConnected {
		return "connected"
	}
	return "disconnected"
}

// Disconnect reasons.
const (
	ReasonUserRequest     = "user-request"
	ReasonLinkLost        = "link-lost"
	ReasonConnectFailed   = "connect-failed"
	ReasonReconnectFailed = "reconnect-failed"
)

// Event is delivered to subscribers on every connect and disconnect.
type Event struct {
	Type   EventType
	Conn   *Connection
	Reason string // empty for EventConnected
}

// Handler receives events. It runs on the goroutine that caused the
// transition and must not block.
type Handler func(Event)

type subscription struct {
	id      int
	typ     EventType
	handler Handler
}

// Events is a subscription table shared by the components that emit.
type Events struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

func NewEvents() *Events { return &Events{} }

// On subscribes h to events of type t. The returned func unsubscribes.
func (e *Events) On(t EventType, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, typ: t, handler: h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every handler subscribed to ev.Type in subscription order.
func (e *Events) Emit(ev Event) {
	e.mu.Lock()
	var handlers []Handler
	for _, s := range e.subs {
		if s.typ == ev.Type {
			handlers = append(handlers, s.handler)
		}
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
