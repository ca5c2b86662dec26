package waku

import (
	"sync"

	"github.com/xmtp/libxmtp-sub003/pkg/transport"
)

// Bus is the in-process network used by the mock transport. It
// relays envelopes to topic subscribers and keeps every published envelope
// so that Query behaves like a store node.
type Bus struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[string]map[int]transport.Handler
	history     []transport.Envelope
}

var globalBus = NewBus()

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[int]transport.Handler),
	}
}

func (b *Bus) publish(env transport.Envelope) {
	b.mu.Lock()
	b.history = append(b.history, env)
	handlers := make([]transport.Handler, 0, len(b.subscribers[env.ContentTopic]))
	for _, h := range b.subscribers[env.ContentTopic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
}

func (b *Bus) subscribe(topics []string, handler transport.Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	for _, topic := range topics {
		subs, ok := b.subscribers[topic]
		if !ok {
			subs = make(map[int]transport.Handler)
			b.subscribers[topic] = subs
		}
		subs[id] = handler
	}
	return func() { b.unsubscribe(id, topics) }
}

func (b *Bus) unsubscribe(id int, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		delete(b.subscribers[topic], id)
		if len(b.subscribers[topic]) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

func (b *Bus) query(q transport.Query) (transport.QueryResult, error) {
	b.mu.Lock()
	history := append([]transport.Envelope(nil), b.history...)
	b.mu.Unlock()
	return transport.Page(history, q)
}
