// Package events provides the in-process pub/sub bus that carries bot
// activity (portfolio snapshots, price updates, trades, log lines) to
// websocket dashboard clients.
package events

import (
	"sync"
	"time"
)

// Type identifies what an event payload carries.
type Type string

const (
	TypePortfolio       Type = "portfolio"
	TypePrices          Type = "prices"
	TypeChart           Type = "chart"
	TypeNews            Type = "news"
	TypeTrade           Type = "trade"
	TypeLog             Type = "log"
	TypeCommandResponse Type = "command_response"
)

// Event is one bus message. Payload is whatever the producer put there;
// websocket handlers serialize it to JSON as-is.
type Event struct {
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Bus fans events out to subscribers. Sends never block: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer size.
// The returned id is used to Unsubscribe.
func (b *Bus) Subscribe(bufSize int) (id int, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id = b.nextID
	b.nextID++
	c := make(chan Event, bufSize)
	b.subs[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish stamps and delivers an event to every subscriber (non-blocking
// send).
func (b *Bus) Publish(t Type, payload any) {
	evt := Event{Type: t, Time: time.Now().UTC(), Payload: payload}
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber, drop event.
		}
	}
	b.mu.Unlock()
}
