// Package events is the lightweight pub/sub broker connecting the market
// feeds, strategy engine, and API layer.
package events

import (
	"sync"
	"sync/atomic"
)

// Message is one delivery. Topic lets a subscriber listening on several
// topics tell deliveries apart on a single channel.
type Message struct {
	Topic   Event `json:"topic"`
	Payload any   `json:"payload"`
}

// Bus is a channel-based broker. Publish never blocks; deliveries to a
// full subscriber channel are counted and dropped.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]*subscriber

	dropped atomic.Int64
}

// subscriber is one registered channel. A multi-topic subscription shares
// the same subscriber across several topic lists.
type subscriber struct {
	ch     chan Message
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]*subscriber)}
}

// Subscribe registers a listener for one or more topics, merged onto a
// single channel. The returned function unsubscribes from every topic and
// closes the channel.
func (b *Bus) Subscribe(buffer int, topics ...Event) (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, buffer)}

	b.mu.Lock()
	for _, e := range topics {
		b.subs[e] = append(b.subs[e], sub)
	}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		for _, e := range topics {
			list := b.subs[e]
			for i, s := range list {
				if s == sub {
					b.subs[e] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
		close(sub.ch)
	}

	return sub.ch, unsub
}

// Publish fans the payload out to the topic's subscribers without blocking.
func (b *Bus) Publish(e Event, payload any) {
	msg := Message{Topic: e, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[e] {
		select {
		case sub.ch <- msg:
		default:
			// slow subscriber; keep the broker non-blocking
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were discarded due to full
// subscriber channels since the bus was created.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers reports how many channels are currently registered on a topic.
func (b *Bus) Subscribers(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[e])
}
