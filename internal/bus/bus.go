package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Topics carried by the bus. The copy-trade handshake uses exactly these
// two: one request, one acknowledgment.
const (
	TopicFillPositions   = "fill-positions"
	TopicPositionsFilled = "positions-filled"
)

// Message is a published event. Payloads are opaque bytes; the coordinator
// serializes its own types.
type Message struct {
	Topic   string
	Payload []byte
}

// Bus is a local, in-process pub/sub hub with at-most-once delivery. A
// publish with no subscriber, or to a subscriber that has fallen behind,
// drops the message; both sides of the handshake must tolerate loss.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]chan Message)}
}

// Subscribe returns a channel receiving future messages on the topic.
func (b *Bus) Subscribe(topic string) <-chan Message {
	ch := make(chan Message, 1)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe. The channel is not
// closed; a receive racing the removal simply never completes. Callers that
// subscribe per operation must unsubscribe when done or the registration
// outlives them.
func (b *Bus) Unsubscribe(topic string, ch <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, c := range subs {
		if (<-chan Message)(c) == ch {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the message to every current subscriber without
// blocking. Returns the number of subscribers that received it.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) int {
	if ctx.Err() != nil {
		return 0
	}

	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	delivered := 0
	for _, ch := range subs {
		select {
		case ch <- Message{Topic: topic, Payload: payload}:
			delivered++
		default:
			log.Warn().
				Str("topic", topic).
				Str("component", "bus").
				Msg("subscriber behind, message dropped")
		}
	}
	if delivered == 0 {
		log.Warn().
			Str("topic", topic).
			Str("component", "bus").
			Msg("no subscriber received message")
	}
	return delivered
}
