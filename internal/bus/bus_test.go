package bus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfleet/bitfleet/internal/bus"
)

func TestBus(t *testing.T) {
	t.Run("delivers to a subscriber", func(t *testing.T) {
		b := bus.New()
		ch := b.Subscribe(bus.TopicFillPositions)

		n := b.Publish(context.Background(), bus.TopicFillPositions, []byte("x"))
		assert.Equal(t, 1, n)

		msg := <-ch
		assert.Equal(t, bus.TopicFillPositions, msg.Topic)
		assert.Equal(t, []byte("x"), msg.Payload)
	})

	t.Run("publish without a subscriber is dropped", func(t *testing.T) {
		b := bus.New()
		assert.Equal(t, 0, b.Publish(context.Background(), bus.TopicPositionsFilled, nil))
	})

	t.Run("unsubscribed channel no longer receives", func(t *testing.T) {
		b := bus.New()
		ch := b.Subscribe(bus.TopicPositionsFilled)
		b.Unsubscribe(bus.TopicPositionsFilled, ch)

		assert.Equal(t, 0, b.Publish(context.Background(), bus.TopicPositionsFilled, nil))
		select {
		case <-ch:
			t.Fatal("received on an unsubscribed channel")
		default:
		}
	})

	t.Run("repeated subscribe and unsubscribe leaves no registrations", func(t *testing.T) {
		b := bus.New()
		for i := 0; i < 5; i++ {
			ch := b.Subscribe(bus.TopicPositionsFilled)
			b.Unsubscribe(bus.TopicPositionsFilled, ch)
		}
		assert.Equal(t, 0, b.Publish(context.Background(), bus.TopicPositionsFilled, nil))
	})

	t.Run("cancelled context publishes nothing", func(t *testing.T) {
		b := bus.New()
		ch := b.Subscribe(bus.TopicFillPositions)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.Equal(t, 0, b.Publish(ctx, bus.TopicFillPositions, nil))
		select {
		case <-ch:
			t.Fatal("received after cancelled publish")
		default:
		}
	})
}
