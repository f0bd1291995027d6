package fleet

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/events"
)

// Handler processes one raw fleet event payload. Handlers must be no-op-safe:
// delivery is at-most-once per connected subscriber and every node receives
// every event.
type Handler func(ctx context.Context, payload []byte)

// Bus is the Redis pub/sub fleet coordination channel. Each node publishes
// state changes and runs a dedicated subscriber loop dispatching to the
// handlers registered before Listen.
type Bus struct {
	client *redis.Client
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[events.Channel][]Handler
}

// NewBus wraps a Redis client for fleet coordination.
func NewBus(client *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{
		client:   client,
		logger:   logger,
		handlers: make(map[events.Channel][]Handler),
	}
}

// Publish marshals the payload and fires it at the channel. Fire-and-forget:
// there is no delivery guarantee beyond pub/sub semantics.
func (b *Bus) Publish(ctx context.Context, channel events.Channel, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, string(channel), data).Err()
}

// Subscribe registers a handler for a channel. Must be called before Listen.
func (b *Bus) Subscribe(channel events.Channel, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
}

// Listen runs the subscriber loop until the context is cancelled. Each
// message is dispatched to its handlers in a separate goroutine so a slow
// teardown cannot stall the loop.
func (b *Bus) Listen(ctx context.Context) error {
	b.mu.RLock()
	channels := make([]string, 0, len(b.handlers))
	for channel := range b.handlers {
		channels = append(channels, string(channel))
	}
	b.mu.RUnlock()

	if len(channels) == 0 {
		b.logger.Warn("fleet bus listen called with no subscriptions")
		return nil
	}

	sub := b.client.Subscribe(ctx, channels...)
	defer sub.Close()

	b.logger.Info("fleet bus subscribed", zap.Strings("channels", channels))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.dispatch(ctx, events.Channel(msg.Channel), []byte(msg.Payload))
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, channel events.Channel, payload []byte) {
	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[channel]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(ctx, payload)
	}
}
