// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scriptorium/internal/metrics"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Config holds configuration for the event bus.
type Config struct {
	// BufferSize is the output channel buffer of each subscription.
	BufferSize int64 `koanf:"buffer_size"`

	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// Retry configuration
	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	RetryMultiplier      float64       `koanf:"retry_multiplier"`
}

// DefaultConfig returns production defaults for the bus.
func DefaultConfig() Config {
	return Config{
		BufferSize:           256,
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer_size must be non-negative, got %d", c.BufferSize)
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("close_timeout must be positive, got %s", c.CloseTimeout)
	}
	if c.RetryMaxRetries < 0 {
		return fmt.Errorf("retry_max_retries must be non-negative, got %d", c.RetryMaxRetries)
	}
	if c.RetryInitialInterval <= 0 || c.RetryMaxInterval < c.RetryInitialInterval {
		return fmt.Errorf("retry intervals must satisfy 0 < initial <= max, got %s and %s",
			c.RetryInitialInterval, c.RetryMaxInterval)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be >= 1, got %f", c.RetryMultiplier)
	}
	return nil
}

// Bus is the in-process event bus. Publishing is fire-and-forget; handlers
// run on the router with panic recovery and exponential backoff retry.
// Events that still fail after the last retry are logged and dropped.
//
// Handlers must be registered before Run.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus and its router.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBus(cfg Config, logger zerolog.Logger) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid events config: %w", err)
	}
	logger = logger.With().Str("component", "events").Logger()
	wmLogger := newLoggerAdapter(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	b := &Bus{pubsub: pubsub, router: router, logger: logger}

	// Middleware in order (outer to inner):
	// 1. Drop - ack events that exhausted their retries
	// 2. Recoverer - convert panics to errors
	// 3. Retry - exponential backoff for transient failures
	router.AddMiddleware(b.dropExhausted)
	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          wmLogger,
	}
	router.AddMiddleware(retry.Middleware)

	return b, nil
}

// dropExhausted acknowledges a message whose handler failed for good. The
// in-process pub/sub would otherwise redeliver it forever.
func (b *Bus) dropExhausted(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil {
			b.logger.Error().
				Err(err).
				Str("message_id", msg.UUID).
				Str("topic", msg.Metadata.Get("topic")).
				Msg("event dropped after retries")
			return nil, nil
		}
		return out, nil
	}
}

// publish encodes event and sends it on topic.
func (b *Bus) publish(topic string, event validatable) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	data, err := encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.RecordEventPublished(topic)
	return nil
}

// GraphChanged publishes a graph.changed event. It lets the bus serve as
// the graph builder's change notifier.
func (b *Bus) GraphChanged(_ context.Context, ids []string) error {
	return b.publish(TopicGraphChanged, &GraphChanged{IDs: ids, OccurredAt: time.Now().UTC()})
}

// ResourceRemoved publishes a resource.removed event.
func (b *Bus) ResourceRemoved(_ context.Context, id string) error {
	return b.publish(TopicResourceRemoved, &ResourceRemoved{ID: id, OccurredAt: time.Now().UTC()})
}

// InteractionTracked publishes an interaction.tracked event.
func (b *Bus) InteractionTracked(_ context.Context, e InteractionTracked) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return b.publish(TopicInteraction, &e)
}

// subscribe registers a consumer handler decoding events of type T.
func subscribe[T any, PT interface {
	*T
	validatable
}](b *Bus, name, topic string, fn func(context.Context, *T) error) {
	b.router.AddConsumerHandler(name, topic, b.pubsub, func(msg *message.Message) error {
		event := PT(new(T))
		if err := decode(msg.Payload, event); err != nil {
			// Malformed events are never retried.
			b.logger.Warn().Err(err).Str("handler", name).Str("message_id", msg.UUID).Msg("discarding malformed event")
			metrics.RecordEventConsumed(topic, err)
			return nil
		}
		err := fn(msg.Context(), (*T)(event))
		metrics.RecordEventConsumed(topic, err)
		return err
	})
}

// OnGraphChanged registers a graph.changed handler.
func (b *Bus) OnGraphChanged(name string, fn func(context.Context, *GraphChanged) error) {
	subscribe[GraphChanged](b, name, TopicGraphChanged, fn)
}

// OnResourceRemoved registers a resource.removed handler.
func (b *Bus) OnResourceRemoved(name string, fn func(context.Context, *ResourceRemoved) error) {
	subscribe[ResourceRemoved](b, name, TopicResourceRemoved, fn)
}

// OnInteractionTracked registers an interaction.tracked handler.
func (b *Bus) OnInteractionTracked(name string, fn func(context.Context, *InteractionTracked) error) {
	subscribe[InteractionTracked](b, name, TopicInteraction, fn)
}

// Run starts the router and blocks until ctx is canceled or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running returns a channel that closes once the router is running.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close stops the router, waiting up to CloseTimeout for in-flight
// handlers, and closes the pub/sub.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return errors.Join(b.router.Close(), b.pubsub.Close())
}
