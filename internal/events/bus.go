package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Publisher publishes domain events.
type Publisher interface {
	PublishResultSubmitted(ctx context.Context, event ResultSubmittedEvent) error
	PublishTestComposed(ctx context.Context, event TestComposedEvent) error
}

// Bus is an in-process event bus backed by a Watermill Go channel pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates a bus. Messages published while nobody subscribes to their
// topic are dropped.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewSlogLogger(logger))
	return &Bus{pubsub: pubsub, logger: logger, now: time.Now}
}

// PublishResultSubmitted publishes a result.submitted event.
func (b *Bus) PublishResultSubmitted(ctx context.Context, event ResultSubmittedEvent) error {
	return b.publish(ctx, EventResultSubmitted, event)
}

// PublishTestComposed publishes a test.composed event.
func (b *Bus) PublishTestComposed(ctx context.Context, event TestComposedEvent) error {
	return b.publish(ctx, EventTestComposed, event)
}

func (b *Bus) publish(ctx context.Context, eventType EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: b.now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	msg := message.NewMessage(event.ID, eventBytes)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339))

	if err := b.pubsub.Publish(string(eventType), msg); err != nil {
		b.logger.Error("Failed to publish event", "event_id", event.ID, "event_type", eventType, "error", err)
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	b.logger.Debug("Published event", "event_id", event.ID, "event_type", eventType)
	return nil
}

// SubscribeResultSubmitted calls handle for every result.submitted event until
// ctx is cancelled or the bus is closed. Handler errors are logged; the event
// is not redelivered.
func (b *Bus) SubscribeResultSubmitted(ctx context.Context, name string, handle func(context.Context, ResultSubmittedEvent) error) error {
	return subscribe(ctx, b, EventResultSubmitted, name, handle)
}

// SubscribeTestComposed calls handle for every test.composed event.
func (b *Bus) SubscribeTestComposed(ctx context.Context, name string, handle func(context.Context, TestComposedEvent) error) error {
	return subscribe(ctx, b, EventTestComposed, name, handle)
}

func subscribe[T any](ctx context.Context, b *Bus, eventType EventType, name string, handle func(context.Context, T) error) error {
	msgs, err := b.pubsub.Subscribe(ctx, string(eventType))
	if err != nil {
		return fmt.Errorf("failed to subscribe %s to %s: %w", name, eventType, err)
	}
	go func() {
		for msg := range msgs {
			b.dispatch(ctx, name, msg, func(ctx context.Context, data json.RawMessage) error {
				var payload T
				if err := json.Unmarshal(data, &payload); err != nil {
					return fmt.Errorf("decode payload: %w", err)
				}
				return handle(ctx, payload)
			})
		}
		b.logger.Debug("Subscriber stopped", "subscriber", name, "event_type", eventType)
	}()
	return nil
}

func (b *Bus) dispatch(ctx context.Context, name string, msg *message.Message, handle func(context.Context, json.RawMessage) error) {
	defer msg.Ack()

	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		b.logger.Error("Dropping malformed event", "subscriber", name, "message_uuid", msg.UUID, "error", err)
		return
	}
	if err := handle(ctx, event.Data); err != nil {
		b.logger.Warn("Event handler failed", "subscriber", name, "event_id", event.ID,
			"event_type", event.Type, "error", err)
	}
}

// Close closes the pub/sub; active subscriptions end.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
