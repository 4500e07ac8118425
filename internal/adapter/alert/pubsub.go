package alert

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// PubSubChannel publishes crossings as JSON to a Google Cloud Pub/Sub topic.
type PubSubChannel struct {
	topic *pubsub.Topic
}

func NewPubSubChannel(topic *pubsub.Topic) *PubSubChannel {
	return &PubSubChannel{topic: topic}
}

// EnsureTopic returns the named topic, creating it when absent.
func EnsureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	t := client.Topic(name)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub: check topic %q: %w", name, err)
	}
	if ok {
		return t, nil
	}
	t, err = client.CreateTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("pubsub: create topic %q: %w", name, err)
	}
	return t, nil
}

func (c *PubSubChannel) Name() string { return config.ChannelPubSub }

func (c *PubSubChannel) Deliver(ctx context.Context, event domain.CrossingEvent) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	result := c.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id": event.ID(),
			"item_sku": event.ItemSKU,
			"severity": string(event.Severity),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub: publish: %w", err)
	}
	return nil
}

// Stop flushes pending publishes.
func (c *PubSubChannel) Stop() {
	c.topic.Stop()
}
