package alert

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Publisher is the part of *amqp.Channel the AMQP channel uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPChannel publishes crossings to a topic exchange.
type AMQPChannel struct {
	pub        Publisher
	exchange   string
	routingKey string
}

func NewAMQPChannel(pub Publisher, exchange, routingKey string) *AMQPChannel {
	return &AMQPChannel{pub: pub, exchange: exchange, routingKey: routingKey}
}

// DialAMQP connects and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("amqp: declare exchange %q: %w", exchange, err)
	}
	return conn, ch, nil
}

func (c *AMQPChannel) Name() string { return config.ChannelAMQP }

func (c *AMQPChannel) Deliver(ctx context.Context, event domain.CrossingEvent) error {
	body, err := encode(event)
	if err != nil {
		return err
	}
	err = c.pub.PublishWithContext(ctx, c.exchange, c.routingKey+"."+string(event.Severity), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}
