package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyProcess = "geotag.process"
	routingKeyStatus  = "geotag.status"
)

func persistentJSON(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}
}

// StatusPublisher emits job progress messages on the status routing key.
// Consumers downstream (notification service, UI backend) bind their own
// queues to it.
type StatusPublisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewStatusPublisher(conn *amqp.Connection, exchange string) (*StatusPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open status channel: %w", err)
	}
	return &StatusPublisher{channel: ch, exchange: exchange}, nil
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.channel.PublishWithContext(ctx, sp.exchange, routingKeyStatus, false, false, persistentJSON(msg))
}

// DLQPublisher parks permanently failed jobs on the dead letter queue,
// publishing straight to the queue through the default exchange. The
// failure reason travels in a header so the original body stays intact
// for later inspection or replay.
type DLQPublisher struct {
	channel *amqp.Channel
	queue   string
}

func NewDLQPublisher(conn *amqp.Connection, dlqQueue string) (*DLQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open dlq channel: %w", err)
	}
	return &DLQPublisher{channel: ch, queue: dlqQueue}, nil
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	pub := persistentJSON(msg)
	pub.Headers = amqp.Table{"x-dlq-reason": reason}
	return dp.channel.PublishWithContext(ctx, "", dp.queue, false, false, pub)
}
