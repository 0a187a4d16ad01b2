package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxNackDelay = 60 * time.Second

type MessageHandler func(ctx context.Context, body []byte) error

// Consumer feeds geotag requests from the process queue into a pool of
// workers. A handler error nacks the delivery back onto the queue after
// an exponential delay; permanently failed jobs are routed to the DLQ by
// the use case itself, so everything the consumer requeues is retryable.
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queue     string
	workers   int
	baseDelay time.Duration
	handler   MessageHandler
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:      conn,
		channel:   ch,
		queue:     cfg.Queue,
		workers:   cfg.WorkerCount,
		baseDelay: time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:   handler,
		logger:    logger,
	}, nil
}

// declareTopology sets up the exchange, the three durable queues and the
// bindings that route geotag traffic. Declarations are idempotent, so the
// worker and any publisher can race on startup without coordination.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	bindings := []struct {
		queue string
		key   string
	}{
		{cfg.Queue, routingKeyProcess},
		{cfg.StatusQueue, routingKeyStatus},
		{cfg.DLQ, ""},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if b.key == "" {
			continue
		}
		if err := ch.QueueBind(b.queue, b.key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", b.queue, b.key, err)
		}
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consuming geotag requests",
		zap.String("queue", c.queue),
		zap.Int("workers", c.workers),
	)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func(n int) {
			defer c.wg.Done()
			c.consumeLoop(ctx, deliveries, c.logger.With(zap.Int("worker", n)))
		}(i)
	}

	<-ctx.Done()
	c.logger.Info("shutting down, draining in-flight jobs")
	c.wg.Wait()
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			c.handle(ctx, d, log)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	if err := c.handler(ctx, d.Body); err != nil {
		attempt := deliveryAttempt(d)
		delay := c.nackDelay(attempt)
		log.Warn("geotag job failed, requeueing",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		// Delaying before the nack keeps a poisoned message from
		// spinning through the prefetch window at full speed.
		select {
		case <-time.After(delay):
			_ = d.Nack(false, true)
		case <-ctx.Done():
			_ = d.Nack(false, false)
		}
		return
	}

	_ = d.Ack(false)
}

// deliveryAttempt counts how many times this message has already been
// rejected, using the broker's x-death bookkeeping. A fresh message is
// attempt 1.
func deliveryAttempt(d amqp.Delivery) int {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return 1
	}
	if death, ok := deaths[0].(amqp.Table); ok {
		if count, ok := death["count"].(int64); ok {
			return int(count) + 1
		}
	}
	return len(deaths) + 1
}

func (c *Consumer) nackDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt && delay < maxNackDelay; i++ {
		delay *= 2
	}
	if delay > maxNackDelay {
		delay = maxNackDelay
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
