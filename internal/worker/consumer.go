package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type handlerFunc func(ctx context.Context, d amqp.Delivery)

// consumer runs a fixed number of goroutines over one queue's deliveries.
// Handlers own acknowledgement.
type consumer struct {
	conn        *amqp.Connection
	queueName   string
	concurrency int
	handle      handlerFunc
	logger      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *consumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	ch, err := c.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var loops sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		loops.Add(1)
		go func() {
			defer loops.Done()
			c.loop(workerCtx, deliveries)
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		loops.Wait()
		_ = ch.Close()
	}()

	c.logger.Info("worker started", "queue", c.queueName, "concurrency", c.concurrency)
	return nil
}

func (c *consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("worker delivery channel closed", "queue", c.queueName)
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
