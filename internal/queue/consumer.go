package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/amtcalc/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

// ConsumerChannel is the part of *amqp091.Channel a Consumer needs.
type ConsumerChannel interface {
	Publisher
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

// Consumer feeds every queue it handles through one channel with a
// prefetch of one, so a worker processes a single message at a time across
// all queues.
type Consumer struct {
	ch       ConsumerChannel
	handlers map[string]Handler
}

func NewConsumer(ch ConsumerChannel, handlers map[string]Handler) *Consumer {
	return &Consumer{ch: ch, handlers: handlers}
}

type delivery struct {
	msg   amqp091.Delivery
	queue string
}

// Run consumes until ctx is done or every delivery channel is closed.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(1, 0, true); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries := make(chan delivery)
	var wg sync.WaitGroup
	for name := range c.handlers {
		msgs, err := c.ch.Consume(name, name+"_consumer", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", name, err)
		}
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("[Queue] Delivery channel closed", "queue", name)
						return
					}
					select {
					case deliveries <- delivery{msg: msg, queue: name}:
					case <-ctx.Done():
						return
					}
				}
			}
		})
	}
	go func() {
		wg.Wait()
		close(deliveries)
	}()

	logger.Info("[Queue] Listening for messages", "queues", len(c.handlers))
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("all delivery channels closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle runs the queue's handler and settles the message: ack on success,
// dead-letter for rejected input, retry queue otherwise.
func (c *Consumer) handle(ctx context.Context, d delivery) {
	start := time.Now()
	log := logger.With("queue", d.queue)

	var err error
	if h, ok := c.handlers[d.queue]; ok {
		err = h(ctx, d.msg.Body)
	} else {
		err = fmt.Errorf("no handler for queue %s", d.queue)
	}

	switch {
	case err == nil:
		if err := d.msg.Ack(false); err != nil {
			log.Error("[Queue] Failed to ack message", "err", err)
		}
		log.Info("[Queue] Message processed", "duration", time.Since(start).Round(time.Millisecond))
	case Retryable(err):
		log.Error("[Queue] Failed to process message", "err", err)
		HandleProcessingError(c.ch, d.msg, d.queue)
	default:
		log.Error("[Queue] Rejected message", "err", err)
		DeadLetter(c.ch, d.msg, d.queue)
	}
}
