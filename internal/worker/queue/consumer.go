// Package queue turns AMQP deliveries into messages the worker can ack.
package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Message struct {
	RoutingKey string
	Body       []byte
	Timestamp  time.Time
	Ack        func(multiple bool) error
	Nack       func(multiple bool, requeue bool) error
}

type Consumer interface {
	Consume(ctx context.Context) (<-chan Message, error)
	QueueLength() (int, error)
	Close() error
}

type rabbitMQConsumer struct {
	channel     *amqp.Channel
	queue       string
	consumerTag string
	prefetch    int
	logger      zerolog.Logger
}

func NewRabbitMQConsumer(channel *amqp.Channel, queue, consumerTag string, prefetch int, logger zerolog.Logger) Consumer {
	if prefetch < 1 {
		prefetch = 1
	}
	return &rabbitMQConsumer{
		channel:     channel,
		queue:       queue,
		consumerTag: consumerTag,
		prefetch:    prefetch,
		logger:      logger,
	}
}

func (c *rabbitMQConsumer) Consume(ctx context.Context) (<-chan Message, error) {
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return nil, err
	}

	deliveries, err := c.channel.Consume(
		c.queue,
		c.consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, err
	}

	output := make(chan Message)

	go func() {
		defer close(output)

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("Stopping RabbitMQ consumer")
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn().Msg("RabbitMQ delivery channel closed")
					return
				}

				msg := Message{
					RoutingKey: d.RoutingKey,
					Body:       d.Body,
					Timestamp:  d.Timestamp,
					Ack:        d.Ack,
					Nack:       d.Nack,
				}

				select {
				case output <- msg:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	c.logger.Info().
		Str("queue", c.queue).
		Str("consumer_tag", c.consumerTag).
		Msg("RabbitMQ consumer started")

	return output, nil
}

func (c *rabbitMQConsumer) QueueLength() (int, error) {
	q, err := c.channel.QueueDeclarePassive(c.queue, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return q.Messages, nil
}

func (c *rabbitMQConsumer) Close() error {
	if err := c.channel.Cancel(c.consumerTag, false); err != nil {
		c.logger.Error().Err(err).Msg("Failed to cancel RabbitMQ consumer")
	}
	c.logger.Info().Msg("RabbitMQ consumer closed")
	return c.channel.Close()
}
