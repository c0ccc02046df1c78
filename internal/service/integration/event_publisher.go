package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/pkg/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// EventPublisher announces committed lifecycle changes. Events use their
// type as routing key on a topic exchange.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event *models.StatusChangedEvent) error
	PublishDocumentUploaded(ctx context.Context, event *models.DocumentUploadedEvent) error
	Close() error
}

type rabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

// EventRoutingKeys are the keys the worker queue is bound to.
var EventRoutingKeys = []string{
	models.EventTypeApplicationStatusChanged,
	models.EventTypeThesisStatusChanged,
	models.EventTypeThesisDocumentUploaded,
}

func NewRabbitMQPublisher(url, exchange, queueName string, logger zerolog.Logger) (EventPublisher, error) {
	conn, err := rabbitmq.NewConnection(url)
	if err != nil {
		return nil, err
	}

	channel, err := rabbitmq.NewChannel(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := rabbitmq.DeclareTopology(channel, exchange, queueName, EventRoutingKeys...); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	logger.Info().
		Str("exchange", exchange).
		Str("queue", queueName).
		Msg("Connected to RabbitMQ")

	return &rabbitMQPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

func (p *rabbitMQPublisher) publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		publishCtx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         routingKey,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

func (p *rabbitMQPublisher) PublishStatusChanged(ctx context.Context, event *models.StatusChangedEvent) error {
	if err := p.publish(ctx, event.Type, event); err != nil {
		return err
	}

	p.logger.Info().
		Str("owner_type", string(event.OwnerType)).
		Str("owner_id", event.OwnerID).
		Str("new_status", event.NewStatus).
		Msg("Status changed event published")

	return nil
}

func (p *rabbitMQPublisher) PublishDocumentUploaded(ctx context.Context, event *models.DocumentUploadedEvent) error {
	if err := p.publish(ctx, event.Type, event); err != nil {
		return err
	}

	p.logger.Info().
		Str("thesis_id", event.ThesisID).
		Str("kind", string(event.Kind)).
		Msg("Document uploaded event published")

	return nil
}

func (p *rabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	return nil
}

type noopPublisher struct {
	logger zerolog.Logger
}

// NewNoopPublisher drops events; used when RabbitMQ is disabled.
func NewNoopPublisher(logger zerolog.Logger) EventPublisher {
	return &noopPublisher{logger: logger}
}

func (p *noopPublisher) PublishStatusChanged(_ context.Context, event *models.StatusChangedEvent) error {
	p.logger.Debug().Str("owner_id", event.OwnerID).Msg("Event publishing disabled, dropping status change")
	return nil
}

func (p *noopPublisher) PublishDocumentUploaded(_ context.Context, event *models.DocumentUploadedEvent) error {
	p.logger.Debug().Str("thesis_id", event.ThesisID).Msg("Event publishing disabled, dropping document upload")
	return nil
}

func (p *noopPublisher) Close() error { return nil }
