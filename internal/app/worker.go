package app

import (
	"context"
	"fmt"

	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/RubachokBoss/thesis-service/internal/worker"
	"github.com/RubachokBoss/thesis-service/internal/worker/queue"
	"github.com/RubachokBoss/thesis-service/pkg/logger"
	"github.com/RubachokBoss/thesis-service/pkg/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Worker consumes lifecycle events and drives notifications and PDF/A
// conversion. It runs as its own process next to the HTTP service.
type Worker struct {
	logger      zerolog.Logger
	conn        *amqp.Connection
	eventWorker *worker.EventWorker
}

func NewWorker(cfg *config.Config, log zerolog.Logger) (*Worker, error) {
	if !cfg.RabbitMQ.Enabled {
		return nil, fmt.Errorf("worker requires rabbitmq.enabled")
	}

	conn, err := rabbitmq.NewConnection(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	channel, err := rabbitmq.NewChannel(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := rabbitmq.DeclareTopology(channel, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName, integration.EventRoutingKeys...); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	consumer := queue.NewRabbitMQConsumer(
		channel,
		cfg.RabbitMQ.QueueName,
		cfg.Worker.ConsumerTag,
		cfg.Worker.MaxWorkers,
		logger.Component(log, "consumer"),
	)

	pool := worker.NewWorkerPool(cfg.Worker.MaxWorkers, log)
	eventWorker := worker.NewEventWorker(
		pool,
		consumer,
		integration.NewNotificationClient(cfg.Services.Notification, logger.Component(log, "notifications")),
		integration.NewConversionClient(cfg.Services.Conversion, logger.Component(log, "conversions")),
		logger.Component(log, "event-worker"),
	)

	return &Worker{
		logger:      log,
		conn:        conn,
		eventWorker: eventWorker,
	}, nil
}

func (w *Worker) Run(ctx context.Context) error {
	return w.eventWorker.Start(ctx)
}

// Shutdown stops consuming (the consumer owns the channel) and closes the
// connection.
func (w *Worker) Shutdown() {
	if err := w.eventWorker.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop event worker")
	}
	if err := w.conn.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
	}
}
