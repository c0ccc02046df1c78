package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/RubachokBoss/thesis-service/internal/worker/queue"
	"github.com/rs/zerolog"
)

type Stats struct {
	Processed     int `json:"processed"`
	Failed        int `json:"failed"`
	Notifications int `json:"notifications"`
	Conversions   int `json:"conversions"`
	ActiveWorkers int `json:"active_workers"`
	QueueLength   int `json:"queue_length"`
}

// EventWorker consumes lifecycle events and performs their side effects:
// notifying the student and requesting PDF/A conversion of thesis files.
type EventWorker struct {
	pool          *WorkerPool
	consumer      queue.Consumer
	notifications integration.NotificationClient
	conversions   integration.ConversionClient
	logger        zerolog.Logger

	statsMu sync.Mutex
	stats   Stats
	done    chan struct{}
}

func NewEventWorker(
	pool *WorkerPool,
	consumer queue.Consumer,
	notifications integration.NotificationClient,
	conversions integration.ConversionClient,
	logger zerolog.Logger,
) *EventWorker {
	return &EventWorker{
		pool:          pool,
		consumer:      consumer,
		notifications: notifications,
		conversions:   conversions,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting event worker")

	msgs, err := w.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	w.pool.Start()
	go w.dispatch(ctx, msgs)

	return nil
}

// Stop waits for in-flight messages after the consumer channel has closed.
func (w *EventWorker) Stop() error {
	w.logger.Info().Msg("Stopping event worker")

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		w.logger.Warn().Msg("Message dispatch did not stop in time")
	}
	w.pool.Stop()

	stats := w.Stats()
	w.logger.Info().
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Msg("Event worker stopped")

	return nil
}

func (w *EventWorker) dispatch(ctx context.Context, msgs <-chan queue.Message) {
	defer close(w.done)

	for msg := range msgs {
		msg := msg
		accepted := w.pool.Submit(ctx, func() { w.handle(ctx, msg) })
		if !accepted {
			if err := msg.Nack(false, true); err != nil {
				w.logger.Error().Err(err).Msg("Failed to nack message")
			}
		}
	}
}

func (w *EventWorker) handle(ctx context.Context, msg queue.Message) {
	err := w.ProcessMessage(ctx, msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		w.count(func(s *Stats) { s.Processed++ })
		return
	}

	w.count(func(s *Stats) { s.Failed++ })
	w.logger.Error().
		Err(err).
		Str("routing_key", msg.RoutingKey).
		Bool("permanent", isPermanentError(err)).
		Msg("Failed to process message")

	if isPermanentError(err) {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	if nackErr := msg.Nack(false, true); nackErr != nil {
		w.logger.Error().Err(nackErr).Msg("Failed to nack message")
	}
}

// ProcessMessage decodes one event and runs its side effect. Malformed
// events and requests refused by a collaborator are permanent errors.
func (w *EventWorker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		return permanent(fmt.Errorf("failed to unmarshal event: %w", err))
	}

	eventType := envelope.Type
	if eventType == "" {
		eventType = msg.RoutingKey
	}

	var err error
	switch eventType {
	case models.EventTypeApplicationStatusChanged, models.EventTypeThesisStatusChanged:
		var event models.StatusChangedEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return permanent(fmt.Errorf("failed to unmarshal status event: %w", err))
		}
		err = w.handleStatusChanged(ctx, &event)
	case models.EventTypeThesisDocumentUploaded:
		var event models.DocumentUploadedEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return permanent(fmt.Errorf("failed to unmarshal document event: %w", err))
		}
		err = w.handleDocumentUploaded(ctx, &event)
	default:
		w.logger.Warn().Str("type", eventType).Msg("Unknown event type")
		return nil
	}

	if integration.IsRejected(err) {
		return permanent(err)
	}
	return err
}

func (w *EventWorker) handleStatusChanged(ctx context.Context, event *models.StatusChangedEvent) error {
	if strings.TrimSpace(event.OwnerID) == "" {
		return permanent(errors.New("empty owner_id"))
	}
	if strings.TrimSpace(event.StudentID) == "" {
		return permanent(errors.New("empty student_id"))
	}

	params := map[string]string{
		"owner_type": string(event.OwnerType),
		"owner_id":   event.OwnerID,
		"new_status": event.NewStatus,
	}
	if event.OldStatus != nil {
		params["old_status"] = *event.OldStatus
	}
	if event.Note != nil {
		params["note"] = *event.Note
	}

	n := &models.Notification{
		RecipientID: event.StudentID,
		Template:    NotificationTemplate(event.OwnerType, event.NewStatus),
		Params:      params,
	}
	if err := w.notifications.Send(ctx, n); err != nil {
		return err
	}

	w.count(func(s *Stats) { s.Notifications++ })
	return nil
}

func (w *EventWorker) handleDocumentUploaded(ctx context.Context, event *models.DocumentUploadedEvent) error {
	if strings.TrimSpace(event.ObjectKey) == "" {
		return permanent(errors.New("empty object_key"))
	}
	if !NeedsConversion(event.Kind) {
		return nil
	}

	job, err := w.conversions.Submit(ctx, &models.ConversionRequest{
		ThesisID:  event.ThesisID,
		ObjectKey: event.ObjectKey,
		Target:    integration.TargetPDFA,
	})
	if err != nil {
		return err
	}

	w.logger.Info().
		Str("thesis_id", event.ThesisID).
		Str("kind", string(event.Kind)).
		Str("job_id", job.JobID).
		Msg("Conversion requested")

	w.count(func(s *Stats) { s.Conversions++ })
	return nil
}

// NotificationTemplate names the template for an owner entering status,
// e.g. "thesis.conclusion_requested".
func NotificationTemplate(owner models.OwnerType, status string) string {
	return string(owner) + "." + status
}

// NeedsConversion reports whether an uploaded document is archived as PDF/A.
func NeedsConversion(kind models.DocumentKind) bool {
	return kind == models.DocumentKindThesis || kind == models.DocumentKindFinalThesis
}

func (w *EventWorker) count(fn func(s *Stats)) {
	w.statsMu.Lock()
	fn(&w.stats)
	w.statsMu.Unlock()
}

func (w *EventWorker) Stats() Stats {
	w.statsMu.Lock()
	stats := w.stats
	w.statsMu.Unlock()

	stats.ActiveWorkers = w.pool.ActiveWorkers()
	stats.QueueLength = w.pool.QueueLength()
	return stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
