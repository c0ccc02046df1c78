package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/RubachokBoss/thesis-service/internal/worker/queue"
	"github.com/rs/zerolog"
)

type fakeConsumer struct {
	ch     chan queue.Message
	closed atomic.Bool
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{ch: make(chan queue.Message, 16)}
}

func (c *fakeConsumer) Consume(ctx context.Context) (<-chan queue.Message, error) {
	return c.ch, nil
}

func (c *fakeConsumer) QueueLength() (int, error) { return len(c.ch), nil }

func (c *fakeConsumer) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.ch)
	}
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, msg *models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, *msg)
	return nil
}

type fakeConverter struct {
	mu       sync.Mutex
	requests []models.ConversionRequest
}

func (c *fakeConverter) Submit(ctx context.Context, req *models.ConversionRequest) (*integration.ConversionJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, *req)
	return &integration.ConversionJob{JobID: "job-1", Status: "queued"}, nil
}

// ackRecorder builds a message whose ack and nack outcomes can be inspected.
type ackRecorder struct {
	acked   atomic.Bool
	requeue atomic.Bool
	nacked  atomic.Bool
}

func (r *ackRecorder) message(body []byte) queue.Message {
	return queue.Message{
		Body:      body,
		Timestamp: time.Now(),
		Ack: func(bool) error {
			r.acked.Store(true)
			return nil
		},
		Nack: func(_ bool, requeue bool) error {
			r.nacked.Store(true)
			r.requeue.Store(requeue)
			return nil
		},
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func statusEvent() *models.StatusChangedEvent {
	old := "ongoing"
	return &models.StatusChangedEvent{
		Type:      models.EventTypeThesisStatusChanged,
		OwnerType: models.OwnerTypeThesis,
		OwnerID:   "thesis-1",
		StudentID: "student-1",
		OldStatus: &old,
		NewStatus: "conclusion_requested",
	}
}

func TestProcessStatusChangedSendsNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	w := NewEventWorker(NewWorkerPool(1, zerolog.Nop()), newFakeConsumer(), notifier, &fakeConverter{}, zerolog.Nop())

	rec := &ackRecorder{}
	if err := w.ProcessMessage(context.Background(), rec.message(mustJSON(t, statusEvent()))); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.RecipientID != "student-1" || n.Template != "thesis.conclusion_requested" || n.Params["old_status"] != "ongoing" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestProcessDocumentUploaded(t *testing.T) {
	tests := []struct {
		kind        models.DocumentKind
		conversions int
	}{
		{models.DocumentKindThesis, 1},
		{models.DocumentKindFinalThesis, 1},
		{models.DocumentKindSummary, 0},
		{models.DocumentKindAdditionalZip, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			converter := &fakeConverter{}
			w := NewEventWorker(NewWorkerPool(1, zerolog.Nop()), newFakeConsumer(), &fakeNotifier{}, converter, zerolog.Nop())

			event := &models.DocumentUploadedEvent{
				Type:      models.EventTypeThesisDocumentUploaded,
				ThesisID:  "thesis-1",
				Kind:      tt.kind,
				ObjectKey: "theses/thesis-1/" + string(tt.kind) + "/x.pdf",
			}
			rec := &ackRecorder{}
			if err := w.ProcessMessage(context.Background(), rec.message(mustJSON(t, event))); err != nil {
				t.Fatalf("ProcessMessage: %v", err)
			}
			if len(converter.requests) != tt.conversions {
				t.Fatalf("conversions = %d, want %d", len(converter.requests), tt.conversions)
			}
			if tt.conversions == 1 && converter.requests[0].Target != integration.TargetPDFA {
				t.Fatalf("target = %s", converter.requests[0].Target)
			}
		})
	}
}

func TestProcessMessagePermanentErrors(t *testing.T) {
	w := NewEventWorker(NewWorkerPool(1, zerolog.Nop()), newFakeConsumer(), &fakeNotifier{}, &fakeConverter{}, zerolog.Nop())

	bodies := map[string][]byte{
		"malformed":     []byte("{not json"),
		"missing owner": mustJSON(t, &models.StatusChangedEvent{Type: models.EventTypeApplicationStatusChanged, StudentID: "s"}),
		"missing key":   mustJSON(t, &models.DocumentUploadedEvent{Type: models.EventTypeThesisDocumentUploaded, Kind: models.DocumentKindThesis}),
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			err := w.ProcessMessage(context.Background(), (&ackRecorder{}).message(body))
			if !isPermanentError(err) {
				t.Fatalf("error = %v, want permanent", err)
			}
		})
	}

	if err := w.ProcessMessage(context.Background(), (&ackRecorder{}).message([]byte(`{"type":"report.created"}`))); err != nil {
		t.Fatalf("unknown type: %v", err)
	}
}

func TestRejectedNotificationIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown template", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	notifier := integration.NewNotificationClient(config.ServiceConfig{
		URL:        srv.URL,
		Endpoint:   "/notifications",
		Timeout:    time.Second,
		RetryCount: 1,
		RetryDelay: time.Millisecond,
	}, zerolog.Nop())
	w := NewEventWorker(NewWorkerPool(1, zerolog.Nop()), newFakeConsumer(), notifier, &fakeConverter{}, zerolog.Nop())

	err := w.ProcessMessage(context.Background(), (&ackRecorder{}).message(mustJSON(t, statusEvent())))
	if !isPermanentError(err) {
		t.Fatalf("error = %v, want permanent", err)
	}
}

func TestEventWorkerAcksAndRequeues(t *testing.T) {
	consumer := newFakeConsumer()
	notifier := &fakeNotifier{}
	w := NewEventWorker(NewWorkerPool(2, zerolog.Nop()), consumer, notifier, &fakeConverter{}, zerolog.Nop())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ok := &ackRecorder{}
	bad := &ackRecorder{}
	consumer.ch <- ok.message(mustJSON(t, statusEvent()))
	consumer.ch <- bad.message([]byte("garbage"))

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if !ok.acked.Load() || ok.nacked.Load() {
		t.Error("valid message was not acked")
	}
	if !bad.acked.Load() {
		t.Error("malformed message was not dropped")
	}

	stats := w.Stats()
	if stats.Processed != 1 || stats.Failed != 1 || stats.Notifications != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestEventWorkerRequeuesTransientFailures(t *testing.T) {
	consumer := newFakeConsumer()
	notifier := &fakeNotifier{err: errors.New("connection refused")}
	w := NewEventWorker(NewWorkerPool(1, zerolog.Nop()), consumer, notifier, &fakeConverter{}, zerolog.Nop())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rec := &ackRecorder{}
	consumer.ch <- rec.message(mustJSON(t, statusEvent()))

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if rec.acked.Load() || !rec.nacked.Load() || !rec.requeue.Load() {
		t.Fatalf("acked=%v nacked=%v requeue=%v", rec.acked.Load(), rec.nacked.Load(), rec.requeue.Load())
	}
}

func TestWorkerPoolSurvivesPanics(t *testing.T) {
	pool := NewWorkerPool(1, zerolog.Nop())
	pool.Start()

	var ran atomic.Int32
	pool.Submit(context.Background(), func() { panic("boom") })
	pool.Submit(context.Background(), func() { ran.Add(1) })
	pool.Stop()

	if ran.Load() != 1 {
		t.Fatalf("task after panic ran %d times", ran.Load())
	}
	if pool.ActiveWorkers() != 0 {
		t.Fatalf("active workers = %d after stop", pool.ActiveWorkers())
	}
}
