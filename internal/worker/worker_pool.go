package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Task func()

// WorkerPool runs tasks on a fixed number of goroutines. A panicking task
// is logged and does not take its worker down.
type WorkerPool struct {
	tasks         chan Task
	wg            sync.WaitGroup
	activeWorkers int
	maxWorkers    int
	submitTimeout time.Duration
	logger        zerolog.Logger
	mu            sync.RWMutex
	stopOnce      sync.Once
}

func NewWorkerPool(maxWorkers int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		tasks:         make(chan Task, maxWorkers*10),
		maxWorkers:    maxWorkers,
		submitTimeout: time.Second,
		logger:        logger,
	}
}

func (wp *WorkerPool) Start() {
	wp.logger.Info().Int("max_workers", wp.maxWorkers).Msg("Starting worker pool")

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued tasks to finish. Submit must not be called after Stop.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.logger.Info().Msg("Stopping worker pool")
		close(wp.tasks)
		wp.wg.Wait()
		wp.logger.Info().Msg("Worker pool stopped")
	})
}

// Submit queues task and reports whether it was accepted. When the queue is
// full it waits up to the submit timeout or until ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, task Task) bool {
	select {
	case wp.tasks <- task:
		return true
	default:
	}

	wp.logger.Warn().Msg("Worker pool task queue is full")

	timer := time.NewTimer(wp.submitTimeout)
	defer timer.Stop()

	select {
	case wp.tasks <- task:
		return true
	case <-timer.C:
		wp.logger.Error().Msg("Failed to submit task to worker pool (timeout)")
		return false
	case <-ctx.Done():
		return false
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range wp.tasks {
		wp.run(id, task)
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

func (wp *WorkerPool) run(id int, task Task) {
	wp.mu.Lock()
	wp.activeWorkers++
	wp.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Int("worker_id", id).
				Interface("panic", r).
				Msg("Worker recovered from panic")
		}

		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	task()
}

// ActiveWorkers is the number of workers currently running a task.
func (wp *WorkerPool) ActiveWorkers() int {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.activeWorkers
}

func (wp *WorkerPool) QueueLength() int {
	return len(wp.tasks)
}
