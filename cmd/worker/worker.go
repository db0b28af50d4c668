package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/monitoring"
	"example.com/socialfeed/internal/store"
	"github.com/google/uuid"
)

var logg = logger.New()

// fanoutLimit bounds concurrent activity writes for one event.
const fanoutLimit = 20

var errUnknownEvent = errors.New("unknown event type")

// Worker consumes domain events from Kafka and writes activity entries.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing. It returns after ctx
// is cancelled and every processor has drained.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
			logg.Error("worker", "Kafka read error, backing off", err)
			if !waitWithContext(ctx, backoff) {
				return
			}
			retry++
			continue
		}
		retry = 0

		if len(msg.Value) == 0 {
			if !waitWithContext(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}

		w.enqueue(ctx, jobs, msg.Value)
	}
}

// enqueue blocks until the job is queued or ctx ends, logging while the
// queue stays full.
func (w *Worker) enqueue(ctx context.Context, jobs chan<- []byte, data []byte) {
	for {
		select {
		case jobs <- data:
			return
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
			logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
		}
	}
}

func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.handle(ctx, data); err != nil {
				logg.Error("worker", "Failed to process event", err)
			}
		}
	}
}

// handle decodes one message and applies it.
func (w *Worker) handle(ctx context.Context, data []byte) error {
	event, err := appkafka.DecodeEvent(data)
	if err != nil {
		monitoring.EventsProcessed.WithLabelValues("invalid", "error").Inc()
		return err
	}

	switch event.Type {
	case models.EventPostCreated:
		err = w.fanOutPost(ctx, event)
	case models.EventUserFollowed:
		err = w.recordFollow(ctx, event)
	default:
		err = fmt.Errorf("%w: %s", errUnknownEvent, event.Type)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	monitoring.EventsProcessed.WithLabelValues(string(event.Type), result).Inc()
	return err
}

// fanOutPost adds a post activity to every follower of the author.
func (w *Worker) fanOutPost(ctx context.Context, event models.Event) error {
	followers, err := w.store.GetFollowers(ctx, event.Actor)
	if err != nil {
		return fmt.Errorf("get followers of %s: %w", event.Actor, err)
	}

	var (
		fanoutWG sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	semaphore := make(chan struct{}, fanoutLimit)

	for _, follower := range followers {
		if ctx.Err() != nil {
			break
		}
		fanoutWG.Add(1)
		semaphore <- struct{}{}

		go func(u string) {
			defer fanoutWG.Done()
			defer func() { <-semaphore }()
			if err := w.store.AddActivity(ctx, newActivity(u, models.ActivityPost, event)); err != nil {
				errOnce.Do(func() { firstErr = fmt.Errorf("add post activity: %w", err) })
			}
		}(follower)
	}

	fanoutWG.Wait()
	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logg.Debug("worker", "Post delivered to "+fmt.Sprint(len(followers))+" followers")
	return nil
}

func (w *Worker) recordFollow(ctx context.Context, event models.Event) error {
	if event.Target == "" {
		return fmt.Errorf("user_followed event without target")
	}
	if err := w.store.AddActivity(ctx, newActivity(event.Target, models.ActivityFollow, event)); err != nil {
		return fmt.Errorf("add follow activity: %w", err)
	}
	return nil
}

func newActivity(recipient string, kind models.ActivityKind, event models.Event) models.Activity {
	return models.Activity{
		ID:        uuid.NewString(),
		Username:  recipient,
		Kind:      kind,
		Actor:     event.Actor,
		PostID:    event.PostID,
		CreatedAt: event.Created,
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the store.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing store")
	w.store.Close()
	return nil
}
