package service

import (
	"context"
	"errors"
	"hash/fnv"
	"lc_escrow/internal/domain"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrServiceClosed = errors.New("notification service closed")
	ErrQueueFull     = errors.New("notification queue full")
)

// Sink is one destination for committed protocol events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event domain.Event) error
}

type DeliveryRecorder interface {
	RecordDelivery(sink, outcome string, duration time.Duration)
}

// NotificationService fans committed events out to every sink from a pool of
// workers. Events sharing a partition key always go to the same worker, so a
// single LC's notifications reach each sink in sequence order.
type NotificationService struct {
	sinks        []Sink
	queues       []chan domain.Event
	workers      int
	deliveries   DeliveryRecorder
	timeout      time.Duration
	queueSize    int
	closeMu      sync.RWMutex
	closed       bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

const (
	defaultQueueSize       = 1000
	defaultDeliveryTimeout = 5 * time.Second
)

type Option func(*NotificationService)

// WithDeliveryTimeout bounds every single Deliver call.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *NotificationService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithQueueSize sets the capacity of each worker's queue.
func WithQueueSize(n int) Option {
	return func(s *NotificationService) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

func NewNotificationService(sinks []Sink, workers int, deliveries DeliveryRecorder, logger *slog.Logger, opts ...Option) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	service := &NotificationService{
		sinks:        sinks,
		queues:       make([]chan domain.Event, workers),
		workers:      workers,
		deliveries:   deliveries,
		timeout:      defaultDeliveryTimeout,
		queueSize:    defaultQueueSize,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	for i := range service.queues {
		service.queues[i] = make(chan domain.Event, service.queueSize)
	}

	service.startWorkers()

	return service
}

// Publish queues event for delivery and never blocks. When the worker's
// queue is full the event is dropped, counted as "dropped" for every sink and
// ErrQueueFull is returned.
func (s *NotificationService) Publish(ctx context.Context, event domain.Event) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return ErrServiceClosed
	}

	queue := s.queues[s.shard(event.PartitionKey())]
	select {
	case queue <- event:
		s.logger.DebugContext(ctx, "Notification queued",
			slog.String("type", string(event.Type)),
			slog.Uint64("sequence", event.Sequence))
		return nil
	default:
	}

	s.logger.ErrorContext(ctx, "Notification queue full, dropping event",
		slog.String("type", string(event.Type)),
		slog.Uint64("sequence", event.Sequence),
		slog.String("partition_key", event.PartitionKey()))
	if s.deliveries != nil {
		for _, sink := range s.sinks {
			s.deliveries.RecordDelivery(sink.Name(), "dropped", 0)
		}
	}
	return ErrQueueFull
}

func (s *NotificationService) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(s.workers))
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Notification worker started", slog.Int("worker_id", id))

	queue := s.queues[id]
	for {
		select {
		case event := <-queue:
			s.deliver(event, id)
		case <-s.shutdownChan:
			s.drain(queue, id)
			s.logger.Info("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

// drain delivers whatever was queued before shutdown.
func (s *NotificationService) drain(queue chan domain.Event, id int) {
	for {
		select {
		case event := <-queue:
			s.deliver(event, id)
		default:
			return
		}
	}
}

func (s *NotificationService) deliver(event domain.Event, workerID int) {
	for _, sink := range s.sinks {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := sink.Deliver(ctx, event)
		cancel()
		duration := time.Since(startTime)

		outcome := "ok"
		if err != nil {
			outcome = "error"
			s.logger.Error("Failed to deliver notification",
				slog.String("sink", sink.Name()),
				slog.String("type", string(event.Type)),
				slog.Uint64("sequence", event.Sequence),
				slog.String("error", err.Error()),
				slog.Int("worker_id", workerID),
				slog.Duration("duration", duration))
		}
		if s.deliveries != nil {
			s.deliveries.RecordDelivery(sink.Name(), outcome, duration)
		}
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	// No Publish holds the read lock once closed is set, so everything
	// enqueued is already visible to the draining workers.
	s.shutdownOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.shutdownChan)
		s.closeMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
