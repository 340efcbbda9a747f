package processor

import (
	"context"
	"lc_escrow/internal/domain"
	"log/slog"
	"sync"
	"time"
)

// EventPublisher receives notifications after a command commits.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type MetricsRecorder interface {
	RecordCommand(op, outcome string, duration time.Duration)
	RecordTransition(from, to string)
	RecordSettlement(amount float64)
}

// Executor runs every state-changing command of the registry, the product
// ledger and the LC engine one at a time. A command either commits all of its
// writes and notifications or, on error, none of its notifications are
// published and the command is responsible for leaving storage untouched.
type Executor struct {
	mu        sync.RWMutex
	sequence  uint64
	now       func() time.Time
	publisher EventPublisher
	metrics   MetricsRecorder
	logger    *slog.Logger
}

type ExecutorOption func(*Executor)

func WithClock(now func() time.Time) ExecutorOption {
	return func(x *Executor) {
		if now != nil {
			x.now = now
		}
	}
}

func WithPublisher(p EventPublisher) ExecutorOption {
	return func(x *Executor) {
		x.publisher = p
	}
}

func WithMetrics(m MetricsRecorder) ExecutorOption {
	return func(x *Executor) {
		if m != nil {
			x.metrics = m
		}
	}
}

func NewExecutor(logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Executor{
		now:     time.Now,
		metrics: noopMetrics{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Executor) Now() time.Time {
	return x.now()
}

// Step collects the effects of one command that become visible only once it
// commits.
type Step struct {
	events   []domain.Event
	onCommit []func()
}

func (s *Step) Emit(event domain.Event) {
	s.events = append(s.events, event)
}

func (s *Step) AfterCommit(fn func()) {
	s.onCommit = append(s.onCommit, fn)
}

// Execute runs fn inside the global critical section.
func (x *Executor) Execute(ctx context.Context, op string, fn func(step *Step) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	x.mu.Lock()
	defer x.mu.Unlock()

	step := &Step{}
	if err := fn(step); err != nil {
		x.metrics.RecordCommand(op, domain.Code(err), time.Since(start))
		x.logger.WarnContext(ctx, "Command rejected",
			slog.String("op", op),
			slog.String("error", err.Error()))
		return err
	}

	for _, fn := range step.onCommit {
		fn()
	}
	x.publish(ctx, step.events)
	x.metrics.RecordCommand(op, "ok", time.Since(start))
	return nil
}

// View runs fn on the read side of the critical section. Readers wait for the
// running command, so a staged write that is later rolled back is never seen.
// fn must not call Execute or View.
func (x *Executor) View(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	return fn()
}

func (x *Executor) publish(ctx context.Context, events []domain.Event) {
	// The command is committed; a cancelled request must not drop its
	// notifications.
	ctx = context.WithoutCancel(ctx)
	for _, event := range events {
		x.sequence++
		event.Sequence = x.sequence
		if x.publisher == nil {
			continue
		}
		if err := x.publisher.Publish(ctx, event); err != nil {
			x.logger.ErrorContext(ctx, "Failed to publish event",
				slog.String("event_id", event.ID),
				slog.String("type", string(event.Type)),
				slog.Uint64("sequence", event.Sequence),
				slog.String("error", err.Error()))
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordCommand(string, string, time.Duration) {}
func (noopMetrics) RecordTransition(string, string)             {}
func (noopMetrics) RecordSettlement(float64)                    {}
