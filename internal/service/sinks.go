package service

import (
	"context"
	"errors"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository"
	"log/slog"
)

// JournalSink appends events to the replay journal. Re-delivering an event
// that is already stored is not an error.
type JournalSink struct {
	journal repository.EventJournal
}

func NewJournalSink(journal repository.EventJournal) *JournalSink {
	return &JournalSink{journal: journal}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Deliver(ctx context.Context, event domain.Event) error {
	err := s.journal.Append(ctx, event)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	return err
}

type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, event domain.Event) error {
	attrs := []any{
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.Uint64("sequence", event.Sequence),
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.InfoContext(ctx, "Protocol event", attrs...)
	return nil
}
