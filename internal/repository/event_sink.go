package repository

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/guardarr/internal/models"
)

// EventSink adapts the event repository to the watchdog's sink interface.
// Persistence failures are logged, never propagated; history is best
// effort and must not interfere with stream supervision.
type EventSink struct {
	repo   *EventRepository
	logger *slog.Logger
}

// NewEventSink creates a sink writing events to the repository.
func NewEventSink(repo *EventRepository, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{repo: repo, logger: logger}
}

// Record persists the event.
func (s *EventSink) Record(ctx context.Context, event models.Event) {
	if err := s.repo.Create(ctx, &event); err != nil {
		s.logger.Error("failed to persist event",
			slog.String("channel_id", event.ChannelID),
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}
