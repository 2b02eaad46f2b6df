// Package watchdog implements the stream supervision core: one monitor
// per active channel driving a buffering and error state machine over
// probe samples, and an orchestrator that reconciles monitors against the
// controller's active channel list.
package watchdog

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/guardarr/internal/models"
)

// Sink receives watchdog events as they happen. Implementations must be
// safe for concurrent use; monitors fire events from their own goroutines.
type Sink interface {
	Record(ctx context.Context, event models.Event)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Record logs the event at a level matching its severity.
func (s *LogSink) Record(ctx context.Context, event models.Event) {
	attrs := []any{
		slog.String("channel_id", event.ChannelID),
		slog.String("channel_name", event.ChannelName),
		slog.String("event", string(event.Type)),
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", string(event.Reason)))
	}
	if event.Type == models.EventBufferingStarted || event.Reason == models.ReasonBuffering {
		attrs = append(attrs, slog.Float64("speed", event.Speed))
	}
	if event.ErrorCount > 0 {
		attrs = append(attrs, slog.Int("error_count", event.ErrorCount))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	switch event.Type {
	case models.EventFailoverFailed, models.EventMemoryLimitKill:
		s.Logger.Warn("watchdog event", attrs...)
	case models.EventBufferingStarted, models.EventErrorsDetected, models.EventProbeRestarted:
		s.Logger.Warn("watchdog event", attrs...)
	default:
		s.Logger.Info("watchdog event", attrs...)
	}
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Record forwards the event to every sink.
func (m MultiSink) Record(ctx context.Context, event models.Event) {
	for _, sink := range m {
		sink.Record(ctx, event)
	}
}
