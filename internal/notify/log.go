package notify

import (
	"context"
	"log/slog"
)

// LogSink writes every event to the structured log. It never fails.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "events"))}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, evt Event) error {
	s.logger.InfoContext(ctx, string(evt.Type),
		slog.String("event_id", evt.ID),
		slog.String("ride_id", evt.RideID),
		slog.String("bike_id", evt.BikeID),
		slog.Any("payload", evt.Payload),
	)
	return nil
}
