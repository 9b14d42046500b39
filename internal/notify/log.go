package notify

import (
	"context"
	"log/slog"

	"staffline/internal/domain"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Name() string { return "log" }

func (l LogSink) Deliver(ctx context.Context, evt domain.Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event",
		"id", evt.ID,
		"type", evt.Type,
		"project_id", evt.ProjectID,
		"entity", evt.EntityKind+"/"+evt.EntityID,
		"actor_id", evt.ActorID,
		"payload", evt.Payload,
	)
	return nil
}
