package events

import (
	"context"
	"log/slog"
)

// LogSink возвращает обработчик, записывающий события в журнал аудита.
func LogSink(logger *slog.Logger) Handler {
	logger = logger.With(slog.String("component", "audit"))
	return func(ctx context.Context, ev Event) error {
		attrs := []any{
			slog.String("kind", string(ev.Kind())),
			slog.String("event_id", ev.Metadata().ID),
		}

		switch e := ev.(type) {
		case *TagCreated:
			attrs = append(attrs,
				slog.String("tag", e.Tag.Value),
				slog.String("owner_type", e.Owner.Type),
				slog.String("owner_id", e.Owner.ID),
			)
		case *TagUpdated:
			attrs = append(attrs,
				slog.String("tag", e.Tag.Value),
				slog.String("old_value", e.OldValue),
				slog.String("owner_type", e.Owner.Type),
				slog.String("owner_id", e.Owner.ID),
			)
		case *TagDeleted:
			attrs = append(attrs,
				slog.String("tag", e.TagValue),
				slog.String("owner_type", e.OwnerType),
				slog.String("owner_id", e.OwnerID),
			)
		case *GenerationFailed:
			attrs = append(attrs,
				slog.String("owner_type", e.Owner.Type),
				slog.String("owner_id", e.Owner.ID),
				slog.String("error", e.Error),
				slog.String("fallback", e.FallbackValue),
			)
			logger.WarnContext(ctx, "Событие тега", attrs...)
			return nil
		}

		logger.InfoContext(ctx, "Событие тега", attrs...)
		return nil
	}
}
