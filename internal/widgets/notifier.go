package widgets

import (
	"context"
	"log/slog"
)

// LogNotifier writes toasts to a structured logger. It is the notifier a
// headless process uses in place of a UI.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier logging to logger
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(slog.String("component", "notifier"))}
}

// Notify logs n at the level matching its severity
func (l *LogNotifier) Notify(n Notification) {
	level := slog.LevelInfo
	switch n.Level {
	case NotificationWarning:
		level = slog.LevelWarn
	case NotificationError:
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("level_name", string(n.Level)),
		slog.String("message", n.Message),
	}
	if n.OperationID != "" {
		attrs = append(attrs, slog.String("operation_id", n.OperationID))
	}
	l.logger.LogAttrs(context.Background(), level, n.Title, attrs...)
}
