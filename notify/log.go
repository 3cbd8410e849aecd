package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to a structured logger instead of sending them.
// Codes end up in the log, so use it only in development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier logging at info level. A nil logger uses
// [slog.Default].
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the message and never fails.
func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
