package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes codes to the log instead of sending them. Only for
// local development and tests.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.Logger.InfoContext(ctx, "verification code issued",
		"to", msg.To,
		"code", msg.Code,
	)
	return nil
}
