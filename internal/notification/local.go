package notification

import (
	"context"
	"log/slog"
)

var _ Mailer = (*LocalMailer)(nil)

// LocalMailer writes notifications to the log instead of delivering them.
type LocalMailer struct {
	from   string
	to     string
	logger *slog.Logger
}

func NewLocalMailer(from, to string, logger *slog.Logger) *LocalMailer {
	return &LocalMailer{from: from, to: to, logger: logger}
}

func (m *LocalMailer) Send(ctx context.Context, subject, message string) error {
	m.logger.InfoContext(ctx, "Mail sent",
		slog.String("mailer", "local"),
		slog.String("from", m.from),
		slog.String("to", m.to),
		slog.String("subject", subject),
		slog.String("message", message))
	return nil
}
