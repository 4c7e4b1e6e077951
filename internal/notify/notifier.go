// Package notify delivers reports and operator alerts by email.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Notifier sends an HTML report to a list of recipients.
type Notifier interface {
	SendReport(ctx context.Context, recipients []string, subject, htmlBody string) error
}

// LogNotifier writes reports to the log instead of sending them.
type LogNotifier struct {
	Logger *slog.Logger
}

// SendReport implements Notifier.
func (n LogNotifier) SendReport(_ context.Context, recipients []string, subject, htmlBody string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("report not mailed",
		slog.String("recipients", strings.Join(recipients, ",")),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(htmlBody)))
	return nil
}
