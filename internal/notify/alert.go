package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// Alerter emails unexpected failures to operators.
type Alerter struct {
	notifier   Notifier
	recipients []string
	source     string
	logger     *slog.Logger
}

// NewAlerter constructs an Alerter. source names the process in the subject line.
func NewAlerter(notifier Notifier, recipients []string, source string, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{notifier: notifier, recipients: recipients, source: source, logger: logger}
}

// Subject returns the subject line used for alerts.
func (a *Alerter) Subject() string {
	return "[" + a.source + "] failure"
}

// Alert logs err and mails it with its stack. Delivery failures are logged only.
func (a *Alerter) Alert(ctx context.Context, err error, message string) {
	if a == nil || err == nil {
		return
	}
	a.logger.Error("operator alert", slog.String("message", message), slog.Any("error", err))
	if len(a.recipients) == 0 {
		return
	}

	body := ""
	if message != "" {
		body = "Message: " + html.EscapeString(message) + "<br>"
	}
	body += "Error: " + html.EscapeString(err.Error()) + "<br>"
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		body += "Hints: " + html.EscapeString(fmt.Sprint(hints)) + "<br>"
	}
	body += "<pre>" + html.EscapeString(fmt.Sprintf("%+v", err)) + "</pre>"

	if sendErr := a.notifier.SendReport(ctx, a.recipients, a.Subject(), body); sendErr != nil {
		a.logger.Error("operator alert not delivered", slog.Any("error", sendErr))
	}
}
