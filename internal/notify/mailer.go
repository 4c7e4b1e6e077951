package notify

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/resend/resend-go/v2"
)

// ErrNoRecipients is returned when a report has nobody to go to.
var ErrNoRecipients = errors.New("no recipients")

// MailerConfig configures the Resend mailer.
type MailerConfig struct {
	Enabled     bool
	APIKey      string
	FromAddress string
	ReplyTo     string
}

// Mailer sends reports through Resend.
type Mailer struct {
	client      *resend.Client
	fromAddress string
	replyTo     string
}

// NewNotifier returns a Resend-backed Mailer, or a LogNotifier when mail is disabled
// or no API key is configured.
func NewNotifier(cfg MailerConfig, logger *slog.Logger) Notifier {
	if !cfg.Enabled || cfg.APIKey == "" {
		return LogNotifier{Logger: logger}
	}
	return &Mailer{
		client:      resend.NewClient(cfg.APIKey),
		fromAddress: cfg.FromAddress,
		replyTo:     cfg.ReplyTo,
	}
}

// SendReport implements Notifier.
func (m *Mailer) SendReport(ctx context.Context, recipients []string, subject, htmlBody string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	params := &resend.SendEmailRequest{
		From:    m.fromAddress,
		To:      recipients,
		Subject: subject,
		Html:    htmlBody,
	}
	if m.replyTo != "" {
		params.ReplyTo = m.replyTo
	}
	if _, err := m.client.Emails.SendWithContext(ctx, params); err != nil {
		return errors.Wrapf(err, "send %q", subject)
	}
	return nil
}
