package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentReport struct {
	recipients []string
	subject    string
	body       string
}

type recordingNotifier struct {
	sent []sentReport
	err  error
}

func (r *recordingNotifier) SendReport(_ context.Context, recipients []string, subject, body string) error {
	r.sent = append(r.sent, sentReport{recipients: recipients, subject: subject, body: body})
	return r.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewNotifierFallsBackToLog(t *testing.T) {
	n := NewNotifier(MailerConfig{Enabled: true}, discard())
	_, ok := n.(LogNotifier)
	assert.True(t, ok)
	require.NoError(t, n.SendReport(context.Background(), []string{"ops@example.com"}, "s", "b"))

	n = NewNotifier(MailerConfig{Enabled: true, APIKey: "re_test", FromAddress: "jobs@example.com"}, discard())
	_, ok = n.(*Mailer)
	assert.True(t, ok)
}

func TestMailerRequiresRecipients(t *testing.T) {
	m := NewNotifier(MailerConfig{Enabled: true, APIKey: "re_test"}, discard())
	err := m.SendReport(context.Background(), nil, "subject", "<p>x</p>")
	require.ErrorIs(t, err, ErrNoRecipients)
}

func TestAlertIncludesMessageAndStack(t *testing.T) {
	rec := &recordingNotifier{}
	alerter := NewAlerter(rec, []string{"ops@example.com"}, "transition", discard())

	err := errors.WithHint(errors.New("save <customer> failed"), "retry tomorrow")
	alerter.Alert(context.Background(), err, "Failed to update financial items for customer id 7")

	require.Len(t, rec.sent, 1)
	assert.Equal(t, "[transition] failure", rec.sent[0].subject)
	assert.Contains(t, rec.sent[0].body, "Message: Failed to update financial items for customer id 7")
	assert.Contains(t, rec.sent[0].body, "save &lt;customer&gt; failed")
	assert.Contains(t, rec.sent[0].body, "retry tomorrow")
	assert.Contains(t, rec.sent[0].body, "<pre>")
}

func TestAlertSwallowsDeliveryFailure(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("smtp down")}
	alerter := NewAlerter(rec, []string{"ops@example.com"}, "editing", discard())

	assert.NotPanics(t, func() {
		alerter.Alert(context.Background(), errors.New("boom"), "")
	})
	assert.Len(t, rec.sent, 1)
}

func TestAlertWithoutRecipientsOnlyLogs(t *testing.T) {
	rec := &recordingNotifier{}
	NewAlerter(rec, nil, "editing", discard()).Alert(context.Background(), errors.New("boom"), "")
	assert.Empty(t, rec.sent)
}
