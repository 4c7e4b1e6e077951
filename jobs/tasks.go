package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/servicechange/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending report emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeTransition is the task type of the daily lifecycle transition run.
	TaskTypeTransition = "servicechange:transition"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// MailHandler delivers queued emails through a Notifier.
type MailHandler struct {
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Handle processes TaskTypeSendEmail tasks.
func (h *MailHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.To) == 0 {
		return asynq.SkipRetry
	}
	if err := h.Notifier.SendReport(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		return err
	}
	if h.Logger != nil {
		h.Logger.Info("email sent", slog.String("subject", payload.Subject), slog.Int("recipients", len(payload.To)))
	}
	return nil
}

// TransitionPayload optionally pins the reference date of a transition run. Force
// repeats a date that already completed.
type TransitionPayload struct {
	ReferenceDate string `json:"reference_date,omitempty"`
	Force         bool   `json:"force,omitempty"`
}

// Date parses the pinned reference date. ok is false when none was given.
func (p TransitionPayload) Date() (day time.Time, ok bool, err error) {
	if p.ReferenceDate == "" {
		return time.Time{}, false, nil
	}
	day, err = time.Parse("2006-01-02", p.ReferenceDate)
	if err != nil {
		return time.Time{}, false, err
	}
	return day, true, nil
}

// NewTransitionTask constructs the transition task.
func NewTransitionTask(payload TransitionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTransition, data, asynq.MaxRetry(0), asynq.Timeout(30*time.Minute)), nil
}
