package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/servicechange/internal/billing"
	jobmetrics "github.com/odyssey-erp/servicechange/internal/jobs"
	"github.com/odyssey-erp/servicechange/internal/lifecycle"
	"github.com/odyssey-erp/servicechange/internal/notify"
	"github.com/odyssey-erp/servicechange/internal/platform/cache"
	"github.com/odyssey-erp/servicechange/internal/records"
)

const (
	transitionLockTTL = 2 * time.Hour
	// transitionDoneTTL keeps a finished day closed across cron refires and retries.
	transitionDoneTTL = 7 * 24 * time.Hour
)

// ErrAlreadyTransitioned is returned by Run when the reference date completed earlier.
var ErrAlreadyTransitioned = errors.New("transition: reference date already processed")

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RunLocker guards a transition run against concurrent workers and records the days
// that completed.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
	MarkDone(ctx context.Context, key string, ttl time.Duration) error
	Done(ctx context.Context, key string) (bool, error)
}

// TransitionResult describes one completed run.
type TransitionResult struct {
	ReferenceDate time.Time
	Outcome       *lifecycle.Outcome
	Reports       []billing.Report
	Failures      []billing.Failure
	// Committed is set once every due record was advanced and regenerated. Only a
	// committed day is closed against later runs.
	Committed bool
}

// TransitionJob advances due registers and service changes, regenerates the billing
// lines of affected customers and mails a consolidated report.
type TransitionJob struct {
	Store            records.Store
	Transitioner     *lifecycle.Transitioner
	Regenerator      *billing.Regenerator
	Notifier         notify.Notifier
	Alerter          *notify.Alerter
	Locker           RunLocker
	ReportRecipients []string
	Logger           *slog.Logger
	Metrics          *jobmetrics.Metrics
	clock            func() time.Time
}

// NewTransitionJob wires a transition job from its collaborators.
func NewTransitionJob(store records.Store, transitioner *lifecycle.Transitioner, notifier notify.Notifier,
	alerter *notify.Alerter, locker RunLocker, recipients []string, logger *slog.Logger, metrics *jobmetrics.Metrics) *TransitionJob {
	return &TransitionJob{
		Store:            store,
		Transitioner:     transitioner,
		Regenerator:      billing.NewRegenerator(store, logger),
		Notifier:         notifier,
		Alerter:          alerter,
		Locker:           locker,
		ReportRecipients: recipients,
		Logger:           logger,
		Metrics:          metrics,
		clock:            time.Now,
	}
}

// Handle executes the transition run. Failures are alerted to operators and never
// returned to the scheduler.
func (j *TransitionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("transition: handler not configured")
	}
	var payload TransitionPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			j.alert(ctx, errors.Wrap(err, "decode transition payload"), "Transition payload rejected")
			return nil
		}
	}
	day, pinned, err := payload.Date()
	if err != nil {
		j.alert(ctx, errors.Wrap(err, "parse reference date"), "Transition payload rejected")
		return nil
	}
	if !pinned {
		day = j.Transitioner.ReferenceDate(j.now())
	}

	run := j.Run
	if payload.Force {
		run = j.Rerun
	}
	if _, err := run(ctx, day); err != nil {
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			j.logger().Info("transition already running", slog.Time("reference_date", day))
		case errors.Is(err, ErrAlreadyTransitioned):
			j.logger().Info("transition already done", slog.Time("reference_date", day))
		default:
			j.alert(ctx, err, fmt.Sprintf("Transition run for %s failed", records.FormatDMY(day)))
		}
	}
	return nil
}

// Run performs one transition run for referenceDate. A date that already completed
// is skipped with ErrAlreadyTransitioned.
func (j *TransitionJob) Run(ctx context.Context, referenceDate time.Time) (*TransitionResult, error) {
	return j.run(ctx, referenceDate, false)
}

// Rerun performs the run for referenceDate even when it completed before.
func (j *TransitionJob) Rerun(ctx context.Context, referenceDate time.Time) (*TransitionResult, error) {
	return j.run(ctx, referenceDate, true)
}

func (j *TransitionJob) run(ctx context.Context, referenceDate time.Time, force bool) (*TransitionResult, error) {
	referenceDate = records.Date(referenceDate)
	logger := j.logger().With(slog.Time("reference_date", referenceDate))

	if j.Locker != nil {
		lock, err := j.Locker.Acquire(ctx, cache.TransitionLockKey(referenceDate), transitionLockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release transition lock", slog.Any("error", err))
			}
		}()

		doneKey := cache.TransitionDoneKey(referenceDate)
		if !force {
			done, err := j.Locker.Done(ctx, doneKey)
			if err != nil {
				return nil, err
			}
			if done {
				return nil, ErrAlreadyTransitioned
			}
		}
		result, err := j.tracked(ctx, referenceDate, logger)
		if result != nil && result.Committed {
			if markErr := j.Locker.MarkDone(ctx, doneKey, transitionDoneTTL); markErr != nil {
				logger.Warn("mark transition done", slog.Any("error", markErr))
			}
		}
		return result, err
	}
	return j.tracked(ctx, referenceDate, logger)
}

func (j *TransitionJob) tracked(ctx context.Context, referenceDate time.Time, logger *slog.Logger) (result *TransitionResult, resultErr error) {
	tracker := j.metrics().Track(TaskTypeTransition)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger.Info("starting transition run")
	outcome, err := j.Transitioner.Advance(ctx, referenceDate)
	if outcome == nil {
		return nil, err
	}
	j.metrics().AddTransitions("signed", outcome.Signed)
	j.metrics().AddTransitions("in_trial", outcome.InTrial)
	j.metrics().AddTransitions("superseded", outcome.Superseded)
	j.metrics().AddTransitions("applied", outcome.Applied)
	j.metrics().AddTransitions("ceased", outcome.Ceased)

	// After a failed pass the customers marked so far are still regenerated. Their
	// registers are no longer due, so a later run would not pick them up.
	result = &TransitionResult{ReferenceDate: referenceDate, Outcome: outcome}
	j.regenerateAll(ctx, referenceDate, result)
	if err != nil {
		return result, err
	}
	result.Committed = true

	body, err := billing.RenderReport(referenceDate, result.Reports, result.Failures)
	if err != nil {
		return result, err
	}
	if err := j.Notifier.SendReport(ctx, j.ReportRecipients, billing.ReportSubject(referenceDate), body); err != nil {
		return result, errors.Wrap(err, "send financial items report")
	}

	logger.Info("transition run complete",
		slog.Int("customers", len(outcome.Customers)),
		slog.Int("regenerated", len(result.Reports)),
		slog.Int("failed", len(result.Failures)))
	return result, nil
}

// regenerateAll rebuilds the billing lines of every customer in the outcome and
// prepends the pricing notes of the ones that succeeded.
func (j *TransitionJob) regenerateAll(ctx context.Context, referenceDate time.Time, result *TransitionResult) {
	for _, customerID := range result.Outcome.Customers {
		report, err := j.regenerator().Regenerate(ctx, customerID)
		j.metrics().ObserveRegeneration(err)
		if err != nil {
			result.Failures = append(result.Failures, billing.Failure{CustomerID: customerID, Reason: err.Error()})
			j.alert(ctx, err, fmt.Sprintf("Failed to update financial items for customer id %d", customerID))
			continue
		}
		result.Reports = append(result.Reports, *report)
	}

	for _, report := range result.Reports {
		if err := j.writePricingNotes(ctx, referenceDate, report); err != nil {
			j.alert(ctx, err, fmt.Sprintf("Failed to save Price Notes for customer ID %d", report.CustomerID))
		}
	}
}

// alert hands err to the operator alerter, or logs it when none is configured.
func (j *TransitionJob) alert(ctx context.Context, err error, message string) {
	if j.Alerter == nil {
		j.logger().Error(message, slog.Any("error", err))
		return
	}
	j.Alerter.Alert(ctx, err, message)
}

func (j *TransitionJob) writePricingNotes(ctx context.Context, day time.Time, report billing.Report) error {
	customer, err := j.Store.LoadCustomer(ctx, report.CustomerID)
	if err != nil {
		return err
	}
	notes := billing.PricingNotes(day, report, customer.PricingNotes)
	return j.Store.UpdateFields(ctx, records.TypeCustomer, report.CustomerID, records.Values{
		records.FieldPricingNotes: notes,
	})
}

func (j *TransitionJob) regenerator() *billing.Regenerator {
	if j.Regenerator == nil {
		j.Regenerator = billing.NewRegenerator(j.Store, j.logger())
	}
	return j.Regenerator
}

func (j *TransitionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeTransition))
	}
	return slog.Default().With(slog.String("job", TaskTypeTransition))
}

func (j *TransitionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TransitionJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
