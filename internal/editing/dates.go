package editing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/odyssey-erp/servicechange/internal/billing"
	"github.com/odyssey-erp/servicechange/internal/records"
)

// isoLayout is the client's ISO timestamp without a zone designator.
const isoLayout = "2006-01-02T15:04:05.000"

func parseISODate(raw, label string) (time.Time, error) {
	t, err := time.Parse(isoLayout, raw)
	if err != nil {
		return time.Time{}, invalid("%s [%s] is not a valid date", label, raw)
	}
	return records.Date(t), nil
}

type dateShift struct {
	commReg records.Values
	change  records.Values
}

type shiftStep struct {
	target Target
	values records.Values
}

func (s *Service) updateEffectiveDate(ctx context.Context, p effectiveDateParams) (any, error) {
	date, err := parseISODate(p.EffectiveDate, "Effective date")
	if err != nil {
		return nil, err
	}
	if p.CommRegID == 0 {
		return nil, invalid("Commencement Register ID not specified")
	}
	shift := dateShift{
		commReg: records.Values{records.FieldCommencementDate: date},
		change:  records.Values{records.FieldEffectiveDate: date},
	}
	if err := s.shiftDates(ctx, p.CommRegID.Int64(), shift); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Effective date has been set to %s", date.Format(time.DateOnly)), nil
}

func (s *Service) updateTrialEndDate(ctx context.Context, p trialEndDateParams) (any, error) {
	trialEnd, err := parseISODate(p.TrialEndDate, "Trial expiry date")
	if err != nil {
		return nil, err
	}
	shift := dateShift{
		commReg: records.Values{records.FieldTrialExpiry: trialEnd},
		change:  records.Values{records.FieldTrialEndDate: trialEnd},
	}
	if p.BillingStartDate != "" {
		billingStart, err := parseISODate(p.BillingStartDate, "Billing start date")
		if err != nil {
			return nil, err
		}
		shift.commReg[records.FieldBillingStart] = billingStart
		shift.change[records.FieldBillingStart] = billingStart
	}
	if p.CommRegID == 0 {
		return nil, invalid("Commencement Register ID not specified")
	}
	if err := s.shiftDates(ctx, p.CommRegID.Int64(), shift); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Trial end date has been set to %s", trialEnd.Format(time.DateOnly)), nil
}

// shiftDates writes the dates onto every pending change of the register and then onto
// the register. Every target is loaded and checked before the first write; a write
// failure after that returns a *PartialUpdateError.
func (s *Service) shiftDates(ctx context.Context, commRegID int64, shift dateShift) error {
	steps, err := s.stageShift(ctx, commRegID, shift)
	if err != nil {
		return err
	}

	done := make([]Target, 0, len(steps))
	for i, step := range steps {
		if err := s.store.UpdateFields(ctx, step.target.Type, step.target.ID, step.values); err != nil {
			partial := &PartialUpdateError{Updated: done, Failed: step.target, Cause: err}
			for _, rest := range steps[i+1:] {
				partial.Skipped = append(partial.Skipped, rest.target)
			}
			s.logger.Error("date shift stopped part way",
				slog.Int64("comm_reg_id", commRegID),
				slog.Int("updated", len(done)),
				slog.String("failed", step.target.String()),
				slog.Any("error", err))
			return partial
		}
		done = append(done, step.target)
	}
	s.logger.Info("dates shifted", slog.Int64("comm_reg_id", commRegID), slog.Int("records", len(done)))
	return nil
}

func (s *Service) stageShift(ctx context.Context, commRegID int64, shift dateShift) ([]shiftStep, error) {
	reg, err := s.store.LoadCommReg(ctx, commRegID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.QueryServiceChanges(ctx, billing.PendingChangesFilter(commRegID))
	if err != nil {
		return nil, errors.Wrap(err, "query pending changes")
	}

	steps := make([]shiftStep, 0, len(pending)+1)
	for _, found := range pending {
		sc, err := s.store.LoadServiceChange(ctx, found.ID)
		if err != nil {
			return nil, err
		}
		if err := sc.Apply(shift.change); err != nil {
			return nil, errors.Wrapf(err, "stage service change %d", sc.ID)
		}
		steps = append(steps, shiftStep{
			target: Target{Type: records.TypeServiceChange, ID: sc.ID},
			values: shift.change,
		})
	}
	if err := reg.Apply(shift.commReg); err != nil {
		return nil, errors.Wrapf(err, "stage commencement register %d", reg.ID)
	}
	steps = append(steps, shiftStep{
		target: Target{Type: records.TypeCommReg, ID: reg.ID},
		values: shift.commReg,
	})
	return steps, nil
}
