package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// DefaultJudgementDay is the day of month from which plan changes of previously signed
// customers refresh their billing lines.
const DefaultJudgementDay = 15

// Config controls a Transitioner.
type Config struct {
	// Location decides which calendar day "tomorrow" is.
	Location *time.Location
	// JudgementDay is the cutoff day of month.
	JudgementDay int
	// PartnerID limits the run to one franchisee. Zero processes every partner.
	PartnerID int64
}

// Outcome summarizes one run of the transition passes.
type Outcome struct {
	ReferenceDate time.Time
	// Customers need their billing lines regenerated, without duplicates.
	Customers  []int64
	Signed     int
	InTrial    int
	Superseded int
	Applied    int
	Ceased     int
}

// Transitioner moves registers and service changes along their lifecycle.
type Transitioner struct {
	store  records.Store
	cfg    Config
	logger *slog.Logger
}

// NewTransitioner constructs a Transitioner.
func NewTransitioner(store records.Store, cfg Config, logger *slog.Logger) *Transitioner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JudgementDay <= 0 {
		cfg.JudgementDay = DefaultJudgementDay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transitioner{store: store, cfg: cfg, logger: logger}
}

// ReferenceDate returns the calendar day following now in the configured location.
func (t *Transitioner) ReferenceDate(now time.Time) time.Time {
	local := now.In(t.cfg.Location)
	y, m, d := local.Date()
	return records.DateOf(y, m, d+1)
}

func (t *Transitioner) partnerFilter() records.Filter {
	if t.cfg.PartnerID == 0 {
		return records.Filter{}
	}
	return records.Where(records.FieldPartner, records.OpIs, t.cfg.PartnerID)
}

// Advance runs the scheduled, in-trial and judgement-day passes for the given day.
// When a pass fails the returned Outcome still lists the customers marked before the
// failure, since their registers have already left Scheduled or In Trial.
func (t *Transitioner) Advance(ctx context.Context, referenceDate time.Time) (*Outcome, error) {
	out := &Outcome{ReferenceDate: records.Date(referenceDate)}
	var marked []int64
	defer func() {
		out.Customers = lo.Uniq(marked)
	}()

	if err := t.scheduledPass(ctx, out, &marked); err != nil {
		return out, errors.Wrap(err, "scheduled pass")
	}
	if err := t.inTrialPass(ctx, out, &marked); err != nil {
		return out, errors.Wrap(err, "in-trial pass")
	}
	if err := t.judgementDayPass(ctx, out, &marked); err != nil {
		return out, errors.Wrap(err, "judgement day pass")
	}

	t.logger.Info("transition passes complete",
		slog.Time("reference_date", out.ReferenceDate),
		slog.Int("signed", out.Signed),
		slog.Int("in_trial", out.InTrial),
		slog.Int("superseded", out.Superseded),
		slog.Int("applied", out.Applied),
		slog.Int("customers", len(lo.Uniq(marked))))
	return out, nil
}

func (t *Transitioner) scheduledPass(ctx context.Context, out *Outcome, marked *[]int64) error {
	due, err := t.store.QueryCommRegs(ctx, records.And(
		records.Where(records.FieldStatus, records.OpIs, records.CommRegScheduled),
		records.Where(records.FieldCommencementDate, records.OpOn, out.ReferenceDate),
		t.partnerFilter(),
	))
	if err != nil {
		return err
	}
	pastJudgementDay := out.ReferenceDate.Day() >= t.cfg.JudgementDay

	for _, reg := range due {
		previouslySigned, err := t.supersede(ctx, reg, out)
		if err != nil {
			return err
		}

		next := records.CommRegSigned
		if reg.IsFreeTrial() {
			next = records.CommRegInTrial
		}
		if err := t.setCommRegStatus(ctx, reg.ID, next); err != nil {
			return err
		}
		if next == records.CommRegInTrial {
			out.InTrial++
		} else {
			out.Signed++
		}

		changes, err := t.store.QueryServiceChanges(ctx, records.And(
			records.Where(records.FieldStatus, records.OpIs, records.ChangeScheduled),
			records.Where(records.FieldCommReg, records.OpIs, reg.ID),
		))
		if err != nil {
			return errors.Wrapf(err, "query scheduled changes of register %d", reg.ID)
		}
		for _, sc := range changes {
			if err := t.ceaseActiveChanges(ctx, sc, out); err != nil {
				return err
			}
			if err := ApplyServiceChange(ctx, t.store, sc, reg.IsFreeTrial()); err != nil {
				return err
			}
			out.Applied++
		}

		if reg.IsFreeTrial() || !previouslySigned || pastJudgementDay {
			*marked = append(*marked, reg.CustomerID)
		}
		t.logger.Debug("scheduled register commenced",
			slog.Int64("comm_reg_id", reg.ID),
			slog.Int64("customer_id", reg.CustomerID),
			slog.String("status", next.String()),
			slog.Int("changes", len(changes)))
	}
	return nil
}

// supersede moves the customer's other signed or in-trial registers to Changed and
// reports whether the customer had been signed before.
func (t *Transitioner) supersede(ctx context.Context, reg records.CommReg, out *Outcome) (bool, error) {
	previous, err := t.store.QueryCommRegs(ctx, records.And(
		records.Where(records.FieldCustomer, records.OpIs, reg.CustomerID),
		records.Where(records.FieldStatus, records.OpAnyOf, records.CommRegSigned, records.CommRegInTrial, records.CommRegChanged),
	))
	if err != nil {
		return false, errors.Wrapf(err, "query previous registers of customer %d", reg.CustomerID)
	}
	signedBefore := false
	for _, prev := range previous {
		if prev.ID == reg.ID {
			continue
		}
		if prev.Status != records.CommRegInTrial {
			signedBefore = true
		}
		if prev.Status == records.CommRegChanged {
			continue
		}
		if err := t.setCommRegStatus(ctx, prev.ID, records.CommRegChanged); err != nil {
			return false, err
		}
		out.Superseded++
	}
	return signedBefore, nil
}

func (t *Transitioner) ceaseActiveChanges(ctx context.Context, sc records.ServiceChange, out *Outcome) error {
	active, err := t.store.QueryServiceChanges(ctx, records.And(
		records.Where(records.FieldStatus, records.OpIs, records.ChangeActive),
		records.Where(records.FieldService, records.OpIs, sc.ServiceID),
	))
	if err != nil {
		return errors.Wrapf(err, "query active changes of service %d", sc.ServiceID)
	}
	for _, prev := range active {
		if prev.ID == sc.ID {
			continue
		}
		err := t.store.UpdateFields(ctx, records.TypeServiceChange, prev.ID, records.Values{
			records.FieldStatus: records.ChangeCeased,
		})
		if err != nil {
			return errors.Wrapf(err, "cease service change %d", prev.ID)
		}
		out.Ceased++
	}
	return nil
}

func (t *Transitioner) inTrialPass(ctx context.Context, out *Outcome, marked *[]int64) error {
	due, err := t.store.QueryCommRegs(ctx, records.And(
		records.Where(records.FieldStatus, records.OpIs, records.CommRegInTrial),
		records.Where(records.FieldBillingStart, records.OpOn, out.ReferenceDate),
		t.partnerFilter(),
	))
	if err != nil {
		return err
	}
	for _, reg := range due {
		if err := t.setCommRegStatus(ctx, reg.ID, records.CommRegSigned); err != nil {
			return err
		}
		out.Signed++

		active, err := t.store.QueryServiceChanges(ctx, records.And(
			records.Where(records.FieldStatus, records.OpIs, records.ChangeActive),
			records.Where(records.FieldCommReg, records.OpIs, reg.ID),
		))
		if err != nil {
			return errors.Wrapf(err, "query active changes of register %d", reg.ID)
		}
		for _, sc := range active {
			err := t.store.UpdateFields(ctx, records.TypeService, sc.ServiceID, records.Values{
				records.FieldPrice: sc.NewPrice,
			})
			if err != nil {
				return errors.Wrapf(err, "end trial pricing of service %d", sc.ServiceID)
			}
		}
		*marked = append(*marked, reg.CustomerID)
	}
	return nil
}

func (t *Transitioner) judgementDayPass(ctx context.Context, out *Outcome, marked *[]int64) error {
	day := out.ReferenceDate
	if day.Day() != t.cfg.JudgementDay {
		return nil
	}
	monthStart := records.DateOf(day.Year(), day.Month(), 1)
	cutoff := records.DateOf(day.Year(), day.Month(), t.cfg.JudgementDay)

	signed, err := t.store.QueryCommRegs(ctx, records.And(
		records.Where(records.FieldCustomerStatus, records.OpAnyOf, records.CustomerSigned),
		records.Where(records.FieldCommencementDate, records.OpWithin, monthStart, cutoff),
		records.Where(records.FieldStatus, records.OpAnyOf, records.CommRegSigned),
		t.partnerFilter(),
	))
	if err != nil {
		return err
	}
	for _, customerID := range lo.Uniq(lo.Map(signed, func(c records.CommReg, _ int) int64 { return c.CustomerID })) {
		changed, err := t.store.QueryCommRegs(ctx, records.And(
			records.Where(records.FieldStatus, records.OpIs, records.CommRegChanged),
			records.Where(records.FieldCustomer, records.OpIs, customerID),
		))
		if err != nil {
			return errors.Wrapf(err, "query changed registers of customer %d", customerID)
		}
		if len(changed) > 0 {
			*marked = append(*marked, customerID)
		}
	}
	return nil
}

func (t *Transitioner) setCommRegStatus(ctx context.Context, id int64, status records.CommRegStatus) error {
	if err := t.store.UpdateFields(ctx, records.TypeCommReg, id, records.Values{records.FieldStatus: status}); err != nil {
		return errors.Wrapf(err, "set register %d to %s", id, status)
	}
	return nil
}
