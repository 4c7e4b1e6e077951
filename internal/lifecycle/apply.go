// Package lifecycle advances commencement registers and service changes as their
// effective dates arrive.
package lifecycle

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// Application is the set of field updates produced by applying one service change.
type Application struct {
	ChangeID  int64
	ServiceID int64
	Change    records.Values
	Service   records.Values
}

// PlanApplication computes the updates for sc without touching the store.
// A cessation date ceases the change and deactivates the service. Free trials bill at zero.
func PlanApplication(sc records.ServiceChange, isFreeTrial bool) Application {
	ceased := sc.CessationDate != nil

	status := records.ChangeActive
	cancellation := sc.CancellationDate
	if ceased {
		status = records.ChangeCeased
		cancellation = sc.CessationDate
	}

	price := decimal.Zero
	if !isFreeTrial && sc.NewPrice.Valid {
		price = sc.NewPrice.Decimal
	}

	change := records.Values{records.FieldStatus: status}
	if cancellation != nil {
		change[records.FieldCancelledDate] = *cancellation
	}

	return Application{
		ChangeID:  sc.ID,
		ServiceID: sc.ServiceID,
		Change:    change,
		Service: records.Values{
			records.FieldActive:    !ceased,
			records.FieldPrice:     price,
			records.FieldFrequency: records.NewFrequency(sc.NewFrequency.Days()...),
		},
	}
}

// ApplyServiceChange finalizes sc and pushes its price and frequency onto the target service.
func ApplyServiceChange(ctx context.Context, store records.Store, sc records.ServiceChange, isFreeTrial bool) error {
	plan := PlanApplication(sc, isFreeTrial)
	if err := store.UpdateFields(ctx, records.TypeServiceChange, plan.ChangeID, plan.Change); err != nil {
		return errors.Wrapf(err, "update service change %d", plan.ChangeID)
	}
	if err := store.UpdateFields(ctx, records.TypeService, plan.ServiceID, plan.Service); err != nil {
		return errors.Wrapf(err, "apply service change %d to service %d", plan.ChangeID, plan.ServiceID)
	}
	return nil
}
