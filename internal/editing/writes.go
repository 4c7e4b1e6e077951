package editing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/odyssey-erp/servicechange/internal/billing"
	"github.com/odyssey-erp/servicechange/internal/records"
)

type verifiedIDs struct {
	CustomerID    int64 `json:"customerId"`
	SalesRecordID int64 `json:"salesRecordId"`
	CommRegID     int64 `json:"commRegId"`
}

// creatableCommRegStatuses are the statuses a new register may start in.
var creatableCommRegStatuses = []records.CommRegStatus{
	records.CommRegQuote, records.CommRegWaitingTNC, records.CommRegScheduled,
}

func (s *Service) verifyParameters(ctx context.Context, p verifyParams) (any, error) {
	out := verifiedIDs{CustomerID: p.CustomerID.Int64()}
	if p.SalesRecordID != 0 {
		sr, err := s.checkSalesRecord(ctx, out.CustomerID, p.SalesRecordID.Int64())
		if err != nil {
			return nil, err
		}
		if sr.Completed {
			return nil, invalid("Sales Record #%d is already marked as Completed.", sr.ID)
		}
		out.SalesRecordID = sr.ID
	}
	if p.CommRegID != 0 {
		reg, err := s.store.LoadCommReg(ctx, p.CommRegID.Int64())
		if err != nil {
			return nil, err
		}
		if reg.SalesRecordID != out.SalesRecordID {
			return nil, invalid("IDs mismatched. Commencement Register #%d does not belong to sales record #%d.",
				reg.ID, out.SalesRecordID)
		}
		out.CommRegID = reg.ID
	}
	return out, nil
}

func (s *Service) checkSalesRecord(ctx context.Context, customerID, salesRecordID int64) (*records.SalesRecord, error) {
	sr, err := s.store.LoadSalesRecord(ctx, salesRecordID)
	if err != nil {
		return nil, err
	}
	if sr.CustomerID != customerID {
		return nil, invalid("IDs mismatched. Sales record #%d does not belong to customer #%d.", salesRecordID, customerID)
	}
	return sr, nil
}

func (s *Service) saveService(ctx context.Context, p saveServiceParams) (any, error) {
	svc := &records.Service{Category: records.ServiceCategoryServices}
	if p.ServiceID != 0 {
		loaded, err := s.store.LoadService(ctx, p.ServiceID.Int64())
		if err != nil {
			return nil, err
		}
		svc = loaded
	}
	if err := svc.Apply(p.ServiceData.Values()); err != nil {
		return nil, err
	}
	if svc.CustomerID == 0 {
		return nil, invalid("Parameter [%s] is required", records.FieldCustomer)
	}
	id, err := s.store.SaveService(ctx, svc)
	if err != nil {
		return nil, errors.Wrap(err, "save service")
	}
	return id, nil
}

// cancelPendingService removes a service that was never activated together with its
// changes under the register.
func (s *Service) cancelPendingService(ctx context.Context, p serviceScopeParams) (any, error) {
	serviceID := p.ServiceID.Int64()
	svc, err := s.store.LoadService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Active {
		return fmt.Sprintf("Pending service ID %d was not removed because it is active.", serviceID), nil
	}
	if err := s.deleteChanges(ctx, serviceID, p.CommRegID.Int64()); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, records.TypeService, serviceID); err != nil {
		return nil, errors.Wrapf(err, "delete service %d", serviceID)
	}
	s.logger.Info("pending service removed", slog.Int64("service_id", serviceID))
	return fmt.Sprintf("Pending service ID %d has been removed.", serviceID), nil
}

func (s *Service) cancelChangesOfService(ctx context.Context, p cancelChangesParams) (any, error) {
	serviceID := p.ServiceID.Int64()
	if err := s.deleteChanges(ctx, serviceID, p.CommRegID.Int64()); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Changes for service ID %d has been cancelled.", serviceID), nil
}

// deleteChanges deletes the service's changes. A zero commRegID matches every register.
func (s *Service) deleteChanges(ctx context.Context, serviceID, commRegID int64) error {
	filter := records.Where(records.FieldService, records.OpIs, serviceID)
	if commRegID != 0 {
		filter = records.And(filter, records.Where(records.FieldCommReg, records.OpIs, commRegID))
	}
	changes, err := s.store.QueryServiceChanges(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "query service changes")
	}
	for _, sc := range changes {
		if err := s.store.Delete(ctx, records.TypeServiceChange, sc.ID); err != nil {
			return errors.Wrapf(err, "delete service change %d", sc.ID)
		}
	}
	return nil
}

// saveServiceChange creates or updates a change. A change may not reference an inactive
// service, so an inactive target is activated for the save and deactivated afterwards.
func (s *Service) saveServiceChange(ctx context.Context, p saveServiceChangeParams) (_ any, err error) {
	id := p.ServiceChangeID
	if id == 0 {
		if raw, ok := p.ServiceChangeData["internalid"]; ok {
			n, convErr := records.AsInt64(raw)
			if convErr != nil {
				return nil, invalid("Parameter [internalid] is not valid")
			}
			id = ID(n)
		}
	}

	sc := &records.ServiceChange{Status: records.ChangeScheduled}
	if id != 0 {
		if sc, err = s.store.LoadServiceChange(ctx, id.Int64()); err != nil {
			return nil, err
		}
	}
	values := p.ServiceChangeData.Values()
	if err := sc.Apply(values); err != nil {
		return nil, err
	}
	if sc.ServiceID == 0 {
		return nil, invalid("Parameter [%s] is required", records.FieldService)
	}
	svc, err := s.store.LoadService(ctx, sc.ServiceID)
	if err != nil {
		return nil, err
	}
	if sc.ID == 0 {
		s.fillChangeDefaults(ctx, sc, svc, values)
	}

	if !svc.Active {
		if err := s.setServiceActive(ctx, svc.ID, true); err != nil {
			return nil, err
		}
		defer func() {
			if revertErr := s.setServiceActive(ctx, svc.ID, false); revertErr != nil {
				s.logger.Error("restore inactive service", slog.Int64("service_id", svc.ID), slog.Any("error", revertErr))
				err = errors.CombineErrors(err, revertErr)
			}
		}()
	}

	saved, err := s.store.SaveServiceChange(ctx, sc)
	if err != nil {
		return nil, errors.Wrap(err, "save service change")
	}
	return saved, nil
}

// fillChangeDefaults copies the service's current state onto a new change where the
// request left it out.
func (s *Service) fillChangeDefaults(ctx context.Context, sc *records.ServiceChange, svc *records.Service, given records.Values) {
	if _, ok := given[records.FieldCustomer]; !ok {
		sc.CustomerID = svc.CustomerID
	}
	if _, ok := given[records.FieldServiceType]; !ok {
		sc.ServiceTypeID = svc.ServiceTypeID
	}
	if _, ok := given[records.FieldOldPrice]; !ok {
		sc.OldPrice = svc.Price
	}
	if _, ok := given[records.FieldOldFrequency]; !ok {
		sc.OldFrequency = svc.Frequency
	}
	if _, ok := given[records.FieldCommReg]; !ok {
		sc.CommRegID = svc.CommRegID
	}
	if u, ok := UserFromContext(ctx); ok && sc.CreatedBy == 0 {
		sc.CreatedBy = u.ID
	}
}

func (s *Service) setServiceActive(ctx context.Context, serviceID int64, active bool) error {
	err := s.store.UpdateFields(ctx, records.TypeService, serviceID, records.Values{records.FieldActive: active})
	return errors.Wrapf(err, "set service %d active=%t", serviceID, active)
}

func (s *Service) createCommencementRegister(ctx context.Context, p createCommRegParams) (any, error) {
	customerID := p.CustomerID.Int64()
	customer, err := s.store.LoadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	open, err := s.openCommReg(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, errors.Mark(
			errors.Newf("Customer #%d already has an open Commencement Register #%d (%s)", customerID, open.ID, open.Status),
			ErrIntegrity)
	}

	reg := &records.CommReg{PartnerID: customer.PartnerID, Status: records.CommRegScheduled}
	if err := reg.Apply(p.CommRegData.Values()); err != nil {
		return nil, err
	}
	reg.CustomerID = customerID
	if p.SalesRecordID != 0 {
		reg.SalesRecordID = p.SalesRecordID.Int64()
	}
	if reg.SalesRecordID != 0 {
		if _, err := s.checkSalesRecord(ctx, customerID, reg.SalesRecordID); err != nil {
			return nil, err
		}
	}
	if !lo.Contains(creatableCommRegStatuses, reg.Status) {
		return nil, invalid("A Commencement Register cannot be created with the status %s", reg.Status)
	}
	if reg.CommencementDate.IsZero() {
		return nil, invalid("Parameter [%s] is required", records.FieldCommencementDate)
	}

	id, err := s.store.SaveCommReg(ctx, reg)
	if err != nil {
		return nil, errors.Wrap(err, "save commencement register")
	}
	s.logger.Info("commencement register created",
		slog.Int64("comm_reg_id", id), slog.Int64("customer_id", customerID), slog.String("status", reg.Status.String()))
	return id, nil
}

func (s *Service) updateServiceRatesOfCustomer(ctx context.Context, p serviceRatesParams) (any, error) {
	customerID := p.CustomerID.Int64()
	pending, err := s.store.QueryServiceChanges(ctx, billing.PendingChangesFilter(p.CommRegID.Int64()))
	if err != nil {
		return nil, errors.Wrap(err, "query pending changes")
	}
	services, err := s.store.QueryServices(ctx, billing.AssignedServicesFilter(customerID, pending))
	if err != nil {
		return nil, errors.Wrap(err, "query assigned services")
	}
	rates := billing.ComputeMonthlyRates(pending, services)
	if err := s.store.UpdateFields(ctx, records.TypeCustomer, customerID, rates.Values()); err != nil {
		return nil, errors.Wrapf(err, "update rates of customer %d", customerID)
	}
	return rates, nil
}
