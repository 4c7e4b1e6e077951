package editing

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/odyssey-erp/servicechange/internal/billing"
	"github.com/odyssey-erp/servicechange/internal/records"
)

const multipleOpenCommRegs = "There are more than one Commencement Register with the status of either Waiting T&C, In Trial or Scheduled"

func (s *Service) getCurrentUserDetails(ctx context.Context, _ noParams) (any, error) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return nil, invalid("No authenticated user")
	}
	return u, nil
}

func (s *Service) getSelectOptions(ctx context.Context, p selectOptionsParams) (any, error) {
	return s.lookups.Options(ctx, p.Type, p.ValueColumnName, p.TextColumnName)
}

func (s *Service) getServiceTypes(ctx context.Context, _ noParams) (any, error) {
	return s.lookups.ServiceTypes(ctx, records.ServiceCategoryServices)
}

func (s *Service) getSalesRecord(ctx context.Context, p salesRecordParams) (any, error) {
	return s.store.LoadSalesRecord(ctx, p.SalesRecordID.Int64())
}

func (s *Service) getCommencementRegister(ctx context.Context, p commRegParams) (any, error) {
	return s.store.LoadCommReg(ctx, p.CommRegID.Int64())
}

// getCommRegBySalesRecordID returns the first register raised from the sales record, or null.
func (s *Service) getCommRegBySalesRecordID(ctx context.Context, p salesRecordParams) (any, error) {
	regs, err := s.store.QueryCommRegs(ctx, records.Where(records.FieldSalesRecord, records.OpIs, p.SalesRecordID.Int64()))
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, nil
	}
	return regs[0], nil
}

func (s *Service) getCommRegsByCustomerID(ctx context.Context, p customerParams) (any, error) {
	reg, err := s.openCommReg(ctx, p.CustomerID.Int64())
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return []records.CommReg{}, nil
	}
	return []records.CommReg{*reg}, nil
}

// openCommReg returns the customer's single open register, nil when there is none.
func (s *Service) openCommReg(ctx context.Context, customerID int64) (*records.CommReg, error) {
	regs, err := s.store.QueryCommRegs(ctx, records.And(
		records.Where(records.FieldCustomer, records.OpIs, customerID),
		records.Where(records.FieldStatus, records.OpAnyOf, lo.ToAnySlice(records.OpenCommRegStatuses)...),
	))
	if err != nil {
		return nil, err
	}
	switch len(regs) {
	case 0:
		return nil, nil
	case 1:
		return &regs[0], nil
	}
	s.logger.Warn("customer has several open registers",
		slog.Int64("customer_id", customerID), slog.Int("count", len(regs)))
	return nil, errors.Mark(errors.New(multipleOpenCommRegs), ErrIntegrity)
}

func (s *Service) getCustomerDetails(ctx context.Context, p customerFieldsParams) (any, error) {
	customer, err := s.store.LoadCustomer(ctx, p.CustomerID.Int64())
	if err != nil {
		return nil, err
	}
	if len(p.FieldIDs) == 0 {
		return customer, nil
	}
	out := make(map[string]any, len(p.FieldIDs))
	for _, id := range p.FieldIDs {
		v, err := customer.Get(records.Field(id))
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

type servicesAndChanges struct {
	Services       []records.Service       `json:"services"`
	ServiceChanges []records.ServiceChange `json:"serviceChanges"`
}

func (s *Service) getServicesAndServiceChanges(ctx context.Context, p servicesAndChangesParams) (any, error) {
	out := servicesAndChanges{ServiceChanges: []records.ServiceChange{}}
	if p.CommRegID != 0 {
		changes, err := s.store.QueryServiceChanges(ctx, records.Where(records.FieldCommReg, records.OpIs, p.CommRegID.Int64()))
		if err != nil {
			return nil, errors.Wrap(err, "query service changes")
		}
		out.ServiceChanges = changes
	}
	services, err := s.store.QueryServices(ctx, billing.AssignedServicesFilter(p.CustomerID.Int64(), out.ServiceChanges))
	if err != nil {
		return nil, errors.Wrap(err, "query services")
	}
	out.Services = services
	return out, nil
}

func (s *Service) getFranchiseeOfCustomer(ctx context.Context, p customerParams) (any, error) {
	customer, err := s.store.LoadCustomer(ctx, p.CustomerID.Int64())
	if err != nil {
		return nil, err
	}
	if customer.PartnerID == 0 {
		return map[string]any{}, nil
	}
	return s.store.LoadPartner(ctx, customer.PartnerID)
}
