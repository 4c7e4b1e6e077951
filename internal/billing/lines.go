package billing

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// ReportLine describes one service billed to a customer after regeneration.
type ReportLine struct {
	Name      string
	Price     string
	Frequency string
}

// Report is the outcome of regenerating one customer's billing lines.
type Report struct {
	CustomerID   int64
	CustomerName string
	Lines        []ReportLine
}

// Regenerator rewrites customer billing lines from their active services.
type Regenerator struct {
	store  records.Store
	logger *slog.Logger
}

// NewRegenerator constructs a Regenerator.
func NewRegenerator(store records.Store, logger *slog.Logger) *Regenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Regenerator{store: store, logger: logger}
}

// ActiveServicesFilter selects the services that produce billing lines.
func ActiveServicesFilter(customerID int64) records.Filter {
	return records.And(
		records.Where(records.FieldCustomer, records.OpIs, customerID),
		records.Where(records.FieldActive, records.OpIs, true),
		records.Where(records.FieldCategory, records.OpIs, records.ServiceCategoryServices),
	)
}

// Regenerate replaces every billing line of the customer with one line per active
// service and saves the customer once. On a failed save the stored lines are kept.
func (r *Regenerator) Regenerate(ctx context.Context, customerID int64) (*Report, error) {
	customer, err := r.store.LoadCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrapf(err, "load customer %d", customerID)
	}
	for i := customer.LineCount() - 1; i >= 0; i-- {
		customer.RemoveLine(i)
	}

	services, err := r.store.QueryServices(ctx, ActiveServicesFilter(customerID))
	if err != nil {
		return nil, errors.Wrapf(err, "query services of customer %d", customerID)
	}
	for _, svc := range services {
		customer.AddLine(records.BillingLine{
			ItemID:     svc.ServiceTypeID,
			PriceLevel: records.PriceLevelCustom,
			Rate:       svc.Price,
		})
	}

	if err := r.store.SaveCustomer(ctx, customer); err != nil {
		return nil, errors.Wrapf(err, "save billing lines of customer %d", customerID)
	}
	r.logger.Info("billing lines regenerated",
		slog.Int64("customer_id", customerID),
		slog.Int("lines", customer.LineCount()))

	return &Report{
		CustomerID:   customer.ID,
		CustomerName: customer.CompanyName,
		Lines: lo.Map(services, func(svc records.Service, _ int) ReportLine {
			return ReportLine{
				Name:      svc.Name,
				Price:     svc.Price.StringFixed(2),
				Frequency: svc.Frequency.Labels(),
			}
		}),
	}, nil
}
