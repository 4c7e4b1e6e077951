// Package billing computes customer rates and keeps billing lines in line with services.
package billing

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// WeeksPerMonth converts weekly service revenue into a monthly figure.
var WeeksPerMonth = decimal.RequireFromString("4.25")

// FlatMonthlyServiceTypes are billed per month rather than per occurrence.
// 30 is the fixed charge, 31-38 are package items.
var FlatMonthlyServiceTypes = map[int64]struct{}{
	30: {}, 31: {}, 32: {}, 33: {}, 34: {}, 35: {}, 36: {}, 37: {}, 38: {},
}

var (
	extraChangeTypes   = []string{records.ChangeTypeExtraService, records.ChangeTypeIncreaseOfFrequency}
	reducedChangeTypes = []string{records.ChangeTypeReductionOfService, records.ChangeTypePriceDecrease, records.ChangeTypeDecreaseOfFrequency}
)

// IsFlatMonthly reports whether the service type is priced per month.
func IsFlatMonthly(serviceType int64) bool {
	_, ok := FlatMonthlyServiceTypes[serviceType]
	return ok
}

// Rates holds a customer's aggregate monthly figures.
type Rates struct {
	MonthlyServiceRate        decimal.Decimal `json:"monthlyServiceRate"`
	MonthlyExtraServiceRate   decimal.Decimal `json:"monthlyExtraServiceRate"`
	MonthlyReducedServiceRate decimal.Decimal `json:"monthlyReducedServiceRate"`
}

// Values maps the rates onto customer fields.
func (r Rates) Values() records.Values {
	return records.Values{
		records.FieldMonthlyRate:   r.MonthlyServiceRate,
		records.FieldMonthlyExtra:  r.MonthlyExtraServiceRate,
		records.FieldMonthlyReduce: r.MonthlyReducedServiceRate,
	}
}

type rateItem struct {
	price       decimal.Decimal
	frequency   records.Frequency
	serviceType int64
	changeType  string
}

// ComputeMonthlyRates totals pending service changes and assigned services.
// A service with a pending change in changes is counted once, with the change's price,
// frequency and type taking precedence.
func ComputeMonthlyRates(changes []records.ServiceChange, services []records.Service) Rates {
	byService := lo.SliceToMap(services, func(s records.Service) (int64, records.Service) {
		return s.ID, s
	})
	changed := make(map[int64]struct{}, len(changes))

	items := make([]rateItem, 0, len(changes)+len(services))
	for _, sc := range changes {
		svc, hasService := byService[sc.ServiceID]
		item := rateItem{
			frequency:   sc.NewFrequency,
			serviceType: sc.ServiceTypeID,
			changeType:  sc.ChangeType,
		}
		switch {
		case sc.NewPrice.Valid && !sc.NewPrice.Decimal.IsZero():
			item.price = sc.NewPrice.Decimal
		case hasService:
			item.price = svc.Price
		}
		if hasService {
			if item.serviceType == 0 {
				item.serviceType = svc.ServiceTypeID
			}
			changed[sc.ServiceID] = struct{}{}
		}
		items = append(items, item)
	}
	for _, svc := range services {
		if _, ok := changed[svc.ID]; ok {
			continue
		}
		items = append(items, rateItem{
			price:       svc.Price,
			frequency:   svc.Frequency,
			serviceType: svc.ServiceTypeID,
		})
	}

	rates := Rates{
		MonthlyServiceRate:        decimal.Zero,
		MonthlyExtraServiceRate:   decimal.Zero,
		MonthlyReducedServiceRate: decimal.Zero,
	}
	for _, item := range items {
		occurrences := decimal.NewFromInt(int64(item.frequency.Count()))
		weekly := item.price.Mul(occurrences)
		weeklyExtra, weeklyReduced := decimal.Zero, decimal.Zero
		if lo.Contains(extraChangeTypes, item.changeType) {
			weeklyExtra = weekly
		}
		if lo.Contains(reducedChangeTypes, item.changeType) {
			weeklyReduced = weekly
		}

		flat := IsFlatMonthly(item.serviceType)
		rates.MonthlyServiceRate = rates.MonthlyServiceRate.Add(monthly(item.price, weekly, flat || item.frequency.Has(records.Adhoc)))
		rates.MonthlyExtraServiceRate = rates.MonthlyExtraServiceRate.Add(monthly(item.price, weeklyExtra, flat && weeklyExtra.IsPositive()))
		rates.MonthlyReducedServiceRate = rates.MonthlyReducedServiceRate.Add(monthly(item.price, weeklyReduced, flat && weeklyReduced.IsPositive()))
	}
	return rates
}

func monthly(price, weekly decimal.Decimal, flat bool) decimal.Decimal {
	if flat {
		return price
	}
	return weekly.Mul(WeeksPerMonth)
}

// PendingChangesFilter selects the service changes counted for a register.
func PendingChangesFilter(commRegID int64) records.Filter {
	return records.And(
		records.Where(records.FieldCommReg, records.OpIs, commRegID),
		records.Where(records.FieldStatus, records.OpAnyOf, records.ChangeScheduled, records.ChangeQuote),
		records.Where(records.FieldInactive, records.OpIs, false),
	)
}

// AssignedServicesFilter selects the customer's active services plus any inactive
// service targeted by one of the pending changes.
func AssignedServicesFilter(customerID int64, pending []records.ServiceChange) records.Filter {
	active := records.Where(records.FieldActive, records.OpIs, true)
	if len(pending) > 0 {
		ids := lo.Uniq(lo.Map(pending, func(sc records.ServiceChange, _ int) any { return sc.ServiceID }))
		active = records.Or(active, records.Where(records.FieldID, records.OpAnyOf, ids...))
	}
	return records.And(
		records.Where(records.FieldCustomer, records.OpIs, customerID),
		records.Where(records.FieldCategory, records.OpIs, records.ServiceCategoryServices),
		active,
	)
}
