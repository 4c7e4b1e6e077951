package editing

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/servicechange/internal/billing"
	"github.com/odyssey-erp/servicechange/internal/records"
)

func TestVerifyParameters(t *testing.T) {
	f := newFixture(t)

	out, err := f.call(t, MethodPost, "verifyParameters", map[string]any{
		"customerId": "501", "salesRecordId": salesRecordID, "commRegId": commRegID,
	})
	require.NoError(t, err)
	assert.Equal(t, verifiedIDs{CustomerID: customerID, SalesRecordID: salesRecordID, CommRegID: commRegID}, out)

	foreign := f.store.PutSalesRecord(records.SalesRecord{CustomerID: 999})
	_, err = f.call(t, MethodPost, "verifyParameters", map[string]any{"customerId": customerID, "salesRecordId": foreign})
	requireUserError(t, err, fmt.Sprintf("IDs mismatched. Sales record #%d does not belong to customer #501.", foreign))

	completed := f.store.PutSalesRecord(records.SalesRecord{CustomerID: customerID, Completed: true})
	_, err = f.call(t, MethodPost, "verifyParameters", map[string]any{"customerId": customerID, "salesRecordId": completed})
	requireUserError(t, err, fmt.Sprintf("Sales Record #%d is already marked as Completed.", completed))

	stray := f.store.PutCommReg(records.CommReg{CustomerID: customerID, Status: records.CommRegSigned})
	_, err = f.call(t, MethodPost, "verifyParameters", map[string]any{
		"customerId": customerID, "salesRecordId": salesRecordID, "commRegId": stray,
	})
	requireUserError(t, err, fmt.Sprintf("IDs mismatched. Commencement Register #%d does not belong to sales record #601.", stray))
}

func TestSaveServiceCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.call(t, MethodPost, "saveService", map[string]any{
		"serviceData": map[string]any{
			"customer_id": customerID, "service_type_id": 7, "name": "EB", "price": "22.50", "frequency": "2,4",
		},
	})
	require.NoError(t, err)
	id := out.(int64)
	svc, err := f.store.LoadService(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "EB", svc.Name)
	assert.True(t, dec("22.5").Equal(svc.Price))
	assert.Equal(t, records.NewFrequency(records.Tuesday, records.Thursday), svc.Frequency)
	assert.Equal(t, records.ServiceCategoryServices, svc.Category)
	assert.False(t, svc.Active)

	out, err = f.call(t, MethodPost, "saveService", map[string]any{
		"serviceId": id, "serviceData": map[string]any{"id": 1, "price": "25"},
	})
	require.NoError(t, err)
	assert.Equal(t, id, out)
	svc, err = f.store.LoadService(ctx, id)
	require.NoError(t, err)
	assert.True(t, dec("25").Equal(svc.Price))
	assert.Equal(t, "EB", svc.Name)

	_, err = f.call(t, MethodPost, "saveService", map[string]any{"serviceData": map[string]any{"frequency": "9"}})
	require.True(t, errors.Is(err, records.ErrInvalidFrequency))
	assert.True(t, IsUserError(err))
}

func TestCancelPendingServiceKeepsActiveService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.call(t, MethodPost, "cancelPendingService", map[string]any{"serviceId": activeService, "commRegId": commRegID})
	require.NoError(t, err)
	assert.Equal(t, "Pending service ID 801 was not removed because it is active.", out)
	_, err = f.store.LoadServiceChange(ctx, activeChange)
	require.NoError(t, err)

	out, err = f.call(t, MethodPost, "cancelPendingService", map[string]any{"serviceId": pendingService, "commRegId": commRegID})
	require.NoError(t, err)
	assert.Equal(t, "Pending service ID 802 has been removed.", out)
	_, err = f.store.LoadService(ctx, pendingService)
	require.ErrorIs(t, err, records.ErrNotFound)
	_, err = f.store.LoadServiceChange(ctx, pendingChange)
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestCancelChangesOfService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := f.store.PutServiceChange(records.ServiceChange{ServiceID: activeService, CommRegID: 7777, Status: records.ChangeActive})

	out, err := f.call(t, MethodPost, "cancelChangesOfService", map[string]any{"serviceId": activeService, "commRegId": commRegID})
	require.NoError(t, err)
	assert.Equal(t, "Changes for service ID 801 has been cancelled.", out)

	_, err = f.store.LoadServiceChange(ctx, activeChange)
	require.ErrorIs(t, err, records.ErrNotFound)
	_, err = f.store.LoadServiceChange(ctx, other)
	require.NoError(t, err)
	_, err = f.store.LoadService(ctx, activeService)
	require.NoError(t, err)

	_, err = f.call(t, MethodPost, "cancelChangesOfService", map[string]any{"serviceId": activeService})
	requireUserError(t, err, "Parameter [commRegId] is required")
}

func TestSaveServiceChangeBypassesInactiveService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Delete(ctx, records.TypeServiceChange, pendingChange))

	out, err := f.call(t, MethodPost, "saveServiceChange", map[string]any{
		"serviceChangeData": map[string]any{
			"service_id":     pendingService,
			"new_price":      "20",
			"new_frequency":  "2",
			"change_type":    records.ChangeTypeNewCustomer,
			"effective_date": "2024-03-04T00:00:00.000",
		},
	})
	require.NoError(t, err)

	sc, err := f.store.LoadServiceChange(ctx, out.(int64))
	require.NoError(t, err)
	assert.Equal(t, customerID, sc.CustomerID)
	assert.Equal(t, commRegID, sc.CommRegID)
	assert.Equal(t, int64(3), sc.ServiceTypeID)
	assert.True(t, dec("15").Equal(sc.OldPrice))
	assert.True(t, dec("20").Equal(sc.NewPrice.Decimal))
	assert.Equal(t, records.ChangeScheduled, sc.Status)
	assert.Equal(t, testUserID, sc.CreatedBy)
	assert.Equal(t, records.DateOf(2024, 3, 4), sc.EffectiveDate)

	svc, err := f.store.LoadService(ctx, pendingService)
	require.NoError(t, err)
	assert.False(t, svc.Active, "bypass must restore the inactive flag")
}

func TestSaveServiceChangeLeavesServiceInactiveWhenActivationFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.FailUpdate(records.TypeService, pendingService, errors.New("locked"))

	_, err := f.call(t, MethodPost, "saveServiceChange", map[string]any{
		"serviceChangeData": map[string]any{"service_id": pendingService, "new_price": "20"},
	})
	require.Error(t, err)
	assert.False(t, IsUserError(err))

	changes, err := f.store.QueryServiceChanges(ctx, records.Where(records.FieldService, records.OpIs, pendingService))
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestSaveServiceChangeReportsSaveFailureAndRestoresService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.FailSave(records.TypeServiceChange, pendingChange, errors.New("disk full"))

	_, err := f.call(t, MethodPost, "saveServiceChange", map[string]any{
		"serviceChangeData": map[string]any{"internalid": pendingChange, "new_price": "20"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	svc, err := f.store.LoadService(ctx, pendingService)
	require.NoError(t, err)
	assert.False(t, svc.Active)
}

func TestSaveServiceChangeUpdatesByInternalID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.call(t, MethodPost, "saveServiceChange", map[string]any{
		"serviceChangeData": map[string]any{"internalid": "901", "new_price": "13"},
	})
	require.NoError(t, err)
	assert.Equal(t, activeChange, out)

	sc, err := f.store.LoadServiceChange(ctx, activeChange)
	require.NoError(t, err)
	assert.True(t, dec("13").Equal(sc.NewPrice.Decimal))
	assert.True(t, dec("10").Equal(sc.OldPrice))
	assert.Equal(t, int64(0), sc.CreatedBy)
}

func TestSaveServiceChangeRequiresService(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(t, MethodPost, "saveServiceChange", map[string]any{
		"serviceChangeData": map[string]any{"new_price": "13"},
	})
	requireUserError(t, err, "Parameter [service_id] is required")

	_, err = f.call(t, MethodPost, "saveServiceChange", map[string]any{})
	requireUserError(t, err, "Parameter [serviceChangeData] is required")
}

func TestCreateCommencementRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	params := map[string]any{
		"customerId":    customerID,
		"salesRecordId": salesRecordID,
		"commRegData":   map[string]any{"commencement_date": "2024-04-01T00:00:00.000", "in_outbound": "Inbound"},
	}

	_, err := f.call(t, MethodPost, "createCommencementRegister", params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIntegrity))
	assert.Equal(t, "Customer #501 already has an open Commencement Register #701 (Scheduled)", err.Error())

	require.NoError(t, f.store.UpdateFields(ctx, records.TypeCommReg, commRegID,
		records.Values{records.FieldStatus: records.CommRegSigned}))

	out, err := f.call(t, MethodPost, "createCommencementRegister", params)
	require.NoError(t, err)
	reg, err := f.store.LoadCommReg(ctx, out.(int64))
	require.NoError(t, err)
	assert.Equal(t, records.CommRegScheduled, reg.Status)
	assert.Equal(t, partnerID, reg.PartnerID)
	assert.Equal(t, customerID, reg.CustomerID)
	assert.Equal(t, salesRecordID, reg.SalesRecordID)
	assert.Equal(t, records.DateOf(2024, 4, 1), reg.CommencementDate)
	assert.Equal(t, "Inbound", reg.InOutbound)
}

func TestCreateCommencementRegisterRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.UpdateFields(ctx, records.TypeCommReg, commRegID,
		records.Values{records.FieldStatus: records.CommRegSigned}))

	_, err := f.call(t, MethodPost, "createCommencementRegister", map[string]any{
		"customerId":  customerID,
		"commRegData": map[string]any{"commencement_date": "2024-04-01", "status": int64(records.CommRegSigned)},
	})
	requireUserError(t, err, "A Commencement Register cannot be created with the status Signed")

	_, err = f.call(t, MethodPost, "createCommencementRegister", map[string]any{
		"customerId":  customerID,
		"commRegData": map[string]any{"status": int64(records.CommRegQuote)},
	})
	requireUserError(t, err, "Parameter [commencement_date] is required")

	foreign := f.store.PutSalesRecord(records.SalesRecord{CustomerID: 999})
	_, err = f.call(t, MethodPost, "createCommencementRegister", map[string]any{
		"customerId":    customerID,
		"salesRecordId": foreign,
		"commRegData":   map[string]any{"commencement_date": "2024-04-01"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDs mismatched")
}

func TestUpdateServiceRatesOfCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pending, err := f.store.QueryServiceChanges(ctx, billing.PendingChangesFilter(commRegID))
	require.NoError(t, err)
	services, err := f.store.QueryServices(ctx, billing.AssignedServicesFilter(customerID, pending))
	require.NoError(t, err)
	want := billing.ComputeMonthlyRates(pending, services)

	out, err := f.call(t, MethodPost, "updateServiceRatesOfCustomer", map[string]any{"customerId": customerID, "commRegId": commRegID})
	require.NoError(t, err)
	rates := out.(billing.Rates)
	assert.True(t, want.MonthlyServiceRate.Equal(rates.MonthlyServiceRate))
	// 12 x 3 days + 15 x 1 day, weekly, over 4.25 weeks
	assert.Equal(t, "216.75", rates.MonthlyServiceRate.StringFixed(2))

	customer, err := f.store.LoadCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.True(t, rates.MonthlyServiceRate.Equal(customer.MonthlyServiceRate))
	assert.True(t, rates.MonthlyExtraServiceRate.Equal(customer.MonthlyExtraServiceRate))
	assert.True(t, rates.MonthlyReducedServiceRate.Equal(customer.MonthlyReducedServiceRate))
}
