package editing

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/servicechange/internal/records"
)

func TestUpdateEffectiveDateCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ceased := f.store.PutServiceChange(records.ServiceChange{
		ServiceID: activeService, CommRegID: commRegID, Status: records.ChangeCeased, EffectiveDate: records.DateOf(2023, 1, 2),
	})

	out, err := f.call(t, MethodPost, "updateEffectiveDate", map[string]any{
		"commRegId": commRegID, "effectiveDate": "2024-04-08T00:00:00.000",
	})
	require.NoError(t, err)
	assert.Equal(t, "Effective date has been set to 2024-04-08", out)

	want := records.DateOf(2024, 4, 8)
	for _, id := range []int64{activeChange, pendingChange} {
		sc, err := f.store.LoadServiceChange(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, sc.EffectiveDate, "change %d", id)
	}
	sc, err := f.store.LoadServiceChange(ctx, ceased)
	require.NoError(t, err)
	assert.Equal(t, records.DateOf(2023, 1, 2), sc.EffectiveDate)

	reg, err := f.store.LoadCommReg(ctx, commRegID)
	require.NoError(t, err)
	assert.Equal(t, want, reg.CommencementDate)
}

func TestUpdateEffectiveDateRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, MethodPost, "updateEffectiveDate", map[string]any{"commRegId": commRegID, "effectiveDate": "2024-04-08"})
	requireUserError(t, err, "Effective date [2024-04-08] is not a valid date")

	_, err = f.call(t, MethodPost, "updateEffectiveDate", map[string]any{"effectiveDate": "2024-04-08T00:00:00.000"})
	requireUserError(t, err, "Commencement Register ID not specified")

	_, err = f.call(t, MethodPost, "updateTrialEndDate", map[string]any{"commRegId": commRegID, "trialEndDate": "soon"})
	requireUserError(t, err, "Trial expiry date [soon] is not a valid date")

	_, err = f.call(t, MethodPost, "updateTrialEndDate", map[string]any{
		"commRegId": commRegID, "trialEndDate": "2024-04-08T00:00:00.000", "billingStartDate": "later",
	})
	requireUserError(t, err, "Billing start date [later] is not a valid date")
}

func TestUpdateTrialEndDateSetsBillingStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.call(t, MethodPost, "updateTrialEndDate", map[string]any{
		"commRegId":        commRegID,
		"trialEndDate":     "2024-04-14T00:00:00.000",
		"billingStartDate": "2024-04-15T00:00:00.000",
	})
	require.NoError(t, err)
	assert.Equal(t, "Trial end date has been set to 2024-04-14", out)

	trialEnd, billingStart := records.DateOf(2024, 4, 14), records.DateOf(2024, 4, 15)
	for _, id := range []int64{activeChange, pendingChange} {
		sc, err := f.store.LoadServiceChange(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, sc.TrialEndDate)
		require.NotNil(t, sc.BillingStartDate)
		assert.Equal(t, trialEnd, *sc.TrialEndDate)
		assert.Equal(t, billingStart, *sc.BillingStartDate)
	}
	reg, err := f.store.LoadCommReg(ctx, commRegID)
	require.NoError(t, err)
	require.True(t, reg.IsFreeTrial())
	assert.Equal(t, trialEnd, *reg.TrialExpiryDate)
	assert.Equal(t, billingStart, *reg.BillingStartDate)
}

func TestDateShiftReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.FailUpdate(records.TypeServiceChange, pendingChange, errors.New("row locked"))

	_, err := f.call(t, MethodPost, "updateEffectiveDate", map[string]any{
		"commRegId": commRegID, "effectiveDate": "2024-04-08T00:00:00.000",
	})
	require.Error(t, err)
	assert.False(t, IsUserError(err))

	var partial *PartialUpdateError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []Target{{Type: records.TypeServiceChange, ID: activeChange}}, partial.Updated)
	assert.Equal(t, Target{Type: records.TypeServiceChange, ID: pendingChange}, partial.Failed)
	assert.Equal(t, []Target{{Type: records.TypeCommReg, ID: commRegID}}, partial.Skipped)
	assert.Equal(t,
		"update of service_change #902 failed: row locked. Updated: service_change #901. "+
			"Not updated: service_change #902, commencement_register #701",
		err.Error())

	updated, err := f.store.LoadServiceChange(ctx, activeChange)
	require.NoError(t, err)
	assert.Equal(t, records.DateOf(2024, 4, 8), updated.EffectiveDate)
	reg, err := f.store.LoadCommReg(ctx, commRegID)
	require.NoError(t, err)
	assert.Equal(t, records.DateOf(2024, 3, 4), reg.CommencementDate)
}

func TestDateShiftChecksTargetsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.call(t, MethodPost, "updateEffectiveDate", map[string]any{
		"commRegId": 9999, "effectiveDate": "2024-04-08T00:00:00.000",
	})
	require.Error(t, err)
	assert.True(t, IsUserError(err))

	sc, err := f.store.LoadServiceChange(ctx, activeChange)
	require.NoError(t, err)
	assert.Equal(t, records.DateOf(2024, 3, 4), sc.EffectiveDate)
}
