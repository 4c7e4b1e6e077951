package editing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/servicechange/internal/observability"
	"github.com/odyssey-erp/servicechange/internal/records"
	"github.com/odyssey-erp/servicechange/internal/records/memstore"
)

type alert struct {
	err     error
	message string
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert
}

func (r *recordingAlerter) Alert(_ context.Context, err error, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert{err: err, message: message})
}

type panickingStore struct {
	*memstore.Store
}

func (panickingStore) LoadPartner(context.Context, int64) (*records.Partner, error) {
	panic("partner index corrupted")
}

func newTestServer(t *testing.T, store records.Store) (*httptest.Server, *recordingAlerter) {
	t.Helper()
	alerts := &recordingAlerter{}
	h := NewHandler(NewService(store, nil, testLogger()), alerts, testLogger())
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, alerts
}

func send(t *testing.T, req *http.Request, target any) int {
	t.Helper()
	req.Header.Set(HeaderUserID, "42")
	req.Header.Set(HeaderUserRole, "sales")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	return resp.StatusCode
}

func do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	var body map[string]any
	status := send(t, req, &body)
	return status, body
}

func getRequest(t *testing.T, srv *httptest.Server, requestData string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/?requestData="+url.QueryEscape(requestData), nil)
	require.NoError(t, err)
	return req
}

func postRequest(t *testing.T, srv *httptest.Server, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandlerGetOperation(t *testing.T) {
	f := newFixture(t)
	srv, alerts := newTestServer(t, f.store)

	status, body := do(t, getRequest(t, srv, `{"operation":"getSalesRecord","requestParams":{"salesRecordId":601}}`))
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, customerID, body["customer_id"])
	assert.Empty(t, alerts.alerts)
}

func TestHandlerUserErrorsStayOK(t *testing.T) {
	f := newFixture(t)
	srv, alerts := newTestServer(t, f.store)

	status, body := do(t, postRequest(t, srv, `{"operation":"dropEverything"}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "POST operation [dropEverything] is not supported.", body["error"])

	status, body = do(t, getRequest(t, srv, `{"requestParams":{}}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "No operation specified.", body["error"])

	status, body = do(t, postRequest(t, srv, `{"operation":`))
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["error"])

	assert.Empty(t, alerts.alerts)
}

func TestHandlerPostOperation(t *testing.T) {
	f := newFixture(t)
	srv, _ := newTestServer(t, f.store)

	var message string
	status := send(t, postRequest(t, srv,
		`{"operation":"cancelChangesOfService","requestParams":{"serviceId":"801","commRegId":"701"}}`), &message)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Changes for service ID 801 has been cancelled.", message)

	_, err := f.store.LoadServiceChange(context.Background(), activeChange)
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestHandlerAlertsUnexpectedFailures(t *testing.T) {
	f := newFixture(t)
	f.store.FailUpdate(records.TypeCustomer, customerID, errors.New("connection reset"))
	srv, alerts := newTestServer(t, f.store)

	status, body := do(t, postRequest(t, srv,
		`{"operation":"updateServiceRatesOfCustomer","requestParams":{"customerId":501,"commRegId":701}}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["error"], "connection reset")

	require.Len(t, alerts.alerts, 1)
	assert.Contains(t, alerts.alerts[0].message, "POST operation [updateServiceRatesOfCustomer] failed for user #42")
}

func TestHandlerRecoversPanics(t *testing.T) {
	f := newFixture(t)
	srv, alerts := newTestServer(t, panickingStore{Store: f.store})

	status, body := do(t, getRequest(t, srv, `{"operation":"getFranchiseeOfCustomer","requestParams":{"customerId":501}}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["error"], "partner index corrupted")
	require.Len(t, alerts.alerts, 1)
}

func TestHandlerRequiresAuthenticatedUser(t *testing.T) {
	f := newFixture(t)
	srv, _ := newTestServer(t, f.store)

	resp, err := http.Get(srv.URL + "/api/?requestData=" + url.QueryEscape(`{"operation":"getCurrentUserDetails"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerCurrentUser(t *testing.T) {
	f := newFixture(t)
	srv, _ := newTestServer(t, f.store)

	_, body := do(t, getRequest(t, srv, `{"operation":"getCurrentUserDetails"}`))
	assert.EqualValues(t, 42, body["id"])
	assert.Equal(t, "sales", body["role"])
}

func TestHandlerRecordsOperationMetrics(t *testing.T) {
	f := newFixture(t)
	f.store.FailUpdate(records.TypeCustomer, customerID, errors.New("connection reset"))
	metrics := observability.NewMetrics()
	h := NewHandler(NewService(f.store, nil, testLogger()), &recordingAlerter{}, testLogger()).WithMetrics(metrics)
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	do(t, getRequest(t, srv, `{"operation":"getSalesRecord","requestParams":{"salesRecordId":601}}`))
	do(t, postRequest(t, srv, `{"operation":"dropEverything"}`))
	do(t, postRequest(t, srv,
		`{"operation":"updateServiceRatesOfCustomer","requestParams":{"customerId":501,"commRegId":701}}`))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, `servicechange_editing_operations_total{method="GET",operation="getSalesRecord",outcome="ok"} 1`)
	assert.Contains(t, body, `servicechange_editing_operations_total{method="POST",operation="unknown",outcome="rejected"} 1`)
	assert.Contains(t, body, `servicechange_editing_operations_total{method="POST",operation="updateServiceRatesOfCustomer",outcome="failed"} 1`)
	assert.NotContains(t, body, "dropEverything")
	assert.Contains(t, body, "servicechange_editing_operations_in_flight 0")
}
