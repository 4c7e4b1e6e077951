package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/servicechange/internal/editing"
	"github.com/odyssey-erp/servicechange/internal/observability"
	"github.com/odyssey-erp/servicechange/internal/records/memstore"
	"github.com/odyssey-erp/servicechange/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "0 3 * * *", cfg.TransitionCron)
	assert.Equal(t, 15, cfg.JudgementDay)
	assert.Equal(t, 10*time.Minute, cfg.LookupCacheTTL)
	assert.Equal(t, "Australia/Sydney", cfg.Location().String())
	assert.False(t, cfg.Mailer().Enabled)

	tc := cfg.Transition()
	assert.Equal(t, cfg.Location(), tc.Location)
	assert.Equal(t, int64(0), tc.PartnerID)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TRANSITION_TIMEZONE", "UTC")
	t.Setenv("FRANCHISEE_ID", "435")
	t.Setenv("REPORT_RECIPIENTS", "ops@example.com,billing@example.com")
	t.Setenv("MAIL_ENABLED", "true")
	t.Setenv("RESEND_API_KEY", "re_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, int64(435), cfg.Transition().PartnerID)
	assert.Equal(t, []string{"ops@example.com", "billing@example.com"}, cfg.ReportRecipients)
	assert.True(t, cfg.Mailer().Enabled)

	t.Setenv("ODYSSEY_TEST_MODE", "1")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Mailer().Enabled)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("TRANSITION_TIMEZONE", "Mars/Olympus")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("TRANSITION_TIMEZONE", "UTC")
	t.Setenv("JUDGEMENT_DAY", "31")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("JUDGEMENT_DAY", "15")
	t.Setenv("MAIL_ENABLED", "true")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf).Info("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "production", line["env"])

	buf.Reset()
	newLogger(nil, &buf).Debug("verbose")
	assert.Contains(t, buf.String(), "msg=verbose")
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := editing.NewService(memstore.New(), nil, logger)
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", AppRateLimit: 1000},
		EditingHandler: editing.NewHandler(svc, nil, logger),
		JobHandler:     jobs.NewHandler(nil, logger),
		Metrics:        observability.NewMetrics(),
	})
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Ratelimit-Limit"))
}

func TestRouterMountsOperationsAndJobs(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/?requestData="+url.QueryEscape(`{"operation":"getCurrentUserDetails"}`), nil)
	req.Header.Set(editing.HeaderUserID, "7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":7,"role":""}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "servicechange_http_requests_total")
}

func TestRouterUnknownRouteIsProblem(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.EqualValues(t, http.StatusNotFound, problem["status"])
	assert.Equal(t, "/nowhere", problem["detail"])
}
