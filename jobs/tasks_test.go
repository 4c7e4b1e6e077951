package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks  []*asynq.Task
	closed bool
	err    error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error {
	f.closed = true
	return nil
}

func TestClientSendReportQueuesEmail(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	err := client.SendReport(context.Background(), []string{"billing@example.com"}, "[Financial Items Update][4/3/2024]", "<p>ok</p>")
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskTypeSendEmail, enq.tasks[0].Type())

	var payload SendEmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, []string{"billing@example.com"}, payload.To)
	assert.Equal(t, "<p>ok</p>", payload.Body)

	require.NoError(t, client.Close())
	assert.True(t, enq.closed)
}

func TestClientEnqueueTransitionValidatesDate(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	_, err := client.EnqueueTransition(context.Background(), TransitionPayload{ReferenceDate: "04/03/2024"})
	require.Error(t, err)
	assert.Empty(t, enq.tasks)

	info, err := client.EnqueueTransition(context.Background(), TransitionPayload{ReferenceDate: "2024-03-04"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeTransition, info.Type)
	require.Len(t, enq.tasks, 1)
}

func TestTransitionPayloadDate(t *testing.T) {
	day, ok, err := TransitionPayload{}.Date()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, day.IsZero())

	day, ok, err = TransitionPayload{ReferenceDate: "2024-03-15"}.Date()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), day)
}

func TestMailHandler(t *testing.T) {
	rec := &fakeNotifier{}
	h := &MailHandler{Notifier: rec, Logger: discardLogger()}

	task, err := NewSendEmailTask(SendEmailPayload{To: []string{"a@example.com"}, Subject: "s", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), task))
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "s", rec.sent[0].subject)

	err = h.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	empty, err := NewSendEmailTask(SendEmailPayload{Subject: "s"})
	require.NoError(t, err)
	assert.ErrorIs(t, h.Handle(context.Background(), empty), asynq.SkipRetry)

	rec.err = errors.New("provider down")
	assert.Error(t, h.Handle(context.Background(), task))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, discardLogger()).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rec
}

func TestHealthReportsQueue(t *testing.T) {
	rec := serveHealth(t, fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Failed: 1}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Failed: 1}, body)
}

func TestHealthTreatsMissingQueueAsEmpty(t *testing.T) {
	rec := serveHealth(t, fakeInspector{err: asynq.ErrQueueNotFound})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":0`)
}

func TestHealthUnavailable(t *testing.T) {
	rec := serveHealth(t, fakeInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
