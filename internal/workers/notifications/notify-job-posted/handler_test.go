package notifyjobposted

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/common/validation"
	"recruit-notifier/internal/models"
	"recruit-notifier/internal/pipeline"
	"recruit-notifier/pkg/registry"
)

// ==========================
// Mocks
// ==========================

type MockPipeline struct {
	events []models.Event
}

func (m *MockPipeline) Handle(_ context.Context, event models.Event) pipeline.Outcome {
	m.events = append(m.events, event)
	return pipeline.Outcome{EventID: event.ID, Kind: string(event.Kind), Fired: true, Enqueued: []string{"r1", "r2"}}
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		ElementInstanceKey: key * 100,
		ElementId:          "Activity_NotifyJobPosted",
		CustomHeaders:      "{}",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T) (*Handler, *MockPipeline) {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	v, err := validation.NewValidator(reg)
	require.NoError(t, err)

	p := &MockPipeline{}
	h := NewHandler(LoadConfig(), p, v, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return h, p
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	h, p := newTestHandler(t)

	out := h.Execute(context.Background(), &Input{JobID: "j1", UniversityID: "u1", Title: "Analyst"}, "evt-1")

	assert.True(t, out.Notification.Fired)
	assert.Len(t, out.Notification.Enqueued, 2)
	require.Len(t, p.events, 1)
	event := p.events[0]
	assert.Equal(t, models.EventJobPosted, event.Kind)
	assert.Equal(t, "evt-1", event.ID)
	assert.False(t, event.OccurredAt.IsZero())
	assert.Equal(t, models.JobPostedPayload{JobID: "j1", UniversityID: "u1", Title: "Analyst"}, event.Payload)
}

func TestEventID(t *testing.T) {
	job := createMockJob(7, map[string]interface{}{"jobId": "j1", "title": "Analyst"})
	assert.Equal(t, "notify-job-posted-700", eventID("", job))
	assert.Equal(t, "evt-9", eventID("evt-9", job))
}

func TestHandler_Rejected(t *testing.T) {
	h, p := newTestHandler(t)
	job := createMockJob(3, map[string]interface{}{"jobId": "j1"})

	res := h.validator.ValidateJSON(TaskType, job.Variables)
	require.False(t, res.Valid)

	out := h.rejected(job, errors.NewInvalidEventError(res.Error()))
	assert.False(t, out.Notification.Fired)
	assert.Equal(t, "notify-job-posted-300", out.Notification.EventID)
	require.Len(t, out.Notification.Errors, 1)
	assert.Contains(t, out.Notification.Errors[0], "INVALID_EVENT")
	assert.Contains(t, out.Notification.Errors[0], "title")
	assert.Empty(t, p.events)
}
