// internal/workers/notifications/notify-applicant-status-changed/handler.go
package notifystatuschanged

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruit-notifier/internal/common/camunda"
	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/common/validation"
	"recruit-notifier/internal/models"
	"recruit-notifier/internal/pipeline"
)

const TaskType = "notify-applicant-status-changed"

type EventPipeline interface {
	Handle(ctx context.Context, event models.Event) pipeline.Outcome
}

type Validator interface {
	ValidateJSON(taskType, variables string) *validation.ValidationResult
}

type Handler struct {
	config    *Config
	pipeline  EventPipeline
	validator Validator
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(config *Config, p EventPipeline, v Validator, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		pipeline:  p,
		validator: v,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:       time.Now,
	}
}

// Handle always completes the job. Notification problems are reported in
// the output variables.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	if res := h.validator.ValidateJSON(TaskType, job.Variables); !res.Valid {
		camunda.CompleteJob(client, job, h.rejected(job, errors.NewInvalidEventError(res.Error())), h.logger)
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		camunda.CompleteJob(client, job, h.rejected(job, errors.NewInvalidEventError(err.Error())), h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output := h.execute(ctx, &input, eventID(input.EventID, job))
	camunda.CompleteJob(client, job, output, h.logger)
}

func (h *Handler) execute(ctx context.Context, input *Input, id string) *Output {
	event := input.Event(id)
	event.OccurredAt = h.now().UTC()
	return &Output{Notification: h.pipeline.Handle(ctx, event)}
}

func (h *Handler) rejected(job entities.Job, err *errors.StandardError) *Output {
	h.logger.Warn("invalid job variables", map[string]interface{}{
		"jobKey":  job.Key,
		"details": err.Details,
	})
	return &Output{Notification: pipeline.Outcome{
		EventID:  eventID("", job),
		Kind:     string(models.EventApplicantStatusChanged),
		Enqueued: []string{},
		Errors:   []string{err.Error() + ": " + err.Details},
	}}
}

// eventID is stable across redeliveries of the same element instance.
func eventID(explicit string, job entities.Job) string {
	if explicit != "" {
		return explicit
	}
	return fmt.Sprintf("%s-%d", TaskType, job.ElementInstanceKey)
}

func (h *Handler) Execute(ctx context.Context, input *Input, id string) *Output {
	return h.execute(ctx, input, id)
}
