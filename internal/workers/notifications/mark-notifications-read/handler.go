// internal/workers/notifications/mark-notifications-read/handler.go
package marknotificationsread

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruit-notifier/internal/common/camunda"
	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/common/validation"
)

const TaskType = "mark-notifications-read"

type ReadMarker interface {
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

type Validator interface {
	ValidateJSON(taskType, variables string) *validation.ValidationResult
}

type Handler struct {
	config       *Config
	marker       ReadMarker
	validator    Validator
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(config *Config, m ReadMarker, v Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		marker:       m,
		validator:    v,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	err := json.Unmarshal([]byte(job.Variables), &input)
	if res := h.validator.ValidateJSON(TaskType, job.Variables); !res.Valid {
		err = errors.NewInvalidEventError(res.Error())
	}
	if err != nil {
		camunda.JobFailed(job, string(errors.AsStandard(err).Code))
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		camunda.JobFailed(job, string(errors.AsStandard(err).Code))
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	camunda.CompleteJob(client, job, output, h.logger)
}

// execute is idempotent: copies already read are not touched again.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	n, err := h.marker.MarkAllRead(ctx, input.RecipientID)
	if err != nil {
		return nil, err
	}
	return &Output{
		Updated:  n,
		MarkedAt: h.now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
