// internal/workers/notifications/register-push-token/handler.go
package registerpushtoken

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
	"recruit-notifier/internal/pipeline/subscription"
)

const TaskType = "register-push-token"

type Subscriber interface {
	Subscribe(ctx context.Context, caller subscription.Caller, token, role string, prefs subscription.Preferences) (subscription.Result, error)
}

type Validator interface {
	ValidateJSON(taskType, variables string) *validation.ValidationResult
}

type Handler struct {
	config       *Config
	subscriber   Subscriber
	validator    Validator
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(config *Config, s Subscriber, v Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		subscriber:   s,
		validator:    v,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
		now:          time.Now,
	}
}

// Handle serves a caller request, so unlike the event workers it throws
// UNAUTHENTICATED and MISSING_DELIVERY_TOKEN back to the process.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if res := h.validator.ValidateJSON(TaskType, job.Variables); !res.Valid {
		h.fail(ctx, client, job, errors.NewInvalidEventError(res.Error()))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewInvalidEventError(err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	camunda.CompleteJob(client, job, output, h.logger)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	role := input.Role
	if role == "" {
		role = h.config.DefaultRole
	}

	res, err := h.subscriber.Subscribe(ctx,
		subscription.Caller{AccessToken: input.AccessToken},
		input.DeliveryToken,
		role,
		subscription.Preferences{Universities: input.Universities},
	)
	if err != nil {
		return nil, err
	}

	return &Output{
		Subscribed:   res.Subscribed,
		Failed:       res.Failed,
		RegisteredAt: h.now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	camunda.JobFailed(job, string(errors.AsStandard(err).Code))
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
