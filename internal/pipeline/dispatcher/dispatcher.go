// Package dispatcher turns pending DispatchRequests into push sends and
// records each terminal status exactly once.
package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/common/metrics"
	"recruit-notifier/internal/docstore"
	"recruit-notifier/internal/models"
	"recruit-notifier/internal/push"
)

// Store is the document store subset the dispatcher needs.
type Store interface {
	Get(ctx context.Context, collection, id string, out interface{}) error
	UpdateIf(ctx context.Context, collection, id string, cond docstore.Match, patch map[string]interface{}) (bool, error)
}

// TokenRemover forgets a device token the provider no longer accepts.
type TokenRemover interface {
	RemoveToken(ctx context.Context, token string) (int64, error)
}

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped" // already terminal, or another worker won the race
	OutcomeMissing Outcome = "missing"
)

type Result struct {
	ID               string
	Outcome          Outcome
	ProviderResponse string
	ErrorDetail      string
}

type Dispatcher struct {
	store    Store
	provider push.Provider
	tokens   TokenRemover
	config   Config
	now      func() time.Time
	tracer   trace.Tracer
	logger   logger.Logger
}

// New builds a dispatcher. tokens may be nil, in which case invalid tokens
// are only logged.
func New(store Store, provider push.Provider, tokens TokenRemover, cfg Config, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		provider: provider,
		tokens:   tokens,
		config:   cfg.withDefaults(),
		now:      time.Now,
		tracer:   otel.Tracer("recruit-notifier/dispatcher"),
		logger:   logger.Component(log, "dispatcher"),
	}
}

// Process handles one DispatchRequest. Running it again for the same id is a
// no-op once the request is terminal. An error means the outcome could not
// be recorded and the request should be offered again later.
func (d *Dispatcher) Process(ctx context.Context, id string) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.process", trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()

	res := Result{ID: id}
	log := d.logger.WithFields(map[string]interface{}{"requestId": id})

	var req models.DispatchRequest
	if err := d.store.Get(ctx, models.CollectionSendRequests, id, &req); err != nil {
		if stderrors.Is(err, docstore.ErrNotFound) {
			log.Warn("dispatch request not found", nil)
			res.Outcome = OutcomeMissing
			return res, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		return res, errors.NewStoreUnavailableError(err)
	}

	if req.Status != models.DispatchPending {
		log.Debug("dispatch request already handled", map[string]interface{}{"status": string(req.Status)})
		res.Outcome = OutcomeSkipped
		metrics.DispatchRequests.WithLabelValues(string(res.Outcome), req.Target.Type()).Inc()
		return res, nil
	}

	targetType := req.Target.Type()
	span.SetAttributes(attribute.String("target.type", targetType))

	sendCtx, cancel := context.WithTimeout(ctx, d.config.ProviderTimeout)
	start := time.Now()
	messageID, sendErr := d.provider.Send(sendCtx, push.Message{
		Target: req.Target,
		Title:  req.Title,
		Body:   req.Body,
		Data:   req.Data,
	})
	cancel()
	metrics.DispatchDuration.WithLabelValues(targetType).Observe(time.Since(start).Seconds())

	processedAt := d.now().UTC()
	patch := map[string]interface{}{"processedAt": processedAt}
	if sendErr == nil {
		res.Outcome = OutcomeSent
		res.ProviderResponse = messageID
		patch["status"] = models.DispatchSent
		patch["providerResponse"] = messageID
	} else {
		res.Outcome = OutcomeError
		res.ErrorDetail = errorDetail(sendErr)
		patch["status"] = models.DispatchError
		patch["errorDetail"] = res.ErrorDetail
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, res.ErrorDetail)
	}

	won, err := d.store.UpdateIf(ctx, models.CollectionSendRequests, id,
		docstore.Match{Field: "status", Value: string(models.DispatchPending)}, patch)
	if err != nil {
		log.Error("terminal status write failed", map[string]interface{}{
			"error":   err,
			"outcome": string(res.Outcome),
		})
		return res, errors.NewStoreUnavailableError(err)
	}
	if !won {
		log.Info("dispatch request finished elsewhere", nil)
		res.Outcome = OutcomeSkipped
		metrics.DispatchRequests.WithLabelValues(string(res.Outcome), targetType).Inc()
		return res, nil
	}

	metrics.DispatchRequests.WithLabelValues(string(res.Outcome), targetType).Inc()

	if sendErr != nil {
		log.Warn("push send failed", map[string]interface{}{
			"target": req.Target.String(),
			"detail": res.ErrorDetail,
		})
		if push.IsInvalidToken(sendErr) && req.Target.Token != "" {
			d.forgetToken(ctx, log, req.Target.Token)
		}
		return res, nil
	}

	log.Info("push sent", map[string]interface{}{
		"target":           req.Target.String(),
		"providerResponse": messageID,
	})
	return res, nil
}

func (d *Dispatcher) forgetToken(ctx context.Context, log logger.Logger, token string) {
	if d.tokens == nil {
		return
	}
	n, err := d.tokens.RemoveToken(ctx, token)
	if err != nil {
		log.Warn("invalid token cleanup failed", map[string]interface{}{"error": err})
		return
	}
	log.Info("invalid token removed", map[string]interface{}{"subscriptions": n})
}

func errorDetail(err error) string {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s: %v", errors.ErrCodeProviderTimeout, err)
	}
	return fmt.Sprintf("%s: %v", errors.ErrCodeDispatchFailed, err)
}
