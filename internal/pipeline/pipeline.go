// Package pipeline runs one domain event through audience resolution, the
// notification record fan-out and the push dispatch queue.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/common/metrics"
	"recruit-notifier/internal/models"
	"recruit-notifier/internal/pipeline/audience"
	"recruit-notifier/internal/pipeline/dispatchqueue"
	"recruit-notifier/internal/pipeline/writer"
)

type Resolver interface {
	Resolve(ctx context.Context, event models.Event) audience.Audience
}

type RecordWriter interface {
	Write(ctx context.Context, record models.NotificationRecord, recipients []string) writer.WriteResult
}

type Enqueuer interface {
	Enqueue(ctx context.Context, req models.DispatchRequest) (string, error)
}

// TokenLookup finds the device tokens a recipient registered.
type TokenLookup interface {
	TokensFor(ctx context.Context, recipientID string) ([]string, error)
}

type Config struct {
	// DirectPush also sends targeted events to each recipient's own devices.
	DirectPush bool
}

// Outcome summarizes one Handle call. It is returned as job variables.
type Outcome struct {
	EventID    string   `json:"eventId"`
	Kind       string   `json:"kind"`
	Fired      bool     `json:"fired"`
	SkipReason string   `json:"skipReason,omitempty"`
	RecordID   string   `json:"recordId,omitempty"`
	Recipients int      `json:"recipients"`
	Written    int      `json:"written"`
	Partial    bool     `json:"partial"`
	Enqueued   []string `json:"enqueued"`
	Errors     []string `json:"errors,omitempty"`
}

func (o *Outcome) addError(err error) {
	o.Errors = append(o.Errors, err.Error())
}

// result is the metric label for the outcome.
func (o *Outcome) result() string {
	switch {
	case !o.Fired && o.SkipReason != "":
		return "skipped"
	case len(o.Errors) > 0:
		return "degraded"
	default:
		return "delivered"
	}
}

type Pipeline struct {
	resolver Resolver
	writer   RecordWriter
	queue    Enqueuer
	tokens   TokenLookup
	config   Config
	now      func() time.Time
	tracer   trace.Tracer
	logger   logger.Logger
}

// New wires the pipeline. tokens may be nil when DirectPush is off.
func New(resolver Resolver, w RecordWriter, queue Enqueuer, tokens TokenLookup, cfg Config, log logger.Logger) *Pipeline {
	if tokens == nil {
		cfg.DirectPush = false
	}
	return &Pipeline{
		resolver: resolver,
		writer:   w,
		queue:    queue,
		tokens:   tokens,
		config:   cfg,
		now:      time.Now,
		tracer:   otel.Tracer("recruit-notifier/pipeline"),
		logger:   logger.Component(log, "pipeline"),
	}
}

// Handle never fails the caller. Every problem is logged and reported in
// the Outcome, and running it again for the same event id writes nothing new.
func (p *Pipeline) Handle(ctx context.Context, event models.Event) Outcome {
	if event.ID == "" {
		event.ID = models.NewEventID()
	}
	out := Outcome{EventID: event.ID, Kind: string(event.Kind), Enqueued: []string{}}

	ctx, span := p.tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("event.kind", out.Kind),
		attribute.String("event.id", event.ID),
	))
	defer span.End()
	defer func() {
		metrics.PipelineEvents.WithLabelValues(out.Kind, out.result()).Inc()
	}()

	log := p.logger.WithFields(event.LogFields())

	if err := event.Validate(); err != nil {
		out.SkipReason = audience.SkipInvalidEvent
		out.addError(errors.NewInvalidEventError(err.Error()))
		log.Warn("invalid event dropped", map[string]interface{}{"error": err})
		return out
	}

	aud := p.resolver.Resolve(ctx, event)
	if !aud.Fire {
		out.SkipReason = aud.SkipReason
		log.Debug("event does not notify", map[string]interface{}{"reason": aud.SkipReason})
		return out
	}
	out.Fired = true
	out.Recipients = len(aud.Recipients)
	metrics.FanoutRecipients.WithLabelValues(out.Kind).Observe(float64(len(aud.Recipients)))

	record := p.compose(event, aud)
	out.RecordID = record.ID

	res := p.writer.Write(ctx, record, aud.Recipients)
	out.Written = res.Written
	out.Partial = res.Partial
	if res.Err != nil {
		out.addError(res.Err)
		span.RecordError(res.Err)
	}

	data := pushData(event, record)
	for _, topic := range aud.Topics {
		p.enqueue(ctx, log, &out, event, record, models.Target{Topic: topic}, data)
	}

	if p.config.DirectPush && !record.Broadcast() {
		for _, recipient := range aud.Recipients {
			tokens, err := p.tokens.TokensFor(ctx, recipient)
			if err != nil {
				out.addError(err)
				log.Warn("device token lookup failed", map[string]interface{}{
					"recipientId": recipient,
					"error":       err,
				})
				continue
			}
			for _, token := range tokens {
				p.enqueue(ctx, log, &out, event, record, models.Target{Token: token}, data)
			}
		}
	}

	log.Info("event handled", map[string]interface{}{
		"recordId":   out.RecordID,
		"recipients": out.Recipients,
		"written":    out.Written,
		"enqueued":   len(out.Enqueued),
		"errors":     len(out.Errors),
	})
	return out
}

func (p *Pipeline) enqueue(ctx context.Context, log logger.Logger, out *Outcome, event models.Event, record models.NotificationRecord, target models.Target, data map[string]string) {
	id, err := p.queue.Enqueue(ctx, models.DispatchRequest{
		ID:     dispatchqueue.RequestID(event.ID, target),
		Target: target,
		Title:  record.Title,
		Body:   record.Message,
		Data:   data,
	})
	if err != nil {
		out.addError(err)
		log.Error("dispatch request not enqueued", map[string]interface{}{
			"target": target.String(),
			"error":  err,
		})
		return
	}
	out.Enqueued = append(out.Enqueued, id)
}

func (p *Pipeline) compose(event models.Event, aud audience.Audience) models.NotificationRecord {
	title, message := Texts(event, aud.UniversityName)
	createdAt := event.OccurredAt
	if createdAt.IsZero() {
		createdAt = p.now()
	}
	return models.NotificationRecord{
		ID:          models.DeterministicID(event.ID, "record"),
		Title:       title,
		Message:     message,
		Kind:        event.Kind,
		SubjectRefs: event.SubjectRefs(),
		CreatedAt:   createdAt.UTC(),
	}
}

// Texts returns the title and message shown for an event.
func Texts(event models.Event, universityName string) (string, string) {
	switch pl := event.Payload.(type) {
	case models.JobPostedPayload:
		msg := fmt.Sprintf("A new job \"%s\" has been posted", pl.Title)
		if universityName != "" {
			msg += " at " + universityName
		}
		return "New Job Available", msg + "."
	case models.ApplicantStatusChangedPayload:
		if pl.ToStatus == models.StatusInOnboarding {
			return "Onboarding Started", "Your onboarding has started. Check your onboarding tasks to get going."
		}
		return "Congratulations! You're Hired", "Your application was successful and you have been hired."
	case models.OnboardingTasksAddedPayload:
		n := pl.AddedCount()
		noun := "tasks"
		if n == 1 {
			noun = "task"
		}
		return "New Onboarding Tasks", fmt.Sprintf("You have %d new onboarding %s.", n, noun)
	default:
		return "", ""
	}
}

func pushData(event models.Event, record models.NotificationRecord) map[string]string {
	data := map[string]string{
		"kind":           string(event.Kind),
		"notificationId": record.ID,
	}
	for k, v := range record.SubjectRefs {
		data[k] = v
	}
	return data
}
