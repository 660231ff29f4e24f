// Package dispatchqueue records push intents in fcm_send_requests and
// announces each new one on a Redis stream for the dispatcher.
package dispatchqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/docstore"
	"recruit-notifier/internal/models"
)

// DefaultStream carries the id of every created DispatchRequest.
const DefaultStream = "fcm_send_requests:created"

// StreamField is the stream entry field holding the request id.
const StreamField = "id"

type Store interface {
	Create(ctx context.Context, collection, id string, value interface{}) (bool, error)
	Get(ctx context.Context, collection, id string, out interface{}) error
	List(ctx context.Context, collection string, q docstore.Query) ([]json.RawMessage, error)
	CountBy(ctx context.Context, collection, field string) (map[string]int64, error)
}

type Queue struct {
	store  Store
	rdb    redis.Cmdable
	stream string
	now    func() time.Time
	logger logger.Logger
}

func New(store Store, rdb redis.Cmdable, stream string, log logger.Logger) *Queue {
	if stream == "" {
		stream = DefaultStream
	}
	return &Queue{
		store:  store,
		rdb:    rdb,
		stream: stream,
		now:    time.Now,
		logger: logger.Component(log, "dispatch-queue"),
	}
}

// RequestID is the id of the request one event produces for one target.
func RequestID(eventKey string, target models.Target) string {
	return models.DeterministicID(eventKey, target.String())
}

// Enqueue stores req as pending and announces it. It never talks to the push
// provider. The returned id is valid even when the announcement failed: the
// row is durable and the sweeper announces it again.
func (q *Queue) Enqueue(ctx context.Context, req models.DispatchRequest) (string, error) {
	if !req.Target.Valid() {
		return "", errors.NewEnqueueError(req.Target.String(), fmt.Errorf("target needs exactly one of topic or token"))
	}
	if req.ID == "" {
		req.ID = models.NewEventID()
	}
	req.Status = models.DispatchPending
	req.CreatedAt = q.now().UTC()
	req.ProcessedAt = nil
	req.ProviderResponse = ""
	req.ErrorDetail = ""

	log := q.logger.WithFields(map[string]interface{}{
		"requestId":  req.ID,
		"targetType": req.Target.Type(),
	})

	created, err := q.store.Create(ctx, models.CollectionSendRequests, req.ID, req)
	if err != nil {
		log.Error("dispatch request insert failed", map[string]interface{}{"error": err})
		return "", errors.NewEnqueueError(req.Target.String(), err)
	}
	if !created {
		log.Debug("dispatch request already enqueued", nil)
		return req.ID, nil
	}

	if err := q.Announce(ctx, req.ID); err != nil {
		log.Warn("announcement failed, left for sweeper", map[string]interface{}{"error": err})
	}
	return req.ID, nil
}

// Announce publishes a request id on the stream.
func (q *Queue) Announce(ctx context.Context, id string) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{StreamField: id},
	}).Err()
}

func (q *Queue) Get(ctx context.Context, id string) (*models.DispatchRequest, error) {
	var req models.DispatchRequest
	if err := q.store.Get(ctx, models.CollectionSendRequests, id, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// StatusCounts is the operator view of the queue.
func (q *Queue) StatusCounts(ctx context.Context) (map[models.DispatchStatus]int64, error) {
	raw, err := q.store.CountBy(ctx, models.CollectionSendRequests, "status")
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}

	counts := map[models.DispatchStatus]int64{
		models.DispatchPending: 0,
		models.DispatchSent:    0,
		models.DispatchError:   0,
	}
	for status, n := range raw {
		counts[models.DispatchStatus(status)] += n
	}
	return counts, nil
}

// PendingOlderThan lists requests still pending after age, oldest first.
func (q *Queue) PendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]models.DispatchRequest, error) {
	docs, err := q.store.List(ctx, models.CollectionSendRequests, docstore.Query{
		Where:         &docstore.Match{Field: "status", Value: string(models.DispatchPending)},
		CreatedBefore: q.now().Add(-age),
		Limit:         limit,
	})
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}

	out := make([]models.DispatchRequest, 0, len(docs))
	for _, doc := range docs {
		var req models.DispatchRequest
		if err := json.Unmarshal(doc, &req); err != nil {
			q.logger.Warn("undecodable dispatch request skipped", map[string]interface{}{"error": err})
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// Sweep re-announces pending requests older than age and returns how many
// were announced.
func (q *Queue) Sweep(ctx context.Context, age time.Duration, limit int) (int, error) {
	stale, err := q.PendingOlderThan(ctx, age, limit)
	if err != nil {
		return 0, err
	}

	announced := 0
	for _, req := range stale {
		if err := q.Announce(ctx, req.ID); err != nil {
			return announced, fmt.Errorf("announce %s: %w", req.ID, err)
		}
		announced++
	}

	if announced > 0 {
		q.logger.Info("stale pending requests re-announced", map[string]interface{}{"count": announced})
	}
	return announced, nil
}
