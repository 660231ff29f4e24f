package dispatcher

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"recruit-notifier/internal/common/metrics"
	"recruit-notifier/internal/pipeline/dispatchqueue"
)

// Sweeper re-announces requests that stayed pending too long.
type Sweeper interface {
	Sweep(ctx context.Context, age time.Duration, limit int) (int, error)
}

// Run consumes request ids from the stream until ctx is done. Each message
// is acknowledged only after its request reached a recorded outcome, so a
// crash leaves it pending in the group for reclaim.
func (d *Dispatcher) Run(ctx context.Context, rdb redis.Cmdable) error {
	if err := d.ensureGroup(ctx, rdb); err != nil {
		return err
	}

	d.logger.Info("dispatcher started", map[string]interface{}{
		"stream":      d.config.Stream,
		"group":       d.config.Group,
		"consumer":    d.config.Consumer,
		"concurrency": d.config.Concurrency,
	})

	var g errgroup.Group
	g.SetLimit(d.config.Concurrency)
	lastClaim := time.Now()

	for ctx.Err() == nil {
		if time.Since(lastClaim) >= d.config.ClaimIdle {
			d.reclaim(ctx, rdb, &g)
			lastClaim = time.Now()
		}

		streams, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.config.Group,
			Consumer: d.config.Consumer,
			Streams:  []string{d.config.Stream, ">"},
			Count:    int64(d.config.Concurrency),
			Block:    d.config.Block,
		}).Result()
		if err != nil {
			if stderrors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			d.logger.Error("stream read failed", map[string]interface{}{"error": err})
			if !sleep(ctx, time.Second) {
				break
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				d.spawn(ctx, rdb, &g, msg)
			}
		}
	}

	_ = g.Wait()
	d.logger.Info("dispatcher stopped", nil)
	return nil
}

// RunSweeper periodically re-announces stale pending requests until ctx is done.
func (d *Dispatcher) RunSweeper(ctx context.Context, sweeper Sweeper) {
	ticker := time.NewTicker(d.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.Sweep(ctx, d.config.SweepAge, d.config.SweepLimit)
			if err != nil {
				d.logger.Warn("sweep failed", map[string]interface{}{"error": err, "announced": n})
			}
		}
	}
}

func (d *Dispatcher) ensureGroup(ctx context.Context, rdb redis.Cmdable) error {
	err := rdb.XGroupCreateMkStream(ctx, d.config.Stream, d.config.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (d *Dispatcher) spawn(ctx context.Context, rdb redis.Cmdable, g *errgroup.Group, msg redis.XMessage) {
	// in-flight sends finish even when shutdown starts
	work := context.WithoutCancel(ctx)
	g.Go(func() error {
		metrics.DispatchInFlight.Inc()
		defer metrics.DispatchInFlight.Dec()
		d.handleMessage(work, rdb, msg)
		return nil
	})
}

func (d *Dispatcher) handleMessage(ctx context.Context, rdb redis.Cmdable, msg redis.XMessage) {
	id, _ := msg.Values[dispatchqueue.StreamField].(string)
	if id == "" {
		d.logger.Warn("stream entry without request id", map[string]interface{}{"messageId": msg.ID})
		d.ack(ctx, rdb, msg.ID)
		return
	}

	held, err := d.acquireLease(ctx, rdb, id, msg.ID)
	if err != nil {
		d.logger.Warn("dispatch lease unavailable, left unacknowledged", map[string]interface{}{
			"requestId": id,
			"error":     err,
		})
		return
	}
	if !held {
		// another entry for the same request is being sent right now
		d.logger.Debug("duplicate announcement dropped", map[string]interface{}{
			"requestId": id,
			"messageId": msg.ID,
		})
		d.ack(ctx, rdb, msg.ID)
		return
	}

	if _, err := d.Process(ctx, id); err != nil {
		// the lease stays until it expires so a duplicate cannot resend early
		d.logger.Warn("dispatch left unacknowledged", map[string]interface{}{
			"requestId": id,
			"error":     err,
		})
		return
	}
	d.releaseLease(ctx, rdb, id, msg.ID)
	d.ack(ctx, rdb, msg.ID)
}

func (d *Dispatcher) ack(ctx context.Context, rdb redis.Cmdable, messageID string) {
	if err := rdb.XAck(ctx, d.config.Stream, d.config.Group, messageID).Err(); err != nil {
		d.logger.Warn("stream ack failed", map[string]interface{}{"messageId": messageID, "error": err})
	}
}

// reclaim takes over entries another consumer read but never acknowledged.
func (d *Dispatcher) reclaim(ctx context.Context, rdb redis.Cmdable, g *errgroup.Group) {
	msgs, _, err := rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   d.config.Stream,
		Group:    d.config.Group,
		Consumer: d.config.Consumer,
		MinIdle:  d.config.ClaimIdle,
		Start:    "0-0",
		Count:    int64(d.config.Concurrency),
	}).Result()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			d.logger.Debug("reclaim skipped", map[string]interface{}{"error": err})
		}
		return
	}
	if len(msgs) > 0 {
		d.logger.Info("reclaimed idle stream entries", map[string]interface{}{"count": len(msgs)})
	}
	for _, msg := range msgs {
		d.spawn(ctx, rdb, g, msg)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
