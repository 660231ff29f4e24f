// Package writer persists notification records and their per-recipient copies.
package writer

import (
	"context"
	"fmt"

	"recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/docstore"
	"recruit-notifier/internal/models"
)

// Store is the document store subset the writer needs.
type Store interface {
	Create(ctx context.Context, collection, id string, value interface{}) (bool, error)
	CommitBatch(ctx context.Context, writes []docstore.Write) error
	UpdateWhere(ctx context.Context, collection string, cond docstore.Match, patch map[string]interface{}) (int64, error)
}

type Config struct {
	// FanoutThreshold is the recipient count up to which copies are written
	// one by one instead of in batches.
	FanoutThreshold int
	// BatchSize is capped at docstore.MaxBatchSize.
	BatchSize int
}

// WriteResult reports how far a fan-out got.
type WriteResult struct {
	RecordID string
	// Created is false when the canonical record already existed, i.e. the
	// event was redelivered.
	Created  bool
	Intended int
	Written  int
	Chunks   int
	Partial  bool
	Err      error
}

type Writer struct {
	store  Store
	config Config
	logger logger.Logger
}

func New(store Store, cfg Config, log logger.Logger) *Writer {
	if cfg.BatchSize <= 0 || cfg.BatchSize > docstore.MaxBatchSize {
		cfg.BatchSize = docstore.MaxBatchSize
	}
	if cfg.FanoutThreshold < 0 {
		cfg.FanoutThreshold = 0
	}
	return &Writer{
		store:  store,
		config: cfg,
		logger: logger.Component(log, "writer"),
	}
}

// Write creates the canonical record and then one copy per recipient. If the
// canonical write fails nothing else is written. A failed batch stops the
// fan-out and leaves earlier batches committed.
func (w *Writer) Write(ctx context.Context, record models.NotificationRecord, recipients []string) WriteResult {
	recipients = dedupe(recipients)
	res := WriteResult{RecordID: record.ID, Intended: len(recipients)}
	log := w.logger.WithFields(map[string]interface{}{
		"recordId": record.ID,
		"kind":     string(record.Kind),
	})

	created, err := w.store.Create(ctx, record.Collection(), record.ID, record)
	if err != nil {
		res.Err = errors.NewRecordWriteError(err)
		log.Error("canonical record write failed", map[string]interface{}{"error": err})
		return res
	}
	res.Created = created

	if len(recipients) <= w.config.FanoutThreshold {
		w.writeEach(ctx, record, recipients, &res)
	} else {
		w.writeChunked(ctx, record, recipients, &res)
	}

	if res.Written < res.Intended {
		res.Partial = true
		if res.Err == nil {
			res.Err = errors.NewFanoutPartialError(res.Written, res.Intended, nil)
		}
		log.Warn("partial fan-out", map[string]interface{}{
			"written":  res.Written,
			"intended": res.Intended,
			"chunks":   res.Chunks,
			"error":    res.Err,
		})
		return res
	}

	log.Debug("fan-out complete", map[string]interface{}{
		"written": res.Written,
		"chunks":  res.Chunks,
		"created": res.Created,
	})
	return res
}

func (w *Writer) writeEach(ctx context.Context, record models.NotificationRecord, recipients []string, res *WriteResult) {
	var firstErr error
	for _, id := range recipients {
		if _, err := w.store.Create(ctx, models.UserNotificationsCollection(id), record.ID, record.CopyFor(id)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res.Written++
	}
	if firstErr != nil {
		res.Err = errors.NewFanoutPartialError(res.Written, res.Intended, firstErr)
	}
}

func (w *Writer) writeChunked(ctx context.Context, record models.NotificationRecord, recipients []string, res *WriteResult) {
	for start := 0; start < len(recipients); start += w.config.BatchSize {
		end := start + w.config.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		chunk := recipients[start:end]
		writes := make([]docstore.Write, 0, len(chunk))
		for _, id := range chunk {
			writes = append(writes, docstore.Write{
				Collection: models.UserNotificationsCollection(id),
				ID:         record.ID,
				Value:      record.CopyFor(id),
			})
		}

		if err := w.store.CommitBatch(ctx, writes); err != nil {
			res.Err = errors.NewFanoutPartialError(res.Written, res.Intended,
				fmt.Errorf("chunk %d: %w", res.Chunks+1, err))
			return
		}
		res.Chunks++
		res.Written += len(chunk)
	}
}

// MarkAllRead flags every unread copy in the recipient's list as read.
// Already read copies are left alone, so repeating it is harmless.
func (w *Writer) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if recipientID == "" {
		return 0, fmt.Errorf("recipient id is required")
	}

	n, err := w.store.UpdateWhere(ctx, models.UserNotificationsCollection(recipientID),
		docstore.Match{Field: "read", Value: "false"},
		map[string]interface{}{"read": true})
	if err != nil {
		return 0, errors.NewStoreUnavailableError(err)
	}

	w.logger.Info("notifications marked read", map[string]interface{}{
		"recipientId": recipientID,
		"updated":     n,
	})
	return n, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
