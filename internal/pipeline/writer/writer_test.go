package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "recruit-notifier/internal/common/errors"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/docstore"
	"recruit-notifier/internal/models"
)

// memStore keeps documents keyed by collection and id.
type memStore struct {
	mu          sync.Mutex
	docs        map[string]map[string]interface{}
	batches     []int
	failCreate  map[string]error
	failBatchAt int // 1-based; zero never fails
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]map[string]interface{}{}, failCreate: map[string]error{}}
}

func (m *memStore) put(collection, id string, v interface{}) bool {
	if m.docs[collection] == nil {
		m.docs[collection] = map[string]interface{}{}
	}
	if _, ok := m.docs[collection][id]; ok {
		return false
	}
	m.docs[collection][id] = v
	return true
}

func (m *memStore) Create(ctx context.Context, collection, id string, value interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCreate[collection]; err != nil {
		return false, err
	}
	return m.put(collection, id, value), nil
}

func (m *memStore) CommitBatch(ctx context.Context, writes []docstore.Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(writes) > docstore.MaxBatchSize {
		return docstore.ErrBatchTooLarge
	}
	if m.failBatchAt == len(m.batches)+1 {
		return errors.New("transaction aborted")
	}
	m.batches = append(m.batches, len(writes))
	for _, w := range writes {
		m.put(w.Collection, w.ID, w.Value)
	}
	return nil
}

func (m *memStore) UpdateWhere(ctx context.Context, collection string, cond docstore.Match, patch map[string]interface{}) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, v := range m.docs[collection] {
		note, ok := v.(models.RecipientNotification)
		if !ok || fmt.Sprint(note.Read) != cond.Value {
			continue
		}
		note.Read = patch["read"].(bool)
		m.docs[collection][id] = note
		n++
	}
	return n, nil
}

// ==========================
// Test Helper Functions
// ==========================

func createTestRecord() models.NotificationRecord {
	return models.NotificationRecord{
		ID:        "rec-1",
		Title:     "New Job Available",
		Message:   `A new job "Backend Engineer" has been posted.`,
		Kind:      models.EventJobPosted,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func recipients(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("applicant-%03d", i)
	}
	return ids
}

// ==========================
// Write
// ==========================

func TestWriter_BatchedFanoutCompleteness(t *testing.T) {
	store := newMemStore()
	w := New(store, Config{FanoutThreshold: 10, BatchSize: 100}, logger.NewTestLogger(t))

	res := w.Write(context.Background(), createTestRecord(), recipients(250))

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, []int{100, 100, 50}, store.batches)
	assert.Equal(t, 250, res.Written)
	assert.False(t, res.Partial)
	assert.True(t, res.Created)

	assert.Len(t, store.docs[models.CollectionGeneralNotifications], 1)
	for _, id := range recipients(250) {
		list := store.docs[models.UserNotificationsCollection(id)]
		require.Len(t, list, 1, id)
		note := list["rec-1"].(models.RecipientNotification)
		assert.Equal(t, "rec-1", note.NotificationRecordID)
		assert.Equal(t, id, note.RecipientID)
	}
}

func TestWriter_SmallFanoutWritesIndividually(t *testing.T) {
	store := newMemStore()
	w := New(store, Config{FanoutThreshold: 10, BatchSize: 100}, logger.NewTestLogger(t))

	res := w.Write(context.Background(), createTestRecord(), []string{"u1", "u2", "u1", ""})

	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Intended)
	assert.Equal(t, 2, res.Written)
	assert.Zero(t, res.Chunks)
	assert.Empty(t, store.batches)
}

func TestWriter_CanonicalFailureAborts(t *testing.T) {
	store := newMemStore()
	store.failCreate[models.CollectionGeneralNotifications] = errors.New("connection refused")
	w := New(store, Config{FanoutThreshold: 10, BatchSize: 100}, logger.NewTestLogger(t))

	res := w.Write(context.Background(), createTestRecord(), recipients(50))

	require.Error(t, res.Err)
	assert.True(t, commonerrors.HasCode(res.Err, commonerrors.ErrCodeRecordWriteFailed))
	assert.Zero(t, res.Written)
	assert.Empty(t, store.batches)
	assert.Len(t, store.docs, 0)
}

func TestWriter_ChunkFailureStopsFanout(t *testing.T) {
	store := newMemStore()
	store.failBatchAt = 2
	w := New(store, Config{FanoutThreshold: 10, BatchSize: 100}, logger.NewTestLogger(t))

	res := w.Write(context.Background(), createTestRecord(), recipients(250))

	assert.True(t, res.Partial)
	assert.Equal(t, 100, res.Written)
	assert.Equal(t, 250, res.Intended)
	assert.Equal(t, 1, res.Chunks)
	assert.True(t, commonerrors.HasCode(res.Err, commonerrors.ErrCodeFanoutPartial))
	assert.Equal(t, []int{100}, store.batches)
}

func TestWriter_RedeliveryIsIdempotent(t *testing.T) {
	store := newMemStore()
	w := New(store, Config{FanoutThreshold: 10, BatchSize: 100}, logger.NewTestLogger(t))
	record := createTestRecord()
	record.Kind = models.EventOnboardingTasksAdded

	first := w.Write(context.Background(), record, []string{"u1"})
	second := w.Write(context.Background(), record, []string{"u1"})

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Len(t, store.docs[models.CollectionNotifications], 1)
	assert.Len(t, store.docs[models.UserNotificationsCollection("u1")], 1)
}

func TestWriter_BatchSizeCappedAtStoreLimit(t *testing.T) {
	store := newMemStore()
	w := New(store, Config{FanoutThreshold: 10, BatchSize: 5000}, logger.NewTestLogger(t))

	res := w.Write(context.Background(), createTestRecord(), recipients(1200))

	require.NoError(t, res.Err)
	assert.Equal(t, []int{500, 500, 200}, store.batches)
}

// ==========================
// MarkAllRead
// ==========================

func TestWriter_MarkAllRead(t *testing.T) {
	store := newMemStore()
	w := New(store, Config{FanoutThreshold: 10, BatchSize: 100}, logger.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		record := createTestRecord()
		record.ID = fmt.Sprintf("rec-%d", i)
		w.Write(context.Background(), record, []string{"u1"})
	}

	n, err := w.MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = w.MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = w.MarkAllRead(context.Background(), "")
	assert.Error(t, err)
}
