package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-notifier/internal/common/logger"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, time.Second, logger.NewTestLogger(t)), mock
}

type doc struct {
	Status string `json:"status"`
}

func TestStore_Create(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "new document", affected: 1, want: true},
		{name: "already present", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newTestStore(t)
			mock.ExpectExec(`INSERT INTO documents`).
				WithArgs("fcm_send_requests", "req-1", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			created, err := store.Create(context.Background(), "fcm_send_requests", "req-1", doc{Status: "pending"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Get(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT data FROM documents`).
		WithArgs("fcm_send_requests", "req-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"status":"sent"}`)))
	mock.ExpectQuery(`SELECT data FROM documents`).
		WithArgs("fcm_send_requests", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	var got doc
	require.NoError(t, store.Get(context.Background(), "fcm_send_requests", "req-1", &got))
	assert.Equal(t, "sent", got.Status)

	err := store.Get(context.Background(), "fcm_send_requests", "missing", &got)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitBatch(t *testing.T) {
	t.Run("all writes in one transaction", func(t *testing.T) {
		store, mock := newTestStore(t)
		writes := make([]Write, 3)
		mock.ExpectBegin()
		for i := range writes {
			writes[i] = Write{Collection: fmt.Sprintf("users/u%d/notifications", i), ID: "rec-1", Value: doc{}}
			mock.ExpectExec(`INSERT INTO documents`).
				WithArgs(writes[i].Collection, "rec-1", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		require.NoError(t, store.CommitBatch(context.Background(), writes))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed write rolls back", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO documents`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO documents`).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := store.CommitBatch(context.Background(), []Write{
			{Collection: "users/a/notifications", ID: "rec-1", Value: doc{}},
			{Collection: "users/b/notifications", ID: "rec-1", Value: doc{}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("oversized batch is rejected", func(t *testing.T) {
		store, mock := newTestStore(t)
		err := store.CommitBatch(context.Background(), make([]Write, MaxBatchSize+1))
		assert.True(t, errors.Is(err, ErrBatchTooLarge))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_UpdateIf(t *testing.T) {
	store, mock := newTestStore(t)
	cond := Match{Field: "status", Value: "pending"}

	mock.ExpectExec(`UPDATE documents SET data`).
		WithArgs("fcm_send_requests", "req-1", sqlmock.AnyArg(), "status", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE documents SET data`).
		WithArgs("fcm_send_requests", "req-1", sqlmock.AnyArg(), "status", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.UpdateIf(context.Background(), "fcm_send_requests", "req-1", cond, map[string]interface{}{"status": "sent"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateIf(context.Background(), "fcm_send_requests", "req-1", cond, map[string]interface{}{"status": "sent"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateWhereAndDeleteWhere(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE documents SET data`).
		WithArgs("users/u1/notifications", sqlmock.AnyArg(), "read", "false").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs("fcm_topic_subscriptions", "deliveryToken", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.UpdateWhere(context.Background(), "users/u1/notifications",
		Match{Field: "read", Value: "false"}, map[string]interface{}{"read": true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = store.DeleteWhere(context.Background(), "fcm_topic_subscriptions", Match{Field: "deliveryToken", Value: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_List(t *testing.T) {
	store, mock := newTestStore(t)
	before := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT data FROM documents WHERE collection = \$1 AND data->>\$2::text = \$3 AND created_at < \$4 ORDER BY created_at LIMIT \$5`).
		WithArgs("fcm_send_requests", "status", "pending", before, 50).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"status":"pending"}`)).
			AddRow([]byte(`{"status":"pending"}`)))

	docs, err := store.List(context.Background(), "fcm_send_requests", Query{
		Where:         &Match{Field: "status", Value: "pending"},
		CreatedBefore: before,
		Limit:         50,
	})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.JSONEq(t, `{"status":"pending"}`, string(docs[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountBy(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs("fcm_send_requests", "status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", int64(3)).
			AddRow("sent", int64(10)))

	counts, err := store.CountBy(context.Background(), "fcm_send_requests", "status")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pending": 3, "sent": 10}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsureSchema(t *testing.T) {
	store, mock := newTestStore(t)
	for range schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
