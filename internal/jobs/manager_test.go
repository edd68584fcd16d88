package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, purgers map[string]Purger) (*Manager, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewStore(rdb, time.Hour)
	m, err := NewManager(Options{RedisURL: "redis://" + mr.Addr()}, store, purgers, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.client.Close() })
	return m, store
}

func TestHandleTaskRecordsResult(t *testing.T) {
	m, store := newTestManager(t, map[string]Purger{
		TaskPurgeSessions: func(ctx context.Context) (int64, error) { return 3, nil },
	})
	ctx := context.Background()

	body, err := json.Marshal(&TaskPayload{JobID: "job-1"})
	require.NoError(t, err)
	require.NoError(t, m.handleTask(ctx, asynq.NewTask(TaskPurgeSessions, body)))

	record, err := m.GetRecord(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusSucceeded, record.Status)
	assert.Equal(t, int64(3), record.Removed)
	assert.Nil(t, record.Error)

	last, err := store.Last(ctx, TaskPurgeSessions)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "job-1", last.JobID)
}

func TestHandleTaskScheduledRunGetsJobID(t *testing.T) {
	m, _ := newTestManager(t, map[string]Purger{
		TaskPurgeRateLimits: func(ctx context.Context) (int64, error) { return 0, nil },
	})
	ctx := context.Background()

	require.NoError(t, m.handleTask(ctx, asynq.NewTask(TaskPurgeRateLimits, nil)))

	last, err := m.LastRun(ctx, TaskPurgeRateLimits)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.NotEmpty(t, last.JobID)
	assert.Equal(t, StatusSucceeded, last.Status)
}

func TestHandleTaskFailure(t *testing.T) {
	boom := errors.New("database is locked")
	m, _ := newTestManager(t, map[string]Purger{
		TaskPurgeSessions: func(ctx context.Context) (int64, error) { return 0, boom },
	})
	ctx := context.Background()

	body, _ := json.Marshal(&TaskPayload{JobID: "job-2"})
	err := m.handleTask(ctx, asynq.NewTask(TaskPurgeSessions, body))
	assert.ErrorIs(t, err, boom)

	record, err := m.GetRecord(ctx, "job-2")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusFailed, record.Status)
	require.NotNil(t, record.Error)
	assert.Equal(t, "database is locked", record.Error.Message)
}

func TestUnknownTask(t *testing.T) {
	m, _ := newTestManager(t, map[string]Purger{
		TaskPurgeSessions: func(ctx context.Context) (int64, error) { return 0, nil },
	})
	ctx := context.Background()

	_, err := m.Enqueue(ctx, "maintenance:reindex")
	assert.ErrorIs(t, err, ErrUnknownTask)

	err = m.handleTask(ctx, asynq.NewTask(TaskPurgeRateLimits, nil))
	assert.ErrorIs(t, err, ErrUnknownTask)

	_, err = m.LastRun(ctx, TaskPurgeRateLimits)
	assert.ErrorIs(t, err, ErrUnknownTask)

	assert.Equal(t, []string{TaskPurgeSessions}, m.Tasks())
}

func TestStoreMissingRecord(t *testing.T) {
	_, store := newTestManager(t, map[string]Purger{
		TaskPurgeSessions: func(ctx context.Context) (int64, error) { return 0, nil },
	})

	record, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, record)

	assert.Error(t, store.MarkDone(context.Background(), "missing", 1))
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Options{RedisURL: "redis://localhost:6379"}, nil, map[string]Purger{}, nil)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	store := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	_, err = NewManager(Options{RedisURL: "redis://localhost:6379"}, store, nil, nil)
	assert.Error(t, err)

	_, err = NewManager(Options{RedisURL: "::not a url"}, store, map[string]Purger{
		TaskPurgeSessions: func(ctx context.Context) (int64, error) { return 0, nil },
	}, nil)
	assert.Error(t, err)
}
