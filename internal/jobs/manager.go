// Package jobs は Asynq を使った定期メンテナンスタスクを管理します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TaskPurgeSessions は期限切れの接続記録を削除します。
	TaskPurgeSessions = "maintenance:purge_sessions"
	// TaskPurgeRateLimits は古いレート制限ファイルを削除します。
	TaskPurgeRateLimits = "maintenance:purge_rate_limits"

	queueName = "maintenance"
)

// ErrUnknownTask は登録されていないタスク種別です。
var ErrUnknownTask = errors.New("unknown maintenance task")

// Purger は不要なデータを削除し、削除件数を返します。
type Purger func(ctx context.Context) (int64, error)

// Options は Manager の設定です。
type Options struct {
	RedisURL string
	Interval time.Duration // 0 以下なら定期実行しない
}

// Manager はメンテナンスタスクの投入・定期実行・状態管理を担います。
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	store     *Store
	purgers   map[string]Purger
	interval  time.Duration
	logger    *zap.Logger
}

// NewManager は Manager を初期化します。purgers のキーはタスク種別です。
func NewManager(opts Options, store *Store, purgers map[string]Purger, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if len(purgers) == 0 {
		return nil, errors.New("no maintenance tasks registered")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	sugar := logger.Sugar()
	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: sugar,
		},
	)
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   sugar,
	})

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:    client,
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		store:     store,
		purgers:   purgers,
		interval:  opts.Interval,
		logger:    logger,
	}
	for task := range purgers {
		mux.HandleFunc(task, manager.handleTask)
	}
	return manager, nil
}

// Tasks は登録済みのタスク種別を返します。
func (m *Manager) Tasks() []string {
	tasks := make([]string, 0, len(m.purgers))
	for task := range m.purgers {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)
	return tasks
}

// StartWorkers はワーカーと定期実行スケジューラーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() error {
	if m.interval > 0 {
		spec := "@every " + m.interval.String()
		for _, task := range m.Tasks() {
			if _, err := m.scheduler.Register(spec, asynq.NewTask(task, nil, asynq.Queue(queueName))); err != nil {
				return fmt.Errorf("register %s: %w", task, err)
			}
		}
		if err := m.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	return nil
}

// Shutdown はスケジューラー・サーバー・クライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.interval > 0 {
		m.scheduler.Shutdown()
	}
	m.server.Shutdown()
	return m.client.Close()
}

// Enqueue はタスクを即時実行用にキューへ投入し、ジョブ ID を返します。
func (m *Manager) Enqueue(ctx context.Context, task string) (string, error) {
	if _, ok := m.purgers[task]; !ok {
		return "", ErrUnknownTask
	}

	jobID := uuid.NewString()
	if err := m.store.Upsert(ctx, &Record{
		JobID:  jobID,
		Task:   task,
		Status: StatusQueued,
	}); err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return "", err
	}
	if _, err := m.client.EnqueueContext(ctx, asynq.NewTask(task, body, asynq.Queue(queueName)), asynq.MaxRetry(1)); err != nil {
		return "", err
	}
	return jobID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// LastRun はタスク種別ごとの直近の実行結果を返します。
func (m *Manager) LastRun(ctx context.Context, task string) (*Record, error) {
	if _, ok := m.purgers[task]; !ok {
		return nil, ErrUnknownTask
	}
	return m.store.Last(ctx, task)
}
