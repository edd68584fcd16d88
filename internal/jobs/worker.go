package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// handleTask は 1 件のメンテナンスタスクを実行し、結果を Store に残します。
func (m *Manager) handleTask(ctx context.Context, task *asynq.Task) error {
	purge, ok := m.purgers[task.Type()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task.Type())
	}

	var payload TaskPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
	}
	if payload.JobID == "" {
		// 定期実行分
		payload.JobID = uuid.NewString()
	}

	if err := m.store.Upsert(ctx, &Record{
		JobID:  payload.JobID,
		Task:   task.Type(),
		Status: StatusRunning,
	}); err != nil {
		return err
	}

	removed, err := purge(ctx)
	if err != nil {
		m.logger.Error("maintenance task failed",
			zap.String("task", task.Type()),
			zap.String("job_id", payload.JobID),
			zap.Error(err),
		)
		if markErr := m.store.MarkFailed(ctx, payload.JobID, &ErrorInfo{
			Code:    "INTERNAL_ERROR",
			Message: err.Error(),
		}); markErr != nil {
			return markErr
		}
		return err
	}

	m.logger.Info("maintenance task finished",
		zap.String("task", task.Type()),
		zap.String("job_id", payload.JobID),
		zap.Int64("removed", removed),
	)
	return m.store.MarkDone(ctx, payload.JobID, removed)
}
