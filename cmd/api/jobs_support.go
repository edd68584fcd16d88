package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/h-d3ez/nemesis/internal/config"
	"github.com/h-d3ez/nemesis/internal/httpx"
	"github.com/h-d3ez/nemesis/internal/jobs"
)

// maintenanceRecordTTL はジョブ状態を Redis に残す期間です。
const maintenanceRecordTTL = 24 * time.Hour

func setupJobs(cfg *config.Config, a *app) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	// ジョブ状態用のクライアントは app.close で閉じる
	a.jobsRedis = redis.NewClient(opt)
	store := jobs.NewStore(a.jobsRedis, maintenanceRecordTTL)
	return jobs.NewManager(jobs.Options{
		RedisURL: cfg.QueueRedisURL,
		Interval: cfg.MaintenanceInterval,
	}, store, maintenancePurgers(a), a.logger)
}

// maintenancePurgers は有効なバックエンドに応じた掃除タスクを返します。
// Redis のレート制限は TTL で消えるため file バックエンドのときだけ登録します。
func maintenancePurgers(a *app) map[string]jobs.Purger {
	purgers := map[string]jobs.Purger{
		jobs.TaskPurgeSessions: a.activity.PurgeExpiredSessions,
	}
	if a.limitFiles != nil {
		maxAge := a.longestWindow()
		purgers[jobs.TaskPurgeRateLimits] = func(ctx context.Context) (int64, error) {
			n, err := a.limitFiles.PurgeStale(ctx, maxAge)
			return int64(n), err
		}
	}
	return purgers
}

// maintenanceJobs はメンテナンス用エンドポイントが使う jobs.Manager の操作です。
type maintenanceJobs interface {
	Enqueue(ctx context.Context, task string) (string, error)
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
	LastRun(ctx context.Context, task string) (*jobs.Record, error)
}

// taskName は URL 上の短い名前（purge_sessions など）をタスク種別に変換します。
func taskName(c *gin.Context) string {
	return "maintenance:" + strings.TrimSpace(c.Param("task"))
}

func enqueueMaintenanceHandler(manager maintenanceJobs, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := manager.Enqueue(c.Request.Context(), taskName(c))
		if errors.Is(err, jobs.ErrUnknownTask) {
			httpx.Fail(c, http.StatusNotFound, "Unknown maintenance task")
			return
		}
		if err != nil {
			httpx.Internal(c, logger, "enqueue maintenance task failed", err)
			return
		}
		httpx.OK(c, http.StatusAccepted, "Task queued", gin.H{"jobId": jobID})
	}
}

func lastRunHandler(manager maintenanceJobs, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := manager.LastRun(c.Request.Context(), taskName(c))
		if errors.Is(err, jobs.ErrUnknownTask) {
			httpx.Fail(c, http.StatusNotFound, "Unknown maintenance task")
			return
		}
		if err != nil {
			httpx.Internal(c, logger, "load maintenance record failed", err)
			return
		}
		if record == nil {
			httpx.Fail(c, http.StatusNotFound, "Task has not run yet")
			return
		}
		httpx.OK(c, http.StatusOK, "OK", record)
	}
}

func jobStatusHandler(manager maintenanceJobs, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			httpx.Fail(c, http.StatusBadRequest, "Job id is required")
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			httpx.Internal(c, logger, "load maintenance record failed", err)
			return
		}
		if record == nil {
			httpx.Fail(c, http.StatusNotFound, "Job not found")
			return
		}
		httpx.OK(c, http.StatusOK, "OK", record)
	}
}
