package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/h-d3ez/nemesis/internal/jobs"
)

type brokenJobs struct{ err error }

func (b brokenJobs) Enqueue(context.Context, string) (string, error) { return "", b.err }

func (b brokenJobs) GetRecord(context.Context, string) (*jobs.Record, error) { return nil, b.err }

func (b brokenJobs) LastRun(context.Context, string) (*jobs.Record, error) { return nil, b.err }

func TestMaintenanceHandlersLogFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	manager := brokenJobs{err: errors.New("redis unavailable")}

	router := gin.New()
	router.POST("/maintenance/tasks/:task", enqueueMaintenanceHandler(manager, logger))
	router.GET("/maintenance/tasks/:task", lastRunHandler(manager, logger))
	router.GET("/maintenance/jobs/:id", jobStatusHandler(manager, logger))

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/maintenance/tasks/purge_sessions"},
		{http.MethodGet, "/maintenance/tasks/purge_sessions"},
		{http.MethodGet, "/maintenance/jobs/abc"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.JSONEq(t, `{"success":false,"message":"Internal server error"}`, rec.Body.String())
	}

	entries := logs.All()
	require.Len(t, entries, len(cases))
	for _, e := range entries {
		assert.Equal(t, "redis unavailable", e.ContextMap()["error"])
	}
}

func TestMaintenanceHandlersUnknownTask(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := brokenJobs{err: jobs.ErrUnknownTask}

	router := gin.New()
	router.POST("/maintenance/tasks/:task", enqueueMaintenanceHandler(manager, zap.NewNop()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/maintenance/tasks/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseReleasesJobStoreClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.QueueRedisURL = "redis://" + mr.Addr()

	s := newTestServer(t, cfg)
	_, err := setupJobs(cfg, s.app)
	require.NoError(t, err)
	require.NotNil(t, s.app.jobsRedis)
	require.NoError(t, s.app.jobsRedis.Ping(context.Background()).Err())

	s.app.close()
	assert.ErrorIs(t, s.app.jobsRedis.Ping(context.Background()).Err(), redis.ErrClosed)
}
