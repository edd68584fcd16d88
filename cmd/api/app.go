package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/h-d3ez/nemesis/internal/activity"
	"github.com/h-d3ez/nemesis/internal/auth"
	"github.com/h-d3ez/nemesis/internal/config"
	"github.com/h-d3ez/nemesis/internal/jobs"
	"github.com/h-d3ez/nemesis/internal/password"
	"github.com/h-d3ez/nemesis/internal/ratelimit"
	"github.com/h-d3ez/nemesis/internal/settings"
	"github.com/h-d3ez/nemesis/internal/storage"
	"github.com/h-d3ez/nemesis/internal/upload"
	"github.com/h-d3ez/nemesis/internal/users"
)

// app はハンドラーが使う依存関係をまとめます。
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	auth        *auth.Manager
	authHandler *auth.Handler
	users       users.Repository
	userService *users.Service
	settings    *settings.Store
	activity    *activity.Recorder

	limiter    *ratelimit.Limiter
	limitFiles *ratelimit.FileStore // file バックエンドのときだけ設定される
	limitRedis *redis.Client
	uploads    *upload.Validator
	uploadOpts upload.Options

	jobs      *jobs.Manager // QUEUE_REDIS_URL が空なら nil
	jobsRedis *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*app, error) {
	hasher, err := password.NewHasher(cfg.PasswordHasher)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		users:    users.NewRepository(db),
		settings: settings.NewStore(db),
		activity: activity.NewRecorder(db, logger),
	}
	a.userService = users.NewService(a.users, hasher)
	a.auth = auth.NewManager(a.users, hasher, a.activity, logger)
	a.authHandler = auth.NewHandler(a.auth, a.userService, a.activity, logger)

	if err := a.setupLimiter(); err != nil {
		return nil, err
	}

	store, err := newUploadStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.uploads = upload.NewValidator(store)
	a.uploadOpts = upload.Options{
		AllowedTypes:  cfg.AllowedUploadTypes,
		MaxSize:       cfg.MaxFileSize,
		Directory:     cfg.UploadDir,
		VerifyContent: cfg.UploadVerifyContent,
	}
	return a, nil
}

func (a *app) setupLimiter() error {
	if a.cfg.RateLimitBackend == "redis" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.limitRedis = redis.NewClient(opt)
		a.limiter = ratelimit.New(ratelimit.NewRedisStore(a.limitRedis, a.longestWindow()))
		return nil
	}
	a.limitFiles = ratelimit.NewFileStore(a.cfg.RateLimitDir)
	a.limiter = ratelimit.New(a.limitFiles)
	return nil
}

// longestWindow はレコードを保持すべき最長の期間です。
func (a *app) longestWindow() time.Duration {
	return max(a.cfg.APIRateWindow, a.cfg.LoginRateWindow)
}

func newUploadStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.UploadStorage == "s3" {
		return storage.NewS3(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return storage.NewLocal(""), nil
}

func (a *app) close() {
	for _, rdb := range []*redis.Client{a.limitRedis, a.jobsRedis} {
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
