// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/h-d3ez/nemesis/internal/auth"
	"github.com/h-d3ez/nemesis/internal/config"
	"github.com/h-d3ez/nemesis/internal/database"
	"github.com/h-d3ez/nemesis/internal/logging"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	logger, err := logging.New(cfg.GinMode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.SessionSecret == "" {
		// release 以外では起動のたびに使い捨ての鍵を使う
		cfg.SessionSecret = randomSecret()
		logger.Warn("SESSION_SECRET is not set; using an ephemeral key")
	}

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if cfg.QueueRedisURL != "" {
		manager, err := setupJobs(cfg, a)
		if err != nil {
			logger.Fatal("failed to initialize maintenance jobs", zap.Error(err))
		}
		if err := manager.StartWorkers(); err != nil {
			logger.Fatal("failed to start maintenance workers", zap.Error(err))
		}
		a.jobs = manager
	}

	router := newRouter(cfg, a)

	// サーバーの起動
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if a.jobs != nil {
		if err := a.jobs.Shutdown(shutdownCtx); err != nil {
			logger.Error("job manager shutdown failed", zap.Error(err))
		}
	}
	a.close()
}

// newRouter はミドルウェアとルーティングを組み立てます。
func newRouter(cfg *config.Config, a *app) *gin.Engine {
	router := gin.New()
	router.Use(logging.RequestLogger(a.logger), gin.Recovery())

	// セッションストアの設定
	router.Use(sessions.Sessions(auth.SessionCookieName, newSessionStore(cfg)))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{
		"X-CSRF-Token",
		"X-RateLimit-Limit",
		"X-RateLimit-Remaining",
		"X-RateLimit-Reset",
		"Retry-After",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, a)
	return router
}

// newSessionStore は SESSION_STORE に応じたストアを返します。
// memory ではクッキーにはセッション ID だけを載せ、内容はサーバー側に保持します。
func newSessionStore(cfg *config.Config) sessions.Store {
	var store sessions.Store
	if cfg.SessionStore == "cookie" {
		store = cookie.NewStore([]byte(cfg.SessionSecret))
	} else {
		store = memstore.NewStore([]byte(cfg.SessionSecret))
	}
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	return store
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
