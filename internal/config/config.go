// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret string // セッション署名用の秘密鍵
	SessionStore  string // memory（サーバー側保持）または cookie

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DBDriver       string // mysql, postgres, sqlite
	DatabaseDSN    string // ドライバーごとの接続文字列
	PasswordHasher string // bcrypt または argon2id

	// アップロード設定
	UploadDir           string   // ローカル保存先ディレクトリ（S3 の場合はキーの接頭辞）
	UploadStorage       string   // local または s3
	MaxFileSize         int64    // 単一ファイルの最大サイズ（バイト）
	AllowedUploadTypes  []string // 許可する MIME タイプ
	UploadVerifyContent bool     // 先頭バイトから判定した MIME も許可リストで検証するか

	// S3設定（UPLOAD_STORAGE=s3 の場合）
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	// レート制限設定
	RateLimitBackend string // file または redis
	RateLimitDir     string // file バックエンドの保存先
	RedisURL         string // redis バックエンドの接続URL
	APIRateLimit     int
	APIRateWindow    time.Duration
	LoginRateLimit   int
	LoginRateWindow  time.Duration

	// メンテナンスジョブ設定
	QueueRedisURL       string        // Asynq用Redis接続URL（空なら無効）
	MaintenanceInterval time.Duration // 期限切れデータ掃除の間隔
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionStore:  getEnv("SESSION_STORE", "memory"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:8000"),

		DBDriver:       getEnv("DB_DRIVER", "mysql"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "root:@tcp(localhost:3306)/nemesis?charset=utf8mb4&parseTime=True&loc=Local"),
		PasswordHasher: getEnv("PASSWORD_HASHER", "bcrypt"),

		UploadDir:           getEnv("UPLOAD_DIR", "uploads"),
		UploadStorage:       getEnv("UPLOAD_STORAGE", "local"),
		MaxFileSize:         getEnvAsInt64("MAX_FILE_SIZE", 5*1024*1024), // 5MB
		AllowedUploadTypes:  getEnvAsList("ALLOWED_UPLOAD_TYPES", []string{"image/jpeg", "image/png", "image/gif"}),
		UploadVerifyContent: getEnvAsBool("UPLOAD_VERIFY_CONTENT", false),

		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),

		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "file"),
		RateLimitDir:     getEnv("RATE_LIMIT_DIR", "cache"),
		RedisURL:         getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		APIRateLimit:     getEnvAsInt("API_RATE_LIMIT", 100),
		APIRateWindow:    time.Duration(getEnvAsInt("API_RATE_WINDOW_SECONDS", 3600)) * time.Second,
		LoginRateLimit:   getEnvAsInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow:  time.Duration(getEnvAsInt("LOGIN_RATE_WINDOW_SECONDS", 900)) * time.Second,

		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", ""),
		MaintenanceInterval: time.Duration(getEnvAsInt("MAINTENANCE_INTERVAL_MINUTES", 10)) * time.Minute,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.SessionStore {
	case "memory", "cookie":
	default:
		return fmt.Errorf("SESSION_STORE must be memory or cookie, got %q", c.SessionStore)
	}
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql, postgres or sqlite, got %q", c.DBDriver)
	}
	switch c.RateLimitBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be file or redis, got %q", c.RateLimitBackend)
	}
	switch c.UploadStorage {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when UPLOAD_STORAGE=s3")
		}
	default:
		return fmt.Errorf("UPLOAD_STORAGE must be local or s3, got %q", c.UploadStorage)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("MAX_FILE_SIZE must not be negative")
	}

	// 本番環境では秘密情報を必須にする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数を空要素を除いたスライスとして取得します。
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
