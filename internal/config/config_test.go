package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.SessionStore)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/gif"}, cfg.AllowedUploadTypes)
	assert.Equal(t, "file", cfg.RateLimitBackend)
	assert.Equal(t, 100, cfg.APIRateLimit)
	assert.Equal(t, time.Hour, cfg.APIRateWindow)
	assert.Equal(t, 15*time.Minute, cfg.LoginRateWindow)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("ALLOWED_UPLOAD_TYPES", " image/png , ,image/webp")
	t.Setenv("API_RATE_WINDOW_SECONDS", "60")
	t.Setenv("UPLOAD_VERIFY_CONTENT", "true")
	t.Setenv("MAX_FILE_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, []string{"image/png", "image/webp"}, cfg.AllowedUploadTypes)
	assert.Equal(t, time.Minute, cfg.APIRateWindow)
	assert.True(t, cfg.UploadVerifyContent)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxFileSize)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			GinMode:          "debug",
			SessionStore:     "memory",
			DBDriver:         "mysql",
			RateLimitBackend: "file",
			UploadStorage:    "local",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.DBDriver = "oracle" }, wantErr: true},
		{name: "unknown session store", mutate: func(c *Config) { c.SessionStore = "disk" }, wantErr: true},
		{name: "unknown limiter backend", mutate: func(c *Config) { c.RateLimitBackend = "memcached" }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.UploadStorage = "s3" }, wantErr: true},
		{name: "release without secret", mutate: func(c *Config) { c.GinMode = "release"; c.DatabaseDSN = "dsn" }, wantErr: true},
		{name: "release with secret", mutate: func(c *Config) {
			c.GinMode = "release"
			c.DatabaseDSN = "dsn"
			c.SessionSecret = "s3cr3t"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
