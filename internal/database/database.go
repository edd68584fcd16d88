// Package database はドライバー選択付きで GORM の接続を初期化します。
package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/h-d3ez/nemesis/internal/models"
)

// Open は driver に応じた接続を開き、テーブルをマイグレーションします。
func Open(driver, dsn string, l *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true, // 一意制約違反を gorm.ErrDuplicatedKey として受け取る
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if l != nil {
		l.Info("database ready", zap.String("driver", driver))
	}
	return db, nil
}

// Migrate はアプリケーションが使うテーブルを作成・更新します。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.ActivityLog{},
		&models.UserSession{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
