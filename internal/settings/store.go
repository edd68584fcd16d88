// Package settings はキー・値形式のサイト設定を提供します。
package settings

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h-d3ez/nemesis/internal/models"
)

// Store は settings テーブルへのアクセスを行います。
type Store struct {
	db *gorm.DB
}

// NewStore は Store を作成します。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get はキーに対応する値を返します。未登録なら defaultValue を返します。
func (s *Store) Get(ctx context.Context, key, defaultValue string) (string, error) {
	setting, err := s.Lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if setting == nil {
		return defaultValue, nil
	}
	return setting.Value, nil
}

// Lookup は設定レコードを返します。未登録なら nil を返します。
func (s *Store) Lookup(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &setting, nil
}

// Set は値を保存します。既存キーなら値と説明を上書きします。
func (s *Store) Set(ctx context.Context, key, value string, description *string) error {
	if key == "" {
		return fmt.Errorf("setting key is required")
	}
	setting := &models.Setting{Key: key, Value: value, Description: description}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"setting_value", "description"}),
	}).Create(setting).Error
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
