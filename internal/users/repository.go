// Package users は利用者の永続化（資格情報ストア）と登録処理を提供します。
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/h-d3ez/nemesis/internal/models"
)

var (
	// ErrNotFound は条件に合う利用者がいない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken はメールアドレスが既に登録済みの場合に返されます。
	ErrEmailTaken = errors.New("email already exists")
)

// Repository は利用者レコードへのアクセスを定義します。
type Repository interface {
	Create(ctx context.Context, user *models.User) error
	FindActiveByEmail(ctx context.Context, email string) (*models.User, error)
	FindActiveByID(ctx context.Context, id uint) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	UpdateProfile(ctx context.Context, id uint, name, bio string) error
	SetActive(ctx context.Context, id uint, active bool) error
	Query(ctx context.Context) *gorm.DB
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository は GORM を使った Repository を返します。
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 存在確認と挿入の間に同じメールアドレスが登録された
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *gormRepository) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", email, true).
		First(&user).Error
	return wrapFind(&user, err)
}

func (r *gormRepository) FindActiveByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&user).Error
	return wrapFind(&user, err)
}

func (r *gormRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	return wrapFind(&user, err)
}

func (r *gormRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return count > 0, nil
}

func (r *gormRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *gormRepository) UpdateProfile(ctx context.Context, id uint, name, bio string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "bio": bio})
	if res.Error != nil {
		return fmt.Errorf("db error: %w", res.Error)
	}
	return nil
}

func (r *gormRepository) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("db error: %w", res.Error)
	}
	return nil
}

// Query は一覧取得用のベースクエリを返します（ページング側で件数と範囲を付けます）。
func (r *gormRepository) Query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.User{}).Order("id ASC")
}

func wrapFind(user *models.User, err error) (*models.User, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
